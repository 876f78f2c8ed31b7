package handlers

import "net/http"

// Backlog reports how many chat identities have events waiting.
type Backlog interface {
	Pending() int
}

type HealthHandler struct {
	storage string
	backlog Backlog
}

func NewHealthHandler(storage string, backlog Backlog) *HealthHandler {
	return &HealthHandler{storage: storage, backlog: backlog}
}

func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "ok", "storage": h.storage}
	if h.backlog != nil {
		body["busy_sessions"] = h.backlog.Pending()
	}
	writeJSON(w, http.StatusOK, body)
}
