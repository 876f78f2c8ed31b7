package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/markdave123-py/Rentora/internal/core"
	"github.com/markdave123-py/Rentora/internal/models"
)

// NotificationHandler lets an operator inspect the outbox and retry
// notifications that ran out of attempts.
type NotificationHandler struct {
	store core.NotificationStore
	log   *slog.Logger
}

func NewNotificationHandler(store core.NotificationStore, logger *slog.Logger) *NotificationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationHandler{store: store, log: logger.With("component", "api-notifications")}
}

// List serves GET /notifications?status=failed|pending|sent&limit=N.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	status := models.NotificationStatus(strings.ToUpper(r.URL.Query().Get("status")))
	switch status {
	case "":
		status = models.NotificationFailed
	case models.NotificationFailed, models.NotificationPending, models.NotificationSent:
	default:
		http.Error(w, "status must be failed, pending or sent", http.StatusBadRequest)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			http.Error(w, "limit must be between 1 and 500", http.StatusBadRequest)
			return
		}
		limit = n
	}

	items, err := h.store.ListNotificationsByStatus(r.Context(), status, limit)
	if err != nil {
		h.log.Error("list notifications failed", "status", status, "err", err)
		http.Error(w, "could not list notifications", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []models.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status, "notifications": items})
}

// Requeue serves POST /notifications/{id}/requeue.
func (h *NotificationHandler) Requeue(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.store.RequeueNotification(r.Context(), id)
	switch {
	case errors.Is(err, core.ErrNotFound):
		http.Error(w, "notification not found", http.StatusNotFound)
		return
	case err != nil:
		h.log.Error("requeue failed", "notification_id", id, "err", err)
		http.Error(w, "could not requeue notification", http.StatusInternalServerError)
		return
	}
	h.log.Info("notification requeued", "notification_id", id)
	n, err := h.store.GetNotification(r.Context(), id)
	if err != nil || n == nil {
		writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(models.NotificationPending)})
		return
	}
	writeJSON(w, http.StatusOK, n)
}
