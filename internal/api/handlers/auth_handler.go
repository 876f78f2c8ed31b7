package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/markdave123-py/Rentora/internal/auth"
)

// OperatorRole is the token role of the operator API.
const OperatorRole = "OPERATOR"

// AuthHandler logs the operator in against the configured bcrypt hash.
type AuthHandler struct {
	issuer       *auth.Issuer
	email        string
	passwordHash []byte
	ttl          time.Duration
	log          *slog.Logger
}

func NewAuthHandler(issuer *auth.Issuer, email, passwordHash string, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		issuer:       issuer,
		email:        strings.ToLower(strings.TrimSpace(email)),
		passwordHash: []byte(passwordHash),
		ttl:          24 * time.Hour,
		log:          logger.With("component", "api-auth"),
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if h.email == "" || email != h.email || bcrypt.CompareHashAndPassword(h.passwordHash, []byte(req.Password)) != nil {
		h.log.Warn("operator login rejected", "email", email)
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := h.issuer.Issue(email, OperatorRole, "", h.ttl)
	if err != nil {
		h.log.Error("token issue failed", "err", err)
		http.Error(w, "could not issue token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
