package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kipackjeong/Demo-sub001/internal/domain"
	"github.com/kipackjeong/Demo-sub001/internal/identity"
)

// SessionsHandler serves conversation history over plain HTTP, so a client
// can backfill its view after a reconnect or a page reload.
type SessionsHandler struct {
	*Handler
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(base *Handler) *SessionsHandler {
	return &SessionsHandler{Handler: base}
}

// RegisterRoutes registers session routes.
func (h *SessionsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.GetMe)
		r.Get("/sessions/{sessionID}/messages", h.ListMessages)
	})
}

// GetMe returns the caller's identity.
func (h *SessionsHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"user_id": userID})
}

// ListMessages returns a session's messages in append order. An unknown
// session id yields an empty list, not an error: sessions are created lazily
// by the first message, so "unknown" and "empty" are the same thing.
func (h *SessionsHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		Error(w, http.StatusBadRequest, "missing session id")
		return
	}

	msgs, err := h.repo.ListMessages(r.Context(), sessionID)
	if err != nil {
		slog.Error("Failed to list messages", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if msgs == nil {
		msgs = []*domain.Message{}
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"messages":   msgs,
	})
}
