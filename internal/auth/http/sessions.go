package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/nocturnehq/gatekeep/internal/auth/service"
	"github.com/nocturnehq/gatekeep/pkg/httpx"
	"github.com/nocturnehq/gatekeep/pkg/slogx"
)

// SessionHandler exposes the caller's device sessions.
type SessionHandler struct {
	SessionService *service.SessionService
}

type sessionView struct {
	ID        string    `json:"id"`
	Current   bool      `json:"current"`
	Device    string    `json:"device"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HandleList handles GET /v1/sessions, listing the user's sessions with
// the caller's own marked current.
func (h *SessionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, _ := ctx.Value(httpx.CtxKeyUserID).(string)
	currentID, _ := ctx.Value(httpx.CtxKeySessionID).(string)

	sessions, err := h.SessionService.ListForUser(ctx, userID)
	if err != nil {
		slogx.FromContext(ctx).Error("session list failed", "user_id", userID, "err", err)
		httpx.ErrServerError.WriteError(w)
		return
	}

	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, sessionView{
			ID:        s.ID,
			Current:   s.ID == currentID,
			Device:    s.FingerprintData,
			CreatedAt: s.CreatedAt,
			ExpiresAt: s.ExpiresAt,
		})
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"sessions": views})
}

// HandleDelete handles DELETE /v1/sessions/{id}, signing out one device.
func (h *SessionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, _ := ctx.Value(httpx.CtxKeyUserID).(string)
	sessionID := r.PathValue("id")

	if sessionID == "" {
		httpx.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.SessionService.DeleteByID(ctx, sessionID, userID); err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			httpx.ErrSessionError.WriteError(w)
			return
		}
		slogx.FromContext(ctx).Error("session delete failed", "user_id", userID, "err", err)
		httpx.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}
