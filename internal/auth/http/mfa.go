package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nocturnehq/gatekeep/internal/auth/service"
	"github.com/nocturnehq/gatekeep/pkg/httpx"
	"github.com/nocturnehq/gatekeep/pkg/slogx"
)

// MFAHandler handles TOTP enrollment and factor management. Every route
// here sits behind the session auth middleware.
type MFAHandler struct {
	MFAService  *service.MFAService
	UserService *service.UserService
}

type verifyEnrollmentRequest struct {
	EnrollmentID string `json:"enrollment_id"`
	Code         string `json:"code"`
	FriendlyName string `json:"friendly_name"`
}

// HandleEnroll handles POST /v1/mfa/totp/enroll, provisioning a new TOTP
// secret. Nothing is persisted until the user verifies a code.
func (h *MFAHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)
	userID, _ := ctx.Value(httpx.CtxKeyUserID).(string)

	user, err := h.UserService.FindByID(ctx, userID)
	if err != nil {
		log.Error("failed to load user", "user_id", userID, "err", err)
		httpx.ErrServerError.WriteError(w)
		return
	}

	resp, err := h.MFAService.BeginEnrollment(ctx, user)
	if err != nil {
		if errors.Is(err, service.ErrFactorLimit) {
			httpx.ErrLimitExceeded.WriteError(w)
			return
		}
		log.Error("enrollment failed", "user_id", userID, "err", err)
		httpx.ErrServerError.WriteError(w)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleVerify handles POST /v1/mfa/totp/verify, confirming a pending
// enrollment. The first confirmed factor returns backup codes; they are
// shown exactly once.
func (h *MFAHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)
	userID, _ := ctx.Value(httpx.CtxKeyUserID).(string)

	var req verifyEnrollmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.EnrollmentID == "" || req.Code == "" {
		httpx.ErrInvalidRequest.WriteError(w)
		return
	}

	codes, err := h.MFAService.CompleteEnrollment(ctx, userID, req.EnrollmentID, req.Code, req.FriendlyName)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEnrollmentNotFound):
			httpx.ErrInvalidState.WriteError(w)
		case errors.Is(err, service.ErrInvalidMFACode):
			httpx.ErrMFAFailed.WriteError(w)
		case errors.Is(err, service.ErrFactorLimit):
			httpx.ErrLimitExceeded.WriteError(w)
		default:
			log.Error("enrollment verify failed", "user_id", userID, "err", err)
			httpx.ErrServerError.WriteError(w)
		}
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status":       "enabled",
		"backup_codes": codes,
	})
}

// HandleListFactors handles GET /v1/mfa/factors.
func (h *MFAHandler) HandleListFactors(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, _ := ctx.Value(httpx.CtxKeyUserID).(string)

	factors, err := h.MFAService.ListFactors(ctx, userID)
	if err != nil {
		slogx.FromContext(ctx).Error("factor list failed", "user_id", userID, "err", err)
		httpx.ErrServerError.WriteError(w)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"factors": factors})
}

// HandleRemoveFactor handles DELETE /v1/mfa/factors/{id}. Removing the
// last TOTP factor also discards the user's backup codes.
func (h *MFAHandler) HandleRemoveFactor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, _ := ctx.Value(httpx.CtxKeyUserID).(string)
	factorID := r.PathValue("id")

	if factorID == "" {
		httpx.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.MFAService.RemoveFactor(ctx, userID, factorID); err != nil {
		if errors.Is(err, service.ErrFactorNotFound) {
			httpx.ErrInvalidState.WriteError(w)
			return
		}
		slogx.FromContext(ctx).Error("factor removal failed", "user_id", userID, "err", err)
		httpx.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}
