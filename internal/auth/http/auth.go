package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nocturnehq/gatekeep/internal/auth/domain"
	"github.com/nocturnehq/gatekeep/internal/auth/service"
	"github.com/nocturnehq/gatekeep/internal/auth/token"
	"github.com/nocturnehq/gatekeep/pkg/httpx"
	"github.com/nocturnehq/gatekeep/pkg/slogx"
)

// AuthHandler handles sign-up, sign-in, MFA completion and logout.
type AuthHandler struct {
	AuthService *service.AuthService
	UserService *service.UserService
	Tokens      *token.Engine
}

type signUpRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type completeMFARequest struct {
	MFAToken string `json:"mfa_token"`
	Code     string `json:"code"`
}

type signInResponse struct {
	Profile domain.Profile `json:"profile"`
}

type mfaRequiredResponse struct {
	MFARequired bool                   `json:"mfa_required"`
	MFAToken    string                 `json:"mfa_token"`
	Factors     []domain.FactorSummary `json:"factors"`
}

func requestFingerprint(r *http.Request) domain.Fingerprint {
	fpID, _ := r.Context().Value(httpx.CtxKeyFingerprint).(string)
	return domain.Fingerprint{
		ID:   fpID,
		Data: r.UserAgent(),
	}
}

// HandleSignUp handles POST /v1/auth/signup.
func (h *AuthHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req signUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.Email == "" || req.Password == "" || req.FirstName == "" {
		httpx.ErrInvalidRequest.WriteError(w)
		return
	}

	res, err := h.AuthService.SignUp(ctx, req.Email, req.Password, req.FirstName, req.LastName, requestFingerprint(r))
	if err != nil {
		if errors.Is(err, service.ErrEmailTaken) {
			httpx.ErrEmailInUse.WriteError(w)
			return
		}
		log.Error("sign-up failed", "err", err)
		httpx.ErrServerError.WriteError(w)
		return
	}

	h.writeSignedIn(w, res)
}

// HandleSignIn handles POST /v1/auth/signin. Users with TOTP enrolled get
// an MFA challenge instead of tokens.
func (h *AuthHandler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.Email == "" || req.Password == "" {
		httpx.ErrInvalidRequest.WriteError(w)
		return
	}

	res, err := h.AuthService.SignIn(ctx, req.Email, req.Password, requestFingerprint(r))
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			httpx.ErrInvalidCredentials.WriteError(w)
			return
		}
		log.Error("sign-in failed", "err", err)
		httpx.ErrServerError.WriteError(w)
		return
	}

	if res.MFARequired {
		httpx.NoCache(w)
		httpx.WriteJSON(w, http.StatusOK, mfaRequiredResponse{
			MFARequired: true,
			MFAToken:    res.Challenge.Token,
			Factors:     res.Challenge.Factors,
		})
		return
	}

	h.writeSignedIn(w, res)
}

// HandleCompleteMFA handles POST /v1/auth/mfa, finishing a challenged
// sign-in with a TOTP or backup code.
func (h *AuthHandler) HandleCompleteMFA(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req completeMFARequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.MFAToken == "" || req.Code == "" {
		httpx.ErrInvalidRequest.WriteError(w)
		return
	}

	res, err := h.AuthService.CompleteMFASignIn(ctx, req.MFAToken, req.Code, requestFingerprint(r))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrChallengeExpired):
			httpx.ErrInvalidState.WriteError(w)
		case errors.Is(err, service.ErrInvalidMFACode):
			httpx.ErrMFAFailed.WriteError(w)
		default:
			log.Error("MFA sign-in failed", "err", err)
			httpx.ErrServerError.WriteError(w)
		}
		return
	}

	h.writeSignedIn(w, res)
}

// HandleLogout handles POST /v1/auth/logout, ending the caller's session.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, _ := ctx.Value(httpx.CtxKeyUserID).(string)
	sessionID, _ := ctx.Value(httpx.CtxKeySessionID).(string)

	err := h.AuthService.Logout(ctx, sessionID, userID)
	httpx.ClearAuthCookies(w)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			httpx.ErrSessionError.WriteError(w)
			return
		}
		slogx.FromContext(ctx).Error("logout failed", "err", err)
		httpx.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "signed_out"})
}

// HandleLogoutAll handles POST /v1/auth/logout-all, ending every session
// the user holds across devices.
func (h *AuthHandler) HandleLogoutAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, _ := ctx.Value(httpx.CtxKeyUserID).(string)

	n, err := h.AuthService.LogoutAll(ctx, userID)
	httpx.ClearAuthCookies(w)
	if err != nil {
		slogx.FromContext(ctx).Error("logout-all failed", "err", err)
		httpx.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status":           "signed_out",
		"sessions_removed": n,
	})
}

// HandleRefresh handles POST /v1/auth/refresh, reissuing the access token
// cookie for a still-valid session.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, _ := ctx.Value(httpx.CtxKeyUserID).(string)
	sessionID, _ := ctx.Value(httpx.CtxKeySessionID).(string)

	session, err := h.AuthService.Sessions.FindByID(ctx, sessionID)
	if err != nil || session.UserID != userID {
		httpx.ClearAuthCookies(w)
		httpx.ErrInvalidToken.WriteError(w)
		return
	}

	access, err := h.AuthService.RefreshAccess(ctx, session)
	if err != nil {
		slogx.FromContext(ctx).Error("refresh failed", "err", err)
		httpx.ErrServerError.WriteError(w)
		return
	}

	httpx.SetAccessCookie(w, access, h.Tokens.AccessTTL())
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

// HandleProfile handles GET /v1/auth/profile.
func (h *AuthHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, _ := ctx.Value(httpx.CtxKeyUserID).(string)

	user, err := h.UserService.FindByID(ctx, userID)
	if err != nil {
		slogx.FromContext(ctx).Error("profile load failed", "user_id", userID, "err", err)
		httpx.ErrServerError.WriteError(w)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, user.Profile())
}

type updateProfileRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// HandleUpdateProfile handles PATCH /v1/auth/profile.
func (h *AuthHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, _ := ctx.Value(httpx.CtxKeyUserID).(string)

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.FirstName == "" {
		httpx.ErrInvalidRequest.WriteError(w)
		return
	}

	user, err := h.UserService.UpdateProfile(ctx, userID, req.FirstName, req.LastName)
	if err != nil {
		slogx.FromContext(ctx).Error("profile update failed", "user_id", userID, "err", err)
		httpx.ErrServerError.WriteError(w)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, user.Profile())
}

// HandleDeleteAccount handles DELETE /v1/auth/profile. Everything the user
// owns goes with the account.
func (h *AuthHandler) HandleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, _ := ctx.Value(httpx.CtxKeyUserID).(string)

	err := h.AuthService.DeleteAccount(ctx, userID)
	httpx.ClearAuthCookies(w)
	if err != nil {
		slogx.FromContext(ctx).Error("account deletion failed", "user_id", userID, "err", err)
		httpx.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// writeSignedIn sets the token cookies and responds with the profile.
func (h *AuthHandler) writeSignedIn(w http.ResponseWriter, res service.SignInResult) {
	httpx.SetAuthCookies(w, res.Tokens.AccessToken, res.Tokens.SessionToken,
		h.Tokens.AccessTTL(), h.Tokens.SessionTTL())
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, signInResponse{Profile: res.User.Profile()})
}
