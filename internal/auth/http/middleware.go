package http

import (
	"context"
	"net/http"
	"time"

	"github.com/nocturnehq/gatekeep/internal/auth/service"
	"github.com/nocturnehq/gatekeep/pkg/httpx"
	"github.com/nocturnehq/gatekeep/pkg/idx"
	"github.com/nocturnehq/gatekeep/pkg/slogx"
)

// FingerprintMiddleware guarantees every request carries a device
// fingerprint. A browser without the _fpid cookie gets a fresh ULID
// minted and set; either way the id lands in the request context so
// handlers and the session check can read it.
func FingerprintMiddleware(ttl time.Duration) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fpID := httpx.CookieValue(r, httpx.CookieFingerprint)
			if fpID == "" {
				fpID = idx.New().String()
				httpx.SetFingerprintCookie(w, fpID, ttl)
			}

			ctx := context.WithValue(r.Context(), httpx.CtxKeyFingerprint, fpID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionAuthMiddleware enforces the two-phase session check: the session
// token cookie must verify and name the caller's fingerprint, and the
// session row it points at must still be alive. Any failure clears every
// auth cookie and answers 401 without saying which phase broke.
func SessionAuthMiddleware(auth *service.AuthService) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			fpID, _ := ctx.Value(httpx.CtxKeyFingerprint).(string)
			rawToken := httpx.CookieValue(r, httpx.CookieSessionToken)
			if rawToken == "" {
				httpx.ClearAuthCookies(w)
				httpx.ErrInvalidToken.WriteError(w)
				return
			}

			session, err := auth.ValidateSession(ctx, rawToken, fpID)
			if err != nil {
				slogx.FromContext(ctx).Debug("session validation failed", "err", err)
				httpx.ClearAuthCookies(w)
				httpx.ErrInvalidToken.WriteError(w)
				return
			}

			ctx = context.WithValue(ctx, httpx.CtxKeyUserID, session.UserID)
			ctx = context.WithValue(ctx, httpx.CtxKeySessionID, session.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
