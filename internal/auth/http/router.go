package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/nocturnehq/gatekeep/internal/auth/cache"
	"github.com/nocturnehq/gatekeep/internal/auth/service"
	"github.com/nocturnehq/gatekeep/internal/auth/store"
	"github.com/nocturnehq/gatekeep/internal/auth/token"
	"github.com/nocturnehq/gatekeep/pkg/httpx"
	"github.com/nocturnehq/gatekeep/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store store.Store
	cache *cache.Client

	Tokens         *token.Engine
	AuthService    *service.AuthService
	UserService    *service.UserService
	SessionService *service.SessionService
	MFAService     *service.MFAService
}

func NewRouter(buildVersion string, st store.Store, c *cache.Client, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		cache:        c,
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerMFA()
	r.registerSessions()
	r.registerSystem()
}

// ServeHTTP implements http.Handler and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// authed wraps a handler in the standard authenticated chain: per-user
// rate limiting, fingerprint cookie, then the two-phase session check.
func (r *Router) authed(next http.Handler) http.Handler {
	return httpx.Chain(next,
		httpx.RateLimitByUser(httpx.ModerateLimit),
		FingerprintMiddleware(r.Tokens.SessionTTL()),
		SessionAuthMiddleware(r.AuthService),
	)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{
		AuthService: r.AuthService,
		UserService: r.UserService,
		Tokens:      r.Tokens,
	}

	// Credential endpoints are the brute-force surface; strict IP limits.
	r.Mux.Handle("POST /v1/auth/signup",
		httpx.Chain(http.HandlerFunc(h.HandleSignUp),
			httpx.RateLimitByIP(httpx.StrictLimit),
			FingerprintMiddleware(r.Tokens.SessionTTL()),
		),
	)
	r.Mux.Handle("POST /v1/auth/signin",
		httpx.Chain(http.HandlerFunc(h.HandleSignIn),
			httpx.RateLimitByIP(httpx.StrictLimit),
			FingerprintMiddleware(r.Tokens.SessionTTL()),
		),
	)
	r.Mux.Handle("POST /v1/auth/mfa",
		httpx.Chain(http.HandlerFunc(h.HandleCompleteMFA),
			httpx.RateLimitByIP(httpx.StrictLimit),
			FingerprintMiddleware(r.Tokens.SessionTTL()),
		),
	)

	r.Mux.Handle("POST /v1/auth/logout", r.authed(http.HandlerFunc(h.HandleLogout)))
	r.Mux.Handle("POST /v1/auth/logout-all", r.authed(http.HandlerFunc(h.HandleLogoutAll)))
	r.Mux.Handle("POST /v1/auth/refresh", r.authed(http.HandlerFunc(h.HandleRefresh)))
	r.Mux.Handle("GET /v1/auth/profile", r.authed(http.HandlerFunc(h.HandleProfile)))
	r.Mux.Handle("PATCH /v1/auth/profile", r.authed(http.HandlerFunc(h.HandleUpdateProfile)))
	r.Mux.Handle("DELETE /v1/auth/profile", r.authed(http.HandlerFunc(h.HandleDeleteAccount)))
}

func (r *Router) registerMFA() {
	h := &MFAHandler{
		MFAService:  r.MFAService,
		UserService: r.UserService,
	}

	r.Mux.Handle("POST /v1/mfa/totp/enroll", r.authed(http.HandlerFunc(h.HandleEnroll)))
	r.Mux.Handle("POST /v1/mfa/totp/verify", r.authed(http.HandlerFunc(h.HandleVerify)))
	r.Mux.Handle("GET /v1/mfa/factors", r.authed(http.HandlerFunc(h.HandleListFactors)))
	r.Mux.Handle("DELETE /v1/mfa/factors/{id}", r.authed(http.HandlerFunc(h.HandleRemoveFactor)))
}

func (r *Router) registerSessions() {
	h := &SessionHandler{SessionService: r.SessionService}

	r.Mux.Handle("GET /v1/sessions", r.authed(http.HandlerFunc(h.HandleList)))
	r.Mux.Handle("DELETE /v1/sessions/{id}", r.authed(http.HandlerFunc(h.HandleDelete)))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store, r.cache))
}
