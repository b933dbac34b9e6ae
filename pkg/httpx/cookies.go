package httpx

import (
	"net/http"
	"time"
)

// Cookie names used for token transport. The access cookie is readable by
// scripts so the frontend can inspect expiry; the session cookie never is.
const (
	CookieAccessToken  = "access_token"
	CookieSessionToken = "session_token"
	CookieFingerprint  = "_fpid"
)

// SetAuthCookies writes the access and session token cookies.
func SetAuthCookies(w http.ResponseWriter, accessToken, sessionToken string, accessTTL, sessionTTL time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieAccessToken,
		Value:    accessToken,
		Path:     "/",
		MaxAge:   int(accessTTL.Seconds()),
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     CookieSessionToken,
		Value:    sessionToken,
		Path:     "/",
		MaxAge:   int(sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// SetAccessCookie rewrites only the access token cookie, used when a
// refresh keeps the existing session alive.
func SetAccessCookie(w http.ResponseWriter, accessToken string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieAccessToken,
		Value:    accessToken,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		SameSite: http.SameSiteLaxMode,
	})
}

// SetFingerprintCookie writes the stable device-fingerprint cookie.
func SetFingerprintCookie(w http.ResponseWriter, fingerprintID string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieFingerprint,
		Value:    fingerprintID,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearAuthCookies expires every auth cookie. Called on any session-token
// validation failure so a partial cookie set never survives.
func ClearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{CookieAccessToken, CookieSessionToken, CookieFingerprint} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// CookieValue returns the named cookie's value or "".
func CookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
