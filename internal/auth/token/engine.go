// Package token signs and verifies the three JWT kinds the auth flows
// hand out: short-lived access tokens, long-lived session tokens and the
// five-minute login tokens that bridge password and MFA verification.
//
// Each kind has its own secret, so a token of one kind can never verify
// as another even when the claim shapes happen to overlap.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nocturnehq/gatekeep/pkg/idx"
)

// ErrInvalidToken is returned for every verification failure: bad
// signature, expired, malformed, wrong kind. Callers never learn which.
var ErrInvalidToken = errors.New("token: invalid token")

// Default lifetimes for each token kind.
const (
	DefaultAccessTTL  = time.Hour
	DefaultSessionTTL = 7 * 24 * time.Hour
	DefaultLoginTTL   = 5 * time.Minute
)

// Config carries the signing material and lifetimes for an Engine.
type Config struct {
	Issuer string

	AccessSecret  []byte
	SessionSecret []byte
	LoginSecret   []byte

	AccessTTL  time.Duration
	SessionTTL time.Duration
	LoginTTL   time.Duration
}

// Validate checks that all secrets are present and distinct.
func (c Config) Validate() error {
	if len(c.AccessSecret) == 0 || len(c.SessionSecret) == 0 || len(c.LoginSecret) == 0 {
		return errors.New("token: all three signing secrets are required")
	}
	if string(c.AccessSecret) == string(c.SessionSecret) ||
		string(c.AccessSecret) == string(c.LoginSecret) ||
		string(c.SessionSecret) == string(c.LoginSecret) {
		return errors.New("token: signing secrets must be distinct")
	}
	return nil
}

// AccessClaims identify the user for lightweight request authentication.
type AccessClaims struct {
	UserID string `json:"uid"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// SessionClaims bind a session token to one server-side session row and
// the browser fingerprint that created it.
type SessionClaims struct {
	UserID        string `json:"uid"`
	SessionID     string `json:"sid"`
	FingerprintID string `json:"fpid"`
	jwt.RegisteredClaims
}

// LoginClaims carry a half-authenticated user through the MFA challenge.
type LoginClaims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// Engine issues and verifies tokens. It is safe for concurrent use.
type Engine struct {
	cfg Config
}

// NewEngine builds an Engine, filling in default TTLs where the config
// leaves them zero.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.LoginTTL == 0 {
		cfg.LoginTTL = DefaultLoginTTL
	}
	return &Engine{cfg: cfg}, nil
}

// AccessTTL reports the configured access token lifetime.
func (e *Engine) AccessTTL() time.Duration { return e.cfg.AccessTTL }

// SessionTTL reports the configured session token lifetime.
func (e *Engine) SessionTTL() time.Duration { return e.cfg.SessionTTL }

// LoginTTL reports the configured login token lifetime.
func (e *Engine) LoginTTL() time.Duration { return e.cfg.LoginTTL }

func (e *Engine) registered(ttl time.Duration) jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		Issuer:    e.cfg.Issuer,
		ID:        idx.New().String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

// SignAccess issues an access token for the given user.
func (e *Engine) SignAccess(userID, email string) (string, error) {
	claims := AccessClaims{
		UserID:           userID,
		Email:            email,
		RegisteredClaims: e.registered(e.cfg.AccessTTL),
	}
	return e.sign(claims, e.cfg.AccessSecret)
}

// SignSession issues a session token bound to a session row and
// fingerprint.
func (e *Engine) SignSession(userID, sessionID, fingerprintID string) (string, error) {
	claims := SessionClaims{
		UserID:           userID,
		SessionID:        sessionID,
		FingerprintID:    fingerprintID,
		RegisteredClaims: e.registered(e.cfg.SessionTTL),
	}
	return e.sign(claims, e.cfg.SessionSecret)
}

// SignLogin issues a short-lived login token for a user awaiting MFA
// verification. The returned token ID doubles as the single-use nonce.
func (e *Engine) SignLogin(userID string) (token string, tokenID string, err error) {
	claims := LoginClaims{
		UserID:           userID,
		RegisteredClaims: e.registered(e.cfg.LoginTTL),
	}
	signed, err := e.sign(claims, e.cfg.LoginSecret)
	if err != nil {
		return "", "", err
	}
	return signed, claims.ID, nil
}

func (e *Engine) sign(claims jwt.Claims, secret []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

// VerifyAccess parses and verifies an access token.
func (e *Engine) VerifyAccess(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := e.verify(raw, claims, e.cfg.AccessSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifySession parses and verifies a session token.
func (e *Engine) VerifySession(raw string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	if err := e.verify(raw, claims, e.cfg.SessionSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyLogin parses and verifies a login token.
func (e *Engine) VerifyLogin(raw string) (*LoginClaims, error) {
	claims := &LoginClaims{}
	if err := e.verify(raw, claims, e.cfg.LoginSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

func (e *Engine) verify(raw string, claims jwt.Claims, secret []byte) error {
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuedAt())
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
