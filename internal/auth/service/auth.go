package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/nocturnehq/gatekeep/internal/auth/domain"
	"github.com/nocturnehq/gatekeep/internal/auth/token"
	"github.com/nocturnehq/gatekeep/pkg/slogx"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidSession     = errors.New("invalid session")
)

// AuthService orchestrates the sign-up, sign-in, MFA and logout flows on
// top of the user, session and MFA services. It owns no state of its own.
type AuthService struct {
	Users    *UserService
	Sessions *SessionService
	MFA      *MFAService
	Tokens   *token.Engine
}

// SignInResult is the outcome of a credential check. Either a challenge
// (MFA gate, no session yet) or a signed-in user with tokens.
type SignInResult struct {
	MFARequired bool
	Challenge   domain.MFAChallenge
	User        domain.User
	Session     domain.Session
	Tokens      domain.TokenPair
}

// SignUp registers a new user and signs them straight in. A brand-new
// account cannot have MFA factors, so no challenge is possible here.
func (s *AuthService) SignUp(ctx context.Context, email, password, firstName, lastName string, fp domain.Fingerprint) (SignInResult, error) {
	user, err := s.Users.CreateUser(ctx, email, password, firstName, lastName)
	if err != nil {
		return SignInResult{}, err
	}

	slogx.FromContext(ctx).Info("user registered", "user_id", user.ID)
	return s.establishSession(ctx, user, fp)
}

// SignIn verifies credentials and either issues tokens or, when the user
// has TOTP enrolled, returns an MFA challenge without touching sessions.
func (s *AuthService) SignIn(ctx context.Context, email, password string, fp domain.Fingerprint) (SignInResult, error) {
	user, err := s.Users.VerifyCredentials(ctx, email, password)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return SignInResult{}, ErrInvalidCredentials
		}
		return SignInResult{}, err
	}

	enrolled, err := s.MFA.Enrolled(ctx, user.ID)
	if err != nil {
		return SignInResult{}, err
	}
	if enrolled {
		challenge, err := s.MFA.BeginLoginChallenge(ctx, user)
		if err != nil {
			return SignInResult{}, err
		}
		slogx.FromContext(ctx).Info("sign-in gated on MFA", "user_id", user.ID)
		return SignInResult{MFARequired: true, Challenge: challenge, User: user}, nil
	}

	return s.establishSession(ctx, user, fp)
}

// CompleteMFASignIn finishes a challenged sign-in. The login token proves
// the password already checked out; the code proves the second factor.
func (s *AuthService) CompleteMFASignIn(ctx context.Context, loginToken, code string, fp domain.Fingerprint) (SignInResult, error) {
	userID, err := s.MFA.CompleteLoginChallenge(ctx, loginToken, code)
	if err != nil {
		return SignInResult{}, err
	}

	user, err := s.Users.FindByID(ctx, userID)
	if err != nil {
		return SignInResult{}, err
	}

	return s.establishSession(ctx, user, fp)
}

// ValidateSession runs the two-phase session token check: the token must
// verify and carry the caller's fingerprint, and the session row it names
// must still exist. Every failure mode collapses to ErrInvalidSession.
func (s *AuthService) ValidateSession(ctx context.Context, rawToken, fingerprintID string) (domain.Session, error) {
	claims, err := s.Tokens.VerifySession(rawToken)
	if err != nil {
		return domain.Session{}, ErrInvalidSession
	}
	if fingerprintID == "" || claims.FingerprintID != fingerprintID {
		return domain.Session{}, ErrInvalidSession
	}

	session, err := s.Sessions.FindByID(ctx, claims.SessionID)
	if err != nil {
		return domain.Session{}, ErrInvalidSession
	}
	if session.UserID != claims.UserID || session.FingerprintID != fingerprintID {
		return domain.Session{}, ErrInvalidSession
	}
	return session, nil
}

// RefreshAccess mints a fresh access token for an already validated
// session without re-running authentication.
func (s *AuthService) RefreshAccess(ctx context.Context, session domain.Session) (string, error) {
	user, err := s.Users.FindByID(ctx, session.UserID)
	if err != nil {
		return "", err
	}
	access, err := s.Tokens.SignAccess(user.ID, user.Email)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return access, nil
}

// Logout tears down one session.
func (s *AuthService) Logout(ctx context.Context, sessionID, userID string) error {
	return s.Sessions.DeleteByID(ctx, sessionID, userID)
}

// LogoutAll tears down every session the user holds.
func (s *AuthService) LogoutAll(ctx context.Context, userID string) (int64, error) {
	return s.Sessions.DeleteAllForUser(ctx, userID)
}

// DeleteAccount removes the user and everything attached to them. Sessions
// go first so their cache entries are evicted; the row cascade would delete
// them anyway but would leave cached copies valid until expiry.
func (s *AuthService) DeleteAccount(ctx context.Context, userID string) error {
	if _, err := s.Sessions.DeleteAllForUser(ctx, userID); err != nil {
		return err
	}
	if err := s.Users.Delete(ctx, userID); err != nil {
		return err
	}
	slogx.FromContext(ctx).Info("account deleted", "user_id", userID)
	return nil
}

func (s *AuthService) establishSession(ctx context.Context, user domain.User, fp domain.Fingerprint) (SignInResult, error) {
	session, err := s.Sessions.CreateOrFind(ctx, user.ID, fp)
	if err != nil {
		return SignInResult{}, err
	}

	access, err := s.Tokens.SignAccess(user.ID, user.Email)
	if err != nil {
		return SignInResult{}, fmt.Errorf("failed to sign access token: %w", err)
	}
	sessionTok, err := s.Tokens.SignSession(user.ID, session.ID, session.FingerprintID)
	if err != nil {
		return SignInResult{}, fmt.Errorf("failed to sign session token: %w", err)
	}

	if err := s.Users.RecordSignIn(ctx, user.ID); err != nil {
		// Not worth failing the sign-in over a bookkeeping column.
		slogx.FromContext(ctx).Warn("failed to record sign-in time",
			"user_id", user.ID, "error", err)
	}

	slogx.FromContext(ctx).Info("session established",
		"user_id", user.ID, "session_id", session.ID)
	return SignInResult{
		User:    user,
		Session: session,
		Tokens:  domain.TokenPair{AccessToken: access, SessionToken: sessionTok},
	}, nil
}
