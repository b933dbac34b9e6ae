package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nocturnehq/gatekeep/internal/auth/cache"
	"github.com/nocturnehq/gatekeep/internal/auth/domain"
	"github.com/nocturnehq/gatekeep/internal/auth/store"
	"github.com/nocturnehq/gatekeep/pkg/idx"
	"github.com/nocturnehq/gatekeep/pkg/slogx"
)

var ErrSessionNotFound = errors.New("session not found")

const (
	// DefaultSessionTTL is how long a server-side session row lives. It
	// matches the session token lifetime so neither outlives the other.
	DefaultSessionTTL = 7 * 24 * time.Hour

	sessionCacheTTL = time.Hour
)

// SessionService manages server-side session rows. A session is keyed by
// (user, fingerprint): one row per device, reused across sign-ins from the
// same browser.
type SessionService struct {
	Store store.Store
	Cache *cache.Client

	// SessionTTL overrides DefaultSessionTTL when positive.
	SessionTTL time.Duration
}

func sessionKey(id string) string { return cache.Key("session", "cache", id) }

func (s *SessionService) ttl() time.Duration {
	if s.SessionTTL > 0 {
		return s.SessionTTL
	}
	return DefaultSessionTTL
}

// CreateOrFind returns the live session for the (user, fingerprint) pair,
// creating one when none exists. Expired rows are replaced rather than
// revived. Two concurrent sign-ins from the same device race on the
// unique index; the loser retries the find.
// FindByFingerprintAndUser resolves the device binding. It reads the store
// directly: the (user, fingerprint) unique index is what makes this row the
// single source of truth for a device, and a second cache key over it would
// reintroduce the stale-duplicate problem the index exists to close.
func (s *SessionService) FindByFingerprintAndUser(ctx context.Context, fingerprintID, userID string) (domain.Session, error) {
	session, err := s.Store.Sessions().GetSessionByFingerprintAndUser(ctx, fingerprintID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("failed to look up session: %w", err)
	}
	return session, nil
}

func (s *SessionService) CreateOrFind(ctx context.Context, userID string, fp domain.Fingerprint) (domain.Session, error) {
	existing, err := s.Store.Sessions().GetSessionByFingerprintAndUser(ctx, fp.ID, userID)
	switch {
	case err == nil:
		if existing.ExpiresAt.After(time.Now()) {
			return existing, nil
		}
		// Stale row for this device. Drop it and fall through to create.
		if _, err := s.Store.Sessions().DeleteSession(ctx, existing.ID, userID); err != nil {
			return domain.Session{}, fmt.Errorf("failed to replace expired session: %w", err)
		}
		s.Cache.Del(ctx, sessionKey(existing.ID))
	case errors.Is(err, store.ErrNotFound):
		// No session for this device yet.
	default:
		return domain.Session{}, fmt.Errorf("failed to look up session: %w", err)
	}

	now := time.Now().UTC()
	session := domain.Session{
		ID:              idx.New().String(),
		UserID:          userID,
		FingerprintID:   fp.ID,
		FingerprintData: fp.Data,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.ttl()),
	}

	err = s.Store.Sessions().CreateSession(ctx, session)
	if errors.Is(err, store.ErrAlreadyExists) {
		// Lost the race to a concurrent sign-in from the same device; the
		// winner's row is the session.
		slogx.FromContext(ctx).Debug("session create raced, reusing winner",
			"user_id", userID, "fingerprint_id", fp.ID)
		won, ferr := s.Store.Sessions().GetSessionByFingerprintAndUser(ctx, fp.ID, userID)
		if ferr != nil {
			return domain.Session{}, fmt.Errorf("failed to load raced session: %w", ferr)
		}
		return won, nil
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("failed to create session: %w", err)
	}

	cache.Put(ctx, s.Cache, sessionKey(session.ID), &session, sessionCacheTTL)
	return session, nil
}

// FindByID returns a session, cache-aside. Expired sessions read as
// missing even when the row still exists.
func (s *SessionService) FindByID(ctx context.Context, id string) (domain.Session, error) {
	session, err := cache.Fetch(ctx, s.Cache, sessionKey(id), cache.DefaultOptions(sessionCacheTTL),
		func(ctx context.Context) (*domain.Session, error) {
			sess, err := s.Store.Sessions().GetSessionByID(ctx, id)
			if errors.Is(err, store.ErrNotFound) {
				return nil, nil
			}
			if err != nil {
				return nil, fmt.Errorf("failed to load session: %w", err)
			}
			return &sess, nil
		})
	if err != nil {
		return domain.Session{}, err
	}
	if session == nil || !session.ExpiresAt.After(time.Now()) {
		return domain.Session{}, ErrSessionNotFound
	}
	return *session, nil
}

// DeleteByID removes a session scoped to its owner. Returns
// ErrSessionNotFound when no row was deleted, so callers can
// distinguish "logged out" from "was never logged in".
func (s *SessionService) DeleteByID(ctx context.Context, id, userID string) error {
	deleted, err := s.Store.Sessions().DeleteSession(ctx, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	s.Cache.Del(ctx, sessionKey(id))
	if !deleted {
		return ErrSessionNotFound
	}
	return nil
}

// ListForUser returns the sessions a user holds across devices.
func (s *SessionService) ListForUser(ctx context.Context, userID string) ([]domain.Session, error) {
	sessions, err := s.Store.Sessions().ListSessionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// DeleteAllForUser signs the user out of every device. Returns how many
// sessions were removed.
func (s *SessionService) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	// Snapshot ids first so cached copies can be dropped; a session left
	// in cache after its row is gone would validate until the TTL.
	sessions, err := s.Store.Sessions().ListSessionsByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	deleted, err := s.Store.Sessions().DeleteAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}
	for _, sess := range sessions {
		s.Cache.Del(ctx, sessionKey(sess.ID))
	}
	return deleted, nil
}

// PurgeExpired removes dead session rows. Run periodically.
func (s *SessionService) PurgeExpired(ctx context.Context) error {
	if err := s.Store.Sessions().DeleteExpiredSessions(ctx); err != nil {
		return fmt.Errorf("failed to purge expired sessions: %w", err)
	}
	return nil
}
