package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nocturnehq/gatekeep/internal/auth/domain"
)

func TestCreateOrFindReusesDeviceSession(t *testing.T) {
	ctx := context.Background()
	svc := newServices(t)

	user, err := svc.Users.CreateUser(ctx, "alice@example.com", "hunter2!", "Alice", "Smith")
	require.NoError(t, err)
	fp := testFingerprint()

	first, err := svc.Sessions.CreateOrFind(ctx, user.ID, fp)
	require.NoError(t, err)

	second, err := svc.Sessions.CreateOrFind(ctx, user.ID, fp)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID, "same device must reuse its session")

	other, err := svc.Sessions.CreateOrFind(ctx, user.ID, domain.Fingerprint{ID: "fp-other"})
	require.NoError(t, err)
	require.NotEqual(t, first.ID, other.ID, "different device gets its own session")
}

func TestCreateOrFindReplacesExpiredSession(t *testing.T) {
	ctx := context.Background()
	svc := newServices(t)
	svc.Sessions.SessionTTL = -time.Minute // everything created already expired

	user, err := svc.Users.CreateUser(ctx, "alice@example.com", "hunter2!", "Alice", "Smith")
	require.NoError(t, err)
	fp := testFingerprint()

	dead, err := svc.Sessions.CreateOrFind(ctx, user.ID, fp)
	require.NoError(t, err)

	svc.Sessions.SessionTTL = time.Hour
	fresh, err := svc.Sessions.CreateOrFind(ctx, user.ID, fp)
	require.NoError(t, err)
	require.NotEqual(t, dead.ID, fresh.ID, "expired session must be replaced, not revived")

	_, err = svc.Sessions.FindByID(ctx, dead.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestFindByIDRejectsExpired(t *testing.T) {
	ctx := context.Background()
	svc := newServices(t)
	svc.Sessions.SessionTTL = -time.Minute

	user, err := svc.Users.CreateUser(ctx, "alice@example.com", "hunter2!", "Alice", "Smith")
	require.NoError(t, err)

	sess, err := svc.Sessions.CreateOrFind(ctx, user.ID, testFingerprint())
	require.NoError(t, err)

	_, err = svc.Sessions.FindByID(ctx, sess.ID)
	require.ErrorIs(t, err, ErrSessionNotFound, "expired session reads as missing even when cached")
}

func TestDeleteByID(t *testing.T) {
	ctx := context.Background()
	svc := newServices(t)

	user, err := svc.Users.CreateUser(ctx, "alice@example.com", "hunter2!", "Alice", "Smith")
	require.NoError(t, err)

	sess, err := svc.Sessions.CreateOrFind(ctx, user.ID, testFingerprint())
	require.NoError(t, err)

	require.NoError(t, svc.Sessions.DeleteByID(ctx, sess.ID, user.ID))
	require.ErrorIs(t, svc.Sessions.DeleteByID(ctx, sess.ID, user.ID), ErrSessionNotFound)

	_, err = svc.Sessions.FindByID(ctx, sess.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDeleteByIDScopedToOwner(t *testing.T) {
	ctx := context.Background()
	svc := newServices(t)

	alice, err := svc.Users.CreateUser(ctx, "alice@example.com", "hunter2!", "Alice", "Smith")
	require.NoError(t, err)
	mallory, err := svc.Users.CreateUser(ctx, "mallory@example.com", "hunter2!", "Mallory", "Jones")
	require.NoError(t, err)

	sess, err := svc.Sessions.CreateOrFind(ctx, alice.ID, testFingerprint())
	require.NoError(t, err)

	require.ErrorIs(t, svc.Sessions.DeleteByID(ctx, sess.ID, mallory.ID), ErrSessionNotFound)

	// Alice's session is untouched.
	got, err := svc.Sessions.FindByID(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, alice.ID, got.UserID)
}

func TestDeleteAllForUserDropsCachedSessions(t *testing.T) {
	ctx := context.Background()
	svc := newServices(t)

	user, err := svc.Users.CreateUser(ctx, "alice@example.com", "hunter2!", "Alice", "Smith")
	require.NoError(t, err)

	a, err := svc.Sessions.CreateOrFind(ctx, user.ID, domain.Fingerprint{ID: "fp-a"})
	require.NoError(t, err)
	b, err := svc.Sessions.CreateOrFind(ctx, user.ID, domain.Fingerprint{ID: "fp-b"})
	require.NoError(t, err)

	n, err := svc.Sessions.DeleteAllForUser(ctx, user.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	for _, id := range []string{a.ID, b.ID} {
		_, err = svc.Sessions.FindByID(ctx, id)
		require.ErrorIs(t, err, ErrSessionNotFound, "cached copy must not outlive the row")
	}
}

func TestPurgeExpired(t *testing.T) {
	ctx := context.Background()
	svc := newServices(t)
	svc.Sessions.SessionTTL = -time.Minute

	user, err := svc.Users.CreateUser(ctx, "alice@example.com", "hunter2!", "Alice", "Smith")
	require.NoError(t, err)
	_, err = svc.Sessions.CreateOrFind(ctx, user.ID, testFingerprint())
	require.NoError(t, err)

	require.NoError(t, svc.Sessions.PurgeExpired(ctx))

	sessions, err := svc.Sessions.ListForUser(ctx, user.ID)
	require.NoError(t, err)
	require.Empty(t, sessions)
}

func TestFindByFingerprintAndUser(t *testing.T) {
	ctx := context.Background()
	svc := newServices(t)
	fp := testFingerprint()

	user, err := svc.Users.CreateUser(ctx, "alice@example.com", "hunter2!", "Alice", "Smith")
	require.NoError(t, err)

	created, err := svc.Sessions.CreateOrFind(ctx, user.ID, fp)
	require.NoError(t, err)

	found, err := svc.Sessions.FindByFingerprintAndUser(ctx, fp.ID, user.ID)
	require.NoError(t, err)
	require.Equal(t, created.ID, found.ID)

	_, err = svc.Sessions.FindByFingerprintAndUser(ctx, "other-device", user.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)
}
