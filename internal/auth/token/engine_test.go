package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()

	eng, err := NewEngine(Config{
		Issuer:        "gatekeep-test",
		AccessSecret:  []byte("access-secret-0123456789"),
		SessionSecret: []byte("session-secret-0123456789"),
		LoginSecret:   []byte("login-secret-0123456789"),
	})
	require.NoError(t, err)
	return eng
}

func TestConfigValidate(t *testing.T) {
	_, err := NewEngine(Config{})
	require.Error(t, err)

	same := []byte("shared-secret")
	_, err = NewEngine(Config{
		AccessSecret:  same,
		SessionSecret: same,
		LoginSecret:   []byte("other"),
	})
	require.Error(t, err, "shared secrets across kinds must be rejected")
}

func TestAccessRoundTrip(t *testing.T) {
	eng := testEngine(t)

	raw, err := eng.SignAccess("user-1", "alice@example.com")
	require.NoError(t, err)

	claims, err := eng.VerifyAccess(raw)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, "alice@example.com", claims.Email)
	require.Equal(t, "gatekeep-test", claims.Issuer)
	require.NotEmpty(t, claims.ID)
}

func TestSessionRoundTrip(t *testing.T) {
	eng := testEngine(t)

	raw, err := eng.SignSession("user-1", "sess-1", "fp-1")
	require.NoError(t, err)

	claims, err := eng.VerifySession(raw)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, "sess-1", claims.SessionID)
	require.Equal(t, "fp-1", claims.FingerprintID)
}

func TestLoginRoundTrip(t *testing.T) {
	eng := testEngine(t)

	raw, tokenID, err := eng.SignLogin("user-1")
	require.NoError(t, err)
	require.NotEmpty(t, tokenID)

	claims, err := eng.VerifyLogin(raw)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, tokenID, claims.ID)
}

func TestKindsDoNotCrossVerify(t *testing.T) {
	eng := testEngine(t)

	access, err := eng.SignAccess("user-1", "a@example.com")
	require.NoError(t, err)
	session, err := eng.SignSession("user-1", "sess-1", "fp-1")
	require.NoError(t, err)
	login, _, err := eng.SignLogin("user-1")
	require.NoError(t, err)

	_, err = eng.VerifySession(access)
	require.ErrorIs(t, err, ErrInvalidToken)
	_, err = eng.VerifyAccess(session)
	require.ErrorIs(t, err, ErrInvalidToken)
	_, err = eng.VerifySession(login)
	require.ErrorIs(t, err, ErrInvalidToken)
	_, err = eng.VerifyLogin(access)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiredTokenRejected(t *testing.T) {
	eng, err := NewEngine(Config{
		AccessSecret:  []byte("access-secret"),
		SessionSecret: []byte("session-secret"),
		LoginSecret:   []byte("login-secret"),
		AccessTTL:     -time.Minute,
	})
	require.NoError(t, err)

	raw, err := eng.SignAccess("user-1", "a@example.com")
	require.NoError(t, err)

	_, err = eng.VerifyAccess(raw)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestGarbageRejected(t *testing.T) {
	eng := testEngine(t)

	for _, raw := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := eng.VerifyAccess(raw)
		require.ErrorIs(t, err, ErrInvalidToken)
	}
}

func TestTamperedTokenRejected(t *testing.T) {
	eng := testEngine(t)

	raw, err := eng.SignAccess("user-1", "a@example.com")
	require.NoError(t, err)

	tampered := raw[:len(raw)-2] + "xx"
	_, err = eng.VerifyAccess(tampered)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestDefaultTTLs(t *testing.T) {
	eng := testEngine(t)
	require.Equal(t, DefaultAccessTTL, eng.AccessTTL())
	require.Equal(t, DefaultSessionTTL, eng.SessionTTL())
	require.Equal(t, DefaultLoginTTL, eng.LoginTTL())
}
