package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/nocturnehq/gatekeep/internal/auth/cache"
	"github.com/nocturnehq/gatekeep/internal/auth/domain"
	"github.com/nocturnehq/gatekeep/internal/auth/store/drivers/sqlite"
	"github.com/nocturnehq/gatekeep/internal/auth/token"
	"github.com/nocturnehq/gatekeep/pkg/cryptox"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "gatekeep-service-test")
	if err != nil {
		panic(err)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper"))

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

// services bundles everything a flow test needs, backed by an in-memory
// sqlite store and a miniredis cache.
type services struct {
	Store    *sqlite.Store
	Cache    *cache.Client
	Redis    *miniredis.Miniredis
	Tokens   *token.Engine
	Users    *UserService
	Sessions *SessionService
	MFA      *MFAService
	Auth     *AuthService
}

func newServices(t *testing.T) *services {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	c := cache.NewClient(rdb)

	eng, err := token.NewEngine(token.Config{
		Issuer:        "gatekeep-test",
		AccessSecret:  []byte("test-access-secret"),
		SessionSecret: []byte("test-session-secret"),
		LoginSecret:   []byte("test-login-secret"),
	})
	require.NoError(t, err)

	users := &UserService{Store: st, Cache: c}
	sessions := &SessionService{Store: st, Cache: c}
	mfa := &MFAService{Store: st, Cache: c, Tokens: eng, Issuer: "Gatekeep"}

	return &services{
		Store:    st,
		Cache:    c,
		Redis:    mr,
		Tokens:   eng,
		Users:    users,
		Sessions: sessions,
		MFA:      mfa,
		Auth:     &AuthService{Users: users, Sessions: sessions, MFA: mfa, Tokens: eng},
	}
}

func testFingerprint() domain.Fingerprint {
	return domain.Fingerprint{ID: "fp-test-1", Data: `{"ua":"test"}`}
}
