package service

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/nocturnehq/gatekeep/internal/auth/domain"
)

func TestSignUpSignsIn(t *testing.T) {
	ctx := context.Background()
	svc := newServices(t)
	fp := testFingerprint()

	res, err := svc.Auth.SignUp(ctx, "alice@example.com", "hunter2!", "Alice", "Smith", fp)
	require.NoError(t, err)
	require.False(t, res.MFARequired)
	require.NotEmpty(t, res.Tokens.AccessToken)
	require.NotEmpty(t, res.Tokens.SessionToken)

	access, err := svc.Tokens.VerifyAccess(res.Tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, res.User.ID, access.UserID)
	require.Equal(t, "alice@example.com", access.Email)

	session, err := svc.Tokens.VerifySession(res.Tokens.SessionToken)
	require.NoError(t, err)
	require.Equal(t, res.Session.ID, session.SessionID)
	require.Equal(t, fp.ID, session.FingerprintID)

	user, err := svc.Users.FindByID(ctx, res.User.ID)
	require.NoError(t, err)
	require.NotNil(t, user.LastSignInAt)
}

func TestSignUpDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	svc := newServices(t)
	fp := testFingerprint()

	_, err := svc.Auth.SignUp(ctx, "alice@example.com", "hunter2!", "Alice", "Smith", fp)
	require.NoError(t, err)

	_, err = svc.Auth.SignUp(ctx, "alice@example.com", "other", "Other", "Person", fp)
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestSignInWithoutMFA(t *testing.T) {
	ctx := context.Background()
	svc := newServices(t)
	fp := testFingerprint()

	_, err := svc.Auth.SignUp(ctx, "alice@example.com", "hunter2!", "Alice", "Smith", fp)
	require.NoError(t, err)

	res, err := svc.Auth.SignIn(ctx, "alice@example.com", "hunter2!", fp)
	require.NoError(t, err)
	require.False(t, res.MFARequired)
	require.NotEmpty(t, res.Tokens.SessionToken)

	_, err = svc.Auth.SignIn(ctx, "alice@example.com", "wrong", fp)
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Auth.SignIn(ctx, "nobody@example.com", "hunter2!", fp)
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSignInGatedOnMFA(t *testing.T) {
	ctx := context.Background()
	svc := newServices(t)
	fp := testFingerprint()

	res, err := svc.Auth.SignUp(ctx, "alice@example.com", "hunter2!", "Alice", "Smith", fp)
	require.NoError(t, err)
	secret, _ := enrollTOTP(t, svc, res.User, "Phone")

	gated, err := svc.Auth.SignIn(ctx, "alice@example.com", "hunter2!", fp)
	require.NoError(t, err)
	require.True(t, gated.MFARequired)
	require.NotEmpty(t, gated.Challenge.Token)
	require.Empty(t, gated.Tokens.SessionToken, "no tokens before MFA verification")
	require.Empty(t, gated.Tokens.AccessToken)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	final, err := svc.Auth.CompleteMFASignIn(ctx, gated.Challenge.Token, code, fp)
	require.NoError(t, err)
	require.False(t, final.MFARequired)
	require.NotEmpty(t, final.Tokens.SessionToken)
	require.Equal(t, res.User.ID, final.User.ID)
}

func TestCompleteMFASignInBadCode(t *testing.T) {
	ctx := context.Background()
	svc := newServices(t)
	fp := testFingerprint()

	res, err := svc.Auth.SignUp(ctx, "alice@example.com", "hunter2!", "Alice", "Smith", fp)
	require.NoError(t, err)
	enrollTOTP(t, svc, res.User, "Phone")

	gated, err := svc.Auth.SignIn(ctx, "alice@example.com", "hunter2!", fp)
	require.NoError(t, err)

	_, err = svc.Auth.CompleteMFASignIn(ctx, gated.Challenge.Token, "000000", fp)
	require.ErrorIs(t, err, ErrInvalidMFACode)
}

func TestValidateSession(t *testing.T) {
	ctx := context.Background()
	svc := newServices(t)
	fp := testFingerprint()

	res, err := svc.Auth.SignUp(ctx, "alice@example.com", "hunter2!", "Alice", "Smith", fp)
	require.NoError(t, err)

	session, err := svc.Auth.ValidateSession(ctx, res.Tokens.SessionToken, fp.ID)
	require.NoError(t, err)
	require.Equal(t, res.Session.ID, session.ID)

	// Wrong or missing fingerprint fails even with a valid token.
	_, err = svc.Auth.ValidateSession(ctx, res.Tokens.SessionToken, "fp-stolen")
	require.ErrorIs(t, err, ErrInvalidSession)
	_, err = svc.Auth.ValidateSession(ctx, res.Tokens.SessionToken, "")
	require.ErrorIs(t, err, ErrInvalidSession)

	// Garbage token fails.
	_, err = svc.Auth.ValidateSession(ctx, "garbage", fp.ID)
	require.ErrorIs(t, err, ErrInvalidSession)

	// An access token is not a session token.
	_, err = svc.Auth.ValidateSession(ctx, res.Tokens.AccessToken, fp.ID)
	require.ErrorIs(t, err, ErrInvalidSession)
}

func TestValidateSessionAfterLogout(t *testing.T) {
	ctx := context.Background()
	svc := newServices(t)
	fp := testFingerprint()

	res, err := svc.Auth.SignUp(ctx, "alice@example.com", "hunter2!", "Alice", "Smith", fp)
	require.NoError(t, err)

	require.NoError(t, svc.Auth.Logout(ctx, res.Session.ID, res.User.ID))

	// Token still verifies cryptographically but the row is gone.
	_, err = svc.Auth.ValidateSession(ctx, res.Tokens.SessionToken, fp.ID)
	require.ErrorIs(t, err, ErrInvalidSession)
}

func TestLogoutAllInvalidatesEveryDevice(t *testing.T) {
	ctx := context.Background()
	svc := newServices(t)

	fpA := domain.Fingerprint{ID: "fp-a"}
	fpB := domain.Fingerprint{ID: "fp-b"}

	res, err := svc.Auth.SignUp(ctx, "alice@example.com", "hunter2!", "Alice", "Smith", fpA)
	require.NoError(t, err)
	resB, err := svc.Auth.SignIn(ctx, "alice@example.com", "hunter2!", fpB)
	require.NoError(t, err)

	n, err := svc.Auth.LogoutAll(ctx, res.User.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	_, err = svc.Auth.ValidateSession(ctx, res.Tokens.SessionToken, fpA.ID)
	require.ErrorIs(t, err, ErrInvalidSession)
	_, err = svc.Auth.ValidateSession(ctx, resB.Tokens.SessionToken, fpB.ID)
	require.ErrorIs(t, err, ErrInvalidSession)
}

func TestRefreshAccess(t *testing.T) {
	ctx := context.Background()
	svc := newServices(t)
	fp := testFingerprint()

	res, err := svc.Auth.SignUp(ctx, "alice@example.com", "hunter2!", "Alice", "Smith", fp)
	require.NoError(t, err)

	access, err := svc.Auth.RefreshAccess(ctx, res.Session)
	require.NoError(t, err)

	claims, err := svc.Tokens.VerifyAccess(access)
	require.NoError(t, err)
	require.Equal(t, res.User.ID, claims.UserID)
}

func TestDeleteAccount(t *testing.T) {
	ctx := context.Background()
	svc := newServices(t)
	fp := testFingerprint()

	res, err := svc.Auth.SignUp(ctx, "alice@example.com", "hunter2!", "Alice", "Smith", fp)
	require.NoError(t, err)

	require.NoError(t, svc.Auth.DeleteAccount(ctx, res.User.ID))

	// Session cache entries were evicted along with the rows, so the still
	// cryptographically valid session token no longer validates.
	_, err = svc.Auth.ValidateSession(ctx, res.Tokens.SessionToken, fp.ID)
	require.ErrorIs(t, err, ErrInvalidSession)

	_, err = svc.Auth.SignIn(ctx, "alice@example.com", "hunter2!", fp)
	require.ErrorIs(t, err, ErrInvalidCredentials)

	// The email is free for registration again.
	_, err = svc.Auth.SignUp(ctx, "alice@example.com", "fresh-start", "Alice", "Smith", fp)
	require.NoError(t, err)
}
