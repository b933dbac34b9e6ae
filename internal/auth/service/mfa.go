package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/nocturnehq/gatekeep/internal/auth/cache"
	"github.com/nocturnehq/gatekeep/internal/auth/domain"
	"github.com/nocturnehq/gatekeep/internal/auth/store"
	"github.com/nocturnehq/gatekeep/internal/auth/token"
	"github.com/nocturnehq/gatekeep/pkg/cryptox"
	"github.com/nocturnehq/gatekeep/pkg/idx"
	"github.com/nocturnehq/gatekeep/pkg/slogx"
)

const (
	maxTOTPFactors     = 2
	backupCodeCount    = 10
	pendingEnrollTTL   = 10 * time.Minute
	factorListCacheTTL = time.Hour
	qrImageSize        = 256
)

var (
	ErrFactorLimit        = errors.New("TOTP factor limit reached")
	ErrEnrollmentNotFound = errors.New("enrollment not found or expired")
	ErrInvalidMFACode     = errors.New("invalid MFA code")
	ErrChallengeExpired   = errors.New("MFA challenge expired or already used")
	ErrFactorNotFound     = errors.New("factor not found")
)

// MFAService runs TOTP enrollment and the login-time challenge. Enrollments
// in progress live only in the cache; confirmed factors and backup-code
// fingerprints live in the store.
type MFAService struct {
	Store  store.Store
	Cache  *cache.Client
	Tokens *token.Engine
	Issuer string // account issuer shown in authenticator apps
}

func pendingKey(id string) string     { return cache.Key("mfa", "temporary", id) }
func factorsKey(userID string) string { return cache.Key("mfa", "factors", userID) }
func loginNonceKey(jti string) string { return cache.Key("mfa", "login", jti) }

// BeginEnrollment provisions a new TOTP secret for the user and caches it
// as a pending enrollment. Nothing durable happens until the user proves
// possession via CompleteEnrollment; unclaimed enrollments just expire.
func (s *MFAService) BeginEnrollment(ctx context.Context, user domain.User) (domain.EnrollmentResponse, error) {
	count, err := s.Store.MFAFactors().CountFactorsByKind(ctx, user.ID, domain.FactorTOTP)
	if err != nil {
		return domain.EnrollmentResponse{}, fmt.Errorf("failed to count factors: %w", err)
	}
	if count >= maxTOTPFactors {
		return domain.EnrollmentResponse{}, ErrFactorLimit
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: user.Email,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return domain.EnrollmentResponse{}, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	qr, err := qrDataURI(key)
	if err != nil {
		return domain.EnrollmentResponse{}, fmt.Errorf("failed to render QR code: %w", err)
	}

	pending := domain.PendingEnrollment{
		ID:        idx.New().String(),
		UserID:    user.ID,
		Secret:    key.Secret(),
		QRCodeURI: qr,
	}
	cache.Put(ctx, s.Cache, pendingKey(pending.ID), &pending, pendingEnrollTTL)

	return domain.EnrollmentResponse{
		ID:        pending.ID,
		Secret:    pending.Secret,
		QRCodeURI: pending.QRCodeURI,
	}, nil
}

// CompleteEnrollment verifies the user's first TOTP code against a pending
// enrollment and promotes it to a durable factor. The first confirmed
// factor also mints the user's one-time set of backup codes, returned in
// plaintext exactly once.
func (s *MFAService) CompleteEnrollment(ctx context.Context, userID, enrollmentID, code, friendlyName string) ([]string, error) {
	pending, err := cache.Fetch(ctx, s.Cache, pendingKey(enrollmentID), cache.DefaultOptions(pendingEnrollTTL),
		func(ctx context.Context) (*domain.PendingEnrollment, error) { return nil, nil })
	if err != nil {
		return nil, err
	}
	if pending == nil || pending.UserID != userID {
		return nil, ErrEnrollmentNotFound
	}

	if !totp.Validate(code, pending.Secret) {
		// Wrong code leaves the enrollment pending for another attempt.
		return nil, ErrInvalidMFACode
	}

	// Re-check the limit; the count may have changed since BeginEnrollment.
	count, err := s.Store.MFAFactors().CountFactorsByKind(ctx, userID, domain.FactorTOTP)
	if err != nil {
		return nil, fmt.Errorf("failed to count factors: %w", err)
	}
	if count >= maxTOTPFactors {
		return nil, ErrFactorLimit
	}

	factor := domain.MFAFactor{
		ID:           idx.New().String(),
		UserID:       userID,
		Kind:         domain.FactorTOTP,
		FriendlyName: friendlyName,
		Secret:       pending.Secret,
		Enabled:      true,
		CreatedAt:    time.Now().UTC(),
	}

	var plainCodes []string
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.MFAFactors().CreateFactor(ctx, factor); err != nil {
			return fmt.Errorf("failed to store factor: %w", err)
		}

		backupCount, err := tx.MFAFactors().CountFactorsByKind(ctx, userID, domain.FactorBackupCodes)
		if err != nil {
			return fmt.Errorf("failed to count backup factors: %w", err)
		}
		if backupCount > 0 {
			return nil // codes were issued alongside an earlier factor
		}

		plainCodes = make([]string, backupCodeCount)
		for i := range plainCodes {
			c, err := cryptox.GenerateBackupCode()
			if err != nil {
				return fmt.Errorf("failed to generate backup code: %w", err)
			}
			plainCodes[i] = c
			if err := tx.BackupCodes().CreateBackupCode(ctx, userID, cryptox.FingerprintToken(c)); err != nil {
				return fmt.Errorf("failed to store backup code: %w", err)
			}
		}

		backupFactor := domain.MFAFactor{
			ID:           idx.New().String(),
			UserID:       userID,
			Kind:         domain.FactorBackupCodes,
			FriendlyName: "Backup codes",
			Enabled:      true,
			CreatedAt:    time.Now().UTC(),
		}
		if err := tx.MFAFactors().CreateFactor(ctx, backupFactor); err != nil {
			return fmt.Errorf("failed to store backup factor: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Cache.Del(ctx, pendingKey(enrollmentID))
	s.Cache.Del(ctx, factorsKey(userID))
	return plainCodes, nil
}

// ListFactors returns the user's factor summaries, cache-aside.
func (s *MFAService) ListFactors(ctx context.Context, userID string) ([]domain.FactorSummary, error) {
	summaries, err := cache.Fetch(ctx, s.Cache, factorsKey(userID), cache.DefaultOptions(factorListCacheTTL),
		func(ctx context.Context) (*[]domain.FactorSummary, error) {
			factors, err := s.Store.MFAFactors().ListFactorsByUser(ctx, userID)
			if err != nil {
				return nil, fmt.Errorf("failed to list factors: %w", err)
			}
			out := make([]domain.FactorSummary, 0, len(factors))
			for _, f := range factors {
				out = append(out, f.Summary())
			}
			return &out, nil
		})
	if err != nil {
		return nil, err
	}
	if summaries == nil {
		return nil, nil
	}
	return *summaries, nil
}

// Enrolled reports whether the user has any enabled TOTP factor, i.e.
// whether sign-in must route through the MFA challenge.
func (s *MFAService) Enrolled(ctx context.Context, userID string) (bool, error) {
	count, err := s.Store.MFAFactors().CountFactorsByKind(ctx, userID, domain.FactorTOTP)
	if err != nil {
		return false, fmt.Errorf("failed to count factors: %w", err)
	}
	return count > 0, nil
}

// RemoveFactor deletes a TOTP factor. When the last TOTP factor goes, the
// backup-code factor and its unused codes go with it; backup codes are
// meaningless without a primary factor.
func (s *MFAService) RemoveFactor(ctx context.Context, userID, factorID string) error {
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.MFAFactors().DeleteFactor(ctx, factorID, userID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrFactorNotFound
			}
			return fmt.Errorf("failed to delete factor: %w", err)
		}

		remaining, err := tx.MFAFactors().CountFactorsByKind(ctx, userID, domain.FactorTOTP)
		if err != nil {
			return fmt.Errorf("failed to count factors: %w", err)
		}
		if remaining > 0 {
			return nil
		}

		factors, err := tx.MFAFactors().ListFactorsByUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to list factors: %w", err)
		}
		for _, f := range factors {
			if f.Kind != domain.FactorBackupCodes {
				continue
			}
			if err := tx.MFAFactors().DeleteFactor(ctx, f.ID, userID); err != nil {
				return fmt.Errorf("failed to delete backup factor: %w", err)
			}
		}
		if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, userID); err != nil {
			return fmt.Errorf("failed to delete backup codes: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.Cache.Del(ctx, factorsKey(userID))
	return nil
}

// BeginLoginChallenge issues the short-lived login token that bridges a
// correct password and a verified second factor. The token id doubles as
// a single-use nonce in the cache; verification without the nonce fails
// even when the signature is still valid.
func (s *MFAService) BeginLoginChallenge(ctx context.Context, user domain.User) (domain.MFAChallenge, error) {
	factors, err := s.ListFactors(ctx, user.ID)
	if err != nil {
		return domain.MFAChallenge{}, err
	}

	raw, tokenID, err := s.Tokens.SignLogin(user.ID)
	if err != nil {
		return domain.MFAChallenge{}, fmt.Errorf("failed to sign login token: %w", err)
	}
	s.Cache.Set(ctx, loginNonceKey(tokenID), []byte(user.ID), s.Tokens.LoginTTL())

	return domain.MFAChallenge{Token: raw, Factors: factors}, nil
}

// CompleteLoginChallenge verifies a second-factor code against an open
// challenge and returns the user id. TOTP codes are tried against every
// enabled TOTP factor; failing that, the code is consumed as a backup
// code. Success burns the challenge nonce so the token cannot be replayed.
func (s *MFAService) CompleteLoginChallenge(ctx context.Context, rawToken, code string) (string, error) {
	claims, err := s.Tokens.VerifyLogin(rawToken)
	if err != nil {
		return "", ErrChallengeExpired
	}
	if !s.Cache.Exists(ctx, loginNonceKey(claims.ID)) {
		return "", ErrChallengeExpired
	}

	ok, err := s.verifySecondFactor(ctx, claims.UserID, code)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrInvalidMFACode
	}

	s.Cache.Del(ctx, loginNonceKey(claims.ID))
	return claims.UserID, nil
}

func (s *MFAService) verifySecondFactor(ctx context.Context, userID, code string) (bool, error) {
	factors, err := s.Store.MFAFactors().ListFactorsByUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to list factors: %w", err)
	}

	for _, f := range factors {
		if f.Kind != domain.FactorTOTP || !f.Enabled {
			continue
		}
		if totp.Validate(code, f.Secret) {
			return true, nil
		}
	}

	// Not a valid TOTP code; try consuming it as a backup code.
	err = s.Store.BackupCodes().ConsumeBackupCode(ctx, userID, cryptox.FingerprintToken(code))
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to consume backup code: %w", err)
	}

	remaining, err := s.Store.BackupCodes().CountBackupCodes(ctx, userID)
	if err == nil && remaining <= 2 {
		slogx.FromContext(ctx).Warn("backup codes running low",
			"user_id", userID, "remaining", remaining)
	}
	return true, nil
}

// qrDataURI renders the otpauth provisioning URI as an inline PNG.
func qrDataURI(key *otp.Key) (string, error) {
	img, err := key.Image(qrImageSize, qrImageSize)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
