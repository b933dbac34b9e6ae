package domain

import "time"

// FactorKind discriminates the two second-factor types.
type FactorKind string

const (
	FactorTOTP        FactorKind = "TOTP"
	FactorBackupCodes FactorKind = "BACKUP_CODES"
)

// MFAFactor is a confirmed second factor. Secret is empty for backup-code
// factors; the codes themselves live in a separate table as fingerprints.
type MFAFactor struct {
	ID           string
	UserID       string
	Kind         FactorKind
	FriendlyName string
	Secret       string // base32 TOTP secret, never exposed in projections
	Enabled      bool
	CreatedAt    time.Time
}

// FactorSummary is the non-secret projection returned to callers.
type FactorSummary struct {
	ID           string     `json:"id"`
	Kind         FactorKind `json:"kind"`
	FriendlyName string     `json:"friendly_name"`
	Enabled      bool       `json:"enabled"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (f MFAFactor) Summary() FactorSummary {
	return FactorSummary{
		ID:           f.ID,
		Kind:         f.Kind,
		FriendlyName: f.FriendlyName,
		Enabled:      f.Enabled,
		CreatedAt:    f.CreatedAt,
	}
}

// PendingEnrollment is the cache-only record of an enrollment in progress.
// It is promoted to an MFAFactor on successful verification, otherwise it
// simply expires unclaimed. Never written to the durable store.
type PendingEnrollment struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Secret    string `json:"secret"`
	QRCodeURI string `json:"qr_code_uri"`
}

// EnrollmentResponse is returned from BeginEnrollment. The secret is shown
// so the user can type it manually when QR scanning is unavailable.
type EnrollmentResponse struct {
	ID        string `json:"id"`
	Secret    string `json:"secret"`
	QRCodeURI string `json:"qr_code_uri"`
}

// MFAChallenge is returned from sign-in when enrolled factors gate token
// issuance. No session exists yet at this point.
type MFAChallenge struct {
	Token   string          `json:"mfa_token"`
	Factors []FactorSummary `json:"factors"`
}
