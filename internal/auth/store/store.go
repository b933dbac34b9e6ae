package store

import (
	"context"
	"errors"

	"github.com/nocturnehq/gatekeep/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite,
// postgres) implement this. Sub-repositories keep concerns tidy and make it
// obvious which entity an operation touches.
type Store interface {
	Users() Users
	Sessions() Sessions
	MFAFactors() MFAFactors
	BackupCodes() BackupCodes

	ApplyMigrations() error

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transaction-scoped Store with explicit Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail is used during sign-in and duplicate-email checks.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser inserts a new user (id provided by the app via ULID).
	// Returns ErrAlreadyExists when the email is taken.
	CreateUser(ctx context.Context, u domain.User) error

	// UpdateUser mutates profile fields and bumps updated_at.
	UpdateUser(ctx context.Context, u domain.User) error

	// UpdateLastSignIn stamps the last successful authentication.
	UpdateLastSignIn(ctx context.Context, userID string) error

	// DeleteUser cascades to sessions, mfa_factors and backup_codes.
	DeleteUser(ctx context.Context, userID string) error
}

type Sessions interface {
	// CreateSession inserts a session row. Returns ErrAlreadyExists when a
	// row for the same (user_id, fingerprint_id) pair already exists, which
	// callers treat as "retry the find".
	CreateSession(ctx context.Context, s domain.Session) error

	// GetSessionByID returns a session by id.
	GetSessionByID(ctx context.Context, id string) (domain.Session, error)

	// GetSessionByFingerprintAndUser looks up a device binding.
	GetSessionByFingerprintAndUser(ctx context.Context, fingerprintID, userID string) (domain.Session, error)

	// ListSessionsByUser returns every session a user holds, oldest first.
	ListSessionsByUser(ctx context.Context, userID string) ([]domain.Session, error)

	// DeleteSession removes a session scoped to its owning user. The bool
	// reports whether a row was actually deleted.
	DeleteSession(ctx context.Context, id, userID string) (bool, error)

	// DeleteAllForUser removes every session a user holds (logout-all).
	// Returns the number of rows removed.
	DeleteAllForUser(ctx context.Context, userID string) (int64, error)

	// DeleteExpiredSessions is housekeeping.
	DeleteExpiredSessions(ctx context.Context) error
}

type MFAFactors interface {
	// CreateFactor persists a confirmed factor.
	CreateFactor(ctx context.Context, f domain.MFAFactor) error

	// ListFactorsByUser returns all factors a user holds, oldest first.
	ListFactorsByUser(ctx context.Context, userID string) ([]domain.MFAFactor, error)

	// CountFactorsByKind reports how many factors of the kind the user has.
	CountFactorsByKind(ctx context.Context, userID string, kind domain.FactorKind) (int, error)

	// DeleteFactor removes a factor scoped to its owning user.
	DeleteFactor(ctx context.Context, id, userID string) error
}

type BackupCodes interface {
	// CreateBackupCode stores one code fingerprint for a user.
	CreateBackupCode(ctx context.Context, userID, codeHash string) error

	// ConsumeBackupCode removes a code by fingerprint, returning
	// ErrNotFound when no such unused code exists. Deletion is the
	// single-use guarantee.
	ConsumeBackupCode(ctx context.Context, userID, codeHash string) error

	// CountBackupCodes returns the number of unused codes for a user.
	CountBackupCodes(ctx context.Context, userID string) (int, error)

	// DeleteAllBackupCodes removes a user's whole set.
	DeleteAllBackupCodes(ctx context.Context, userID string) error
}
