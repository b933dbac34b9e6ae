package domain

import "time"

// Session binds a user to one device. At most one row may exist per
// (user id, fingerprint id) pair; the store enforces this with a unique
// index so concurrent first-contact requests cannot race into duplicates.
type Session struct {
	ID              string
	UserID          string
	FingerprintID   string
	FingerprintData string // opaque metadata blob captured at creation
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

// Fingerprint is a stable opaque identifier for one client device plus the
// request metadata it was derived from.
type Fingerprint struct {
	ID   string
	Data string
}
