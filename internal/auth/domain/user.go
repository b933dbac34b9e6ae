package domain

import "time"

type User struct {
	ID            string
	Email         string
	FirstName     string
	LastName      string
	FullName      string
	PasswordHash  string // argon2id encoded
	EmailVerified bool
	LastSignInAt  *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Profile is the externally visible projection of a user. It never carries
// the password digest.
type Profile struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	FullName      string `json:"full_name"`
	EmailVerified bool   `json:"email_verified"`
}

func (u User) Profile() Profile {
	return Profile{
		ID:            u.ID,
		Email:         u.Email,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		FullName:      u.FullName,
		EmailVerified: u.EmailVerified,
	}
}
