package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nocturnehq/gatekeep/internal/auth/cache"
	"github.com/nocturnehq/gatekeep/internal/auth/domain"
	"github.com/nocturnehq/gatekeep/internal/auth/store"
	"github.com/nocturnehq/gatekeep/pkg/cryptox"
	"github.com/nocturnehq/gatekeep/pkg/idx"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
)

const userCacheTTL = time.Hour

// UserService owns user records and their cache entries. Reads go through
// the cache-aside helper; writes go to the store first and then refresh or
// drop the cached copy.
type UserService struct {
	Store store.Store
	Cache *cache.Client
}

func userKey(id string) string { return cache.Key("user", "cache", id) }

// CreateUser registers a new user with a hashed password. The email is
// the uniqueness anchor; a duplicate surfaces as ErrEmailTaken.
func (s *UserService) CreateUser(ctx context.Context, email, password, firstName, lastName string) (domain.User, error) {
	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	user := domain.User{
		ID:           idx.New().String(),
		Email:        email,
		FirstName:    firstName,
		LastName:     lastName,
		FullName:     firstName + " " + lastName,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.Store.Users().CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, ErrEmailTaken
		}
		return domain.User{}, fmt.Errorf("failed to create user: %w", err)
	}

	cache.Put(ctx, s.Cache, userKey(user.ID), &user, userCacheTTL)
	return user, nil
}

// FindByID returns a user, cache-aside.
func (s *UserService) FindByID(ctx context.Context, id string) (domain.User, error) {
	user, err := cache.Fetch(ctx, s.Cache, userKey(id), cache.DefaultOptions(userCacheTTL),
		func(ctx context.Context) (*domain.User, error) {
			u, err := s.Store.Users().GetUserByID(ctx, id)
			if errors.Is(err, store.ErrNotFound) {
				return nil, nil
			}
			if err != nil {
				return nil, fmt.Errorf("failed to load user: %w", err)
			}
			return &u, nil
		})
	if err != nil {
		return domain.User{}, err
	}
	if user == nil {
		return domain.User{}, ErrUserNotFound
	}
	return *user, nil
}

// FindByEmail goes straight to the store. Sign-in is the only caller and
// it needs the canonical password hash, not a possibly stale copy.
func (s *UserService) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to load user: %w", err)
	}
	return u, nil
}

// VerifyCredentials checks an email/password pair and returns the user on
// success. Unknown email and wrong password are indistinguishable to the
// caller.
func (s *UserService) VerifyCredentials(ctx context.Context, email, password string) (domain.User, error) {
	user, err := s.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Burn comparable time so a missing account is not observable
			// through response latency.
			_ = cryptox.VerifyPassword(password, dummyPasswordHash())
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}

	if err := cryptox.VerifyPassword(password, user.PasswordHash); err != nil {
		return domain.User{}, ErrUserNotFound
	}
	return user, nil
}

// UpdateProfile changes the user's name fields and refreshes the cached
// copy. Email and password changes are deliberately out of scope here;
// they need their own verification flows.
func (s *UserService) UpdateProfile(ctx context.Context, userID, firstName, lastName string) (domain.User, error) {
	user, err := s.FindByID(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}

	user.FirstName = firstName
	user.LastName = lastName
	user.FullName = firstName + " " + lastName
	user.UpdatedAt = time.Now().UTC()

	if err := s.Store.Users().UpdateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("failed to update user: %w", err)
	}

	cache.Put(ctx, s.Cache, userKey(user.ID), &user, userCacheTTL)
	return user, nil
}

// Delete removes the user row. Sessions, factors and backup codes go with
// it via foreign-key cascade; the caller is responsible for evicting any
// per-session cache entries before the rows disappear.
func (s *UserService) Delete(ctx context.Context, userID string) error {
	if err := s.Store.Users().DeleteUser(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}
	s.Cache.Del(ctx, userKey(userID))
	return nil
}

// RecordSignIn stamps the last successful authentication and drops the
// cached user so the next read sees the new timestamp.
func (s *UserService) RecordSignIn(ctx context.Context, userID string) error {
	if err := s.Store.Users().UpdateLastSignIn(ctx, userID); err != nil {
		return fmt.Errorf("failed to record sign-in: %w", err)
	}
	s.Cache.Del(ctx, userKey(userID))
	return nil
}

// dummyPasswordHash returns a valid argon2id encoding of a throwaway
// password, used to equalize timing when the email does not exist. Built
// lazily so the pepper path is configured before the first hash.
var dummyPasswordHash = sync.OnceValue(func() string {
	h, err := cryptox.HashPassword("gatekeep-timing-equalizer")
	if err != nil {
		panic(err)
	}
	return h
})
