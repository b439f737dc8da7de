package auth

import (
	"context"
	"time"
)

// ProfileUpdate patches the non-credential fields of a user. Nil fields are
// left untouched.
type ProfileUpdate struct {
	Username  *string
	FirstName *string
	LastName  *string
}

// Repository defines persistence for the credential store. Every secret
// transition is a single conditional statement so that concurrent consumers
// of the same token resolve to at most one winner.
type Repository interface {
	// Create persists a new user. Returns ErrEmailTaken or ErrUsernameTaken
	// when a unique constraint is violated.
	Create(ctx context.Context, u *User) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
	// UpdateProfile applies a patch; username uniqueness is re-checked by the
	// database constraint.
	UpdateProfile(ctx context.Context, id int64, patch ProfileUpdate) (*User, error)

	// SetVerificationSecret stores a fresh verification secret, overwriting
	// any pending one.
	SetVerificationSecret(ctx context.Context, id int64, token string, expires time.Time) error
	// ConsumeVerificationSecret marks the matching unexpired user verified and
	// clears the secret in one statement. Returns ErrInvalidOrExpiredToken
	// when no row matches.
	ConsumeVerificationSecret(ctx context.Context, token string, now time.Time) (*User, error)

	// SetResetSecret stores a fresh password reset secret, overwriting any
	// pending one.
	SetResetSecret(ctx context.Context, id int64, token string, expires time.Time) error
	// FindByResetSecret resolves the user holding the given unexpired reset
	// secret. The secret stays pending; clearing happens in ResetPassword.
	FindByResetSecret(ctx context.Context, token string, now time.Time) (*User, error)
	// ResetPassword replaces the password hash and clears the reset secret in
	// one conditional statement keyed on the still-pending token. Returns
	// ErrInvalidOrExpiredToken when the token was consumed concurrently.
	ResetPassword(ctx context.Context, id int64, token, passwordHash string, now time.Time) error

	TouchLastLogin(ctx context.Context, id int64, at time.Time) error
}
