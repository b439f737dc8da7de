// Package auth implements the Inkpress authentication core: the credential
// store, the JWT token codec, the verification/reset secret lifecycle, the
// request authentication gate, and the HTTP service surface on top of them.
package auth

import (
	"errors"
	"strings"
	"time"
)

// User represents one registered principal. The embedded verification and
// reset secrets are single-use: a token and its expiry are always set and
// cleared together.
type User struct {
	ID              int64
	Email           string
	Username        string
	PasswordHash    string
	FirstName       string
	LastName        string
	IsActive        bool
	IsEmailVerified bool

	VerificationToken   *string
	VerificationExpires *time.Time
	ResetToken          *string
	ResetExpires        *time.Time

	LastLoginAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DisplayName returns the user's full name, falling back to the username.
func (u *User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.LastName != "":
		return u.LastName
	default:
		return u.Username
	}
}

// NormalizeEmail lowercases and trims an address so that lookups and the
// unique constraint agree on a single canonical form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Sentinel errors surfaced by the service layer. Handlers map these onto the
// HTTP error envelope; anything else becomes a 500.
var (
	ErrEmailTaken            = errors.New("email already registered")
	ErrUsernameTaken         = errors.New("username already taken")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrEmailNotVerified      = errors.New("email address not verified")
	ErrAlreadyVerified       = errors.New("email address already verified")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrNotFound              = errors.New("user not found")
)
