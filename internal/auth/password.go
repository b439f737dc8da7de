package auth

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// PasswordSymbols is the punctuation set the strength policy accepts.
const PasswordSymbols = `!@#$%^&*(),.?":{}|<>`

const (
	passwordMinLength = 8
	// bcrypt hashes at most 72 bytes of input; anything longer must be
	// rejected by the policy, not by the hasher.
	passwordMaxLength = 72
)

// PolicyError reports a password that fails the strength policy. It is a
// distinct type so handlers can render it as a field-level validation error.
type PolicyError struct {
	Reason string
}

func (e *PolicyError) Error() string {
	return e.Reason
}

// HashPassword hashes a raw password with bcrypt. The raw password is never
// persisted anywhere.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword compares a raw password against a stored bcrypt hash.
// bcrypt performs the comparison in constant time.
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ValidatePassword enforces the server-side strength policy: length bounds,
// at least one uppercase, one lowercase, one digit, and one symbol from
// PasswordSymbols. It is the single source of truth; client checks are
// advisory only.
func ValidatePassword(password string) error {
	if len(password) < passwordMinLength {
		return &PolicyError{Reason: fmt.Sprintf("Password must be at least %d characters long.", passwordMinLength)}
	}
	if len(password) > passwordMaxLength {
		return &PolicyError{Reason: fmt.Sprintf("Password must be at most %d characters long.", passwordMaxLength)}
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(PasswordSymbols, r):
			symbol = true
		}
	}

	switch {
	case !upper:
		return &PolicyError{Reason: "Password must contain at least one uppercase letter."}
	case !lower:
		return &PolicyError{Reason: "Password must contain at least one lowercase letter."}
	case !digit:
		return &PolicyError{Reason: "Password must contain at least one digit."}
	case !symbol:
		return &PolicyError{Reason: "Password must contain at least one special character."}
	}
	return nil
}
