package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// secretBytes sizes the single-use secrets at 256 bits of entropy; matching
// is exact-match on the stored value, so guessing is infeasible.
const secretBytes = 32

// NewSecret generates a URL-safe single-use secret for email verification and
// password reset links.
func NewSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
