package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTypeAccess tags bearer tokens minted for regular API access.
const TokenTypeAccess = "access"

// Token validation failures. The gate treats both as unauthenticated; they
// are distinguished for logging only.
var (
	ErrTokenExpired   = errors.New("token has expired")
	ErrTokenMalformed = errors.New("token is malformed or has an invalid signature")
)

// Claims is the self-contained claim set carried by a bearer token. Nothing
// is stored server-side; the signature is the only source of trust.
type Claims struct {
	jwt.RegisteredClaims
	Email     string `json:"email,omitempty"`
	Username  string `json:"username,omitempty"`
	TokenType string `json:"type,omitempty"`
}

// UserID parses the subject claim back into the identity's id.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("auth: parse subject claim: %w", err)
	}
	return id, nil
}

// TokenCodec mints and validates HS256-signed bearer tokens. It is a pure
// function of (secret, ttl, clock) and holds no other state.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenCodec constructs a codec with the server-held signing secret and
// the fixed access token TTL.
func NewTokenCodec(secret string, ttl time.Duration) *TokenCodec {
	return &TokenCodec{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithClock overrides the codec's time source. Used by tests to cross the
// expiry boundary without sleeping.
func (c *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	c.now = now
	return c
}

// TTL returns the configured access token lifetime.
func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

// Mint signs a bearer token for the given user. Claims: subject id, email,
// username, issued-at now, expires-at now+TTL, purpose tag.
func (c *TokenCodec) Mint(u *User) (string, error) {
	now := c.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		Email:     u.Email,
		Username:  u.Username,
		TokenType: TokenTypeAccess,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a raw token. Expiry is checked against the
// codec clock with no grace window. Returns ErrTokenExpired or
// ErrTokenMalformed; the latter also covers signature and purpose mismatches.
func (c *TokenCodec) Validate(raw string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(c.now), jwt.WithExpirationRequired())

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenMalformed
	}
	if claims.TokenType != TokenTypeAccess {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}
