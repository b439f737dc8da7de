package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Notifier dispatches account emails. Dispatch is best-effort from the
// service's perspective: secret issuance commits first and a failed dispatch
// never rolls it back; the caller can invoke resend.
type Notifier interface {
	SendVerification(ctx context.Context, to, username, token string) error
	SendPasswordReset(ctx context.Context, to, username, token string) error
}

// NopNotifier discards notifications. Used in tests and local tooling.
type NopNotifier struct{}

func (NopNotifier) SendVerification(context.Context, string, string, string) error {
	return nil
}

func (NopNotifier) SendPasswordReset(context.Context, string, string, string) error {
	return nil
}

// ServiceConfig carries the secret TTLs.
type ServiceConfig struct {
	VerificationTTL time.Duration
	ResetTTL        time.Duration
}

// Service wraps the authentication business rules: registration, login, the
// verification and password reset loops, and profile management.
type Service struct {
	repo            Repository
	codec           *TokenCodec
	notifier        Notifier
	logger          *slog.Logger
	verificationTTL time.Duration
	resetTTL        time.Duration
	now             func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository, codec *TokenCodec, notifier Notifier, logger *slog.Logger, cfg ServiceConfig) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	verificationTTL := cfg.VerificationTTL
	if verificationTTL <= 0 {
		verificationTTL = 24 * time.Hour
	}
	resetTTL := cfg.ResetTTL
	if resetTTL <= 0 {
		resetTTL = time.Hour
	}
	return &Service{
		repo:            repo,
		codec:           codec,
		notifier:        notifier,
		logger:          logger,
		verificationTTL: verificationTTL,
		resetTTL:        resetTTL,
		now:             time.Now,
	}
}

// WithClock overrides the service time source for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RegisterInput is the validated registration payload. Password confirmation
// matching is the handler's concern.
type RegisterInput struct {
	Email     string
	Username  string
	Password  string
	FirstName string
	LastName  string
}

// Register creates an unverified user with a hashed password and a pending
// verification secret, then dispatches the verification email.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	if err := ValidatePassword(in.Password); err != nil {
		return nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	token, err := NewSecret()
	if err != nil {
		return nil, err
	}
	expires := s.now().Add(s.verificationTTL)

	user, err := s.repo.Create(ctx, &User{
		Email:               NormalizeEmail(in.Email),
		Username:            strings.TrimSpace(in.Username),
		PasswordHash:        hash,
		FirstName:           strings.TrimSpace(in.FirstName),
		LastName:            strings.TrimSpace(in.LastName),
		VerificationToken:   &token,
		VerificationExpires: &expires,
	})
	if err != nil {
		return nil, err
	}

	if err := s.notifier.SendVerification(ctx, user.Email, user.Username, token); err != nil {
		s.logger.Warn("verification email dispatch failed",
			slog.String("email", user.Email), slog.Any("error", err))
	}
	return user, nil
}

// Login validates credentials and mints a bearer token. Unknown email, wrong
// password, and deactivated accounts all collapse into ErrInvalidCredentials
// so the response never confirms which part failed.
func (s *Service) Login(ctx context.Context, email, password string) (string, *User, error) {
	user, err := s.repo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if !VerifyPassword(user.PasswordHash, password) {
		return "", nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return "", nil, ErrInvalidCredentials
	}
	if !user.IsEmailVerified {
		return "", nil, ErrEmailNotVerified
	}

	token, err := s.codec.Mint(user)
	if err != nil {
		return "", nil, err
	}

	at := s.now()
	if err := s.repo.TouchLastLogin(ctx, user.ID, at); err != nil {
		s.logger.Warn("touch last login failed", slog.Int64("user_id", user.ID), slog.Any("error", err))
	} else {
		user.LastLoginAt = &at
	}
	return token, user, nil
}

// VerifyEmail consumes a pending verification secret. A replayed or expired
// token fails identically.
func (s *Service) VerifyEmail(ctx context.Context, token string) (*User, error) {
	return s.repo.ConsumeVerificationSecret(ctx, token, s.now())
}

// ResendVerification issues a fresh verification secret, superseding any
// pending one, and dispatches it.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	user, err := s.repo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return err
	}
	if user.IsEmailVerified {
		return ErrAlreadyVerified
	}

	token, err := NewSecret()
	if err != nil {
		return err
	}
	if err := s.repo.SetVerificationSecret(ctx, user.ID, token, s.now().Add(s.verificationTTL)); err != nil {
		return err
	}

	if err := s.notifier.SendVerification(ctx, user.Email, user.Username, token); err != nil {
		s.logger.Warn("verification email dispatch failed",
			slog.String("email", user.Email), slog.Any("error", err))
	}
	return nil
}

// RequestPasswordReset issues a reset secret for the address, if registered.
// It returns nil for unknown addresses so the endpoint cannot be used to
// enumerate accounts; only storage failures surface.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.repo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Debug("password reset requested for unknown email")
			return nil
		}
		return err
	}

	token, err := NewSecret()
	if err != nil {
		return err
	}
	if err := s.repo.SetResetSecret(ctx, user.ID, token, s.now().Add(s.resetTTL)); err != nil {
		return err
	}

	if err := s.notifier.SendPasswordReset(ctx, user.Email, user.Username, token); err != nil {
		s.logger.Warn("password reset email dispatch failed",
			slog.String("email", user.Email), slog.Any("error", err))
	}
	return nil
}

// ResetPassword consumes a pending reset secret and replaces the password.
// The secret is cleared in the same statement that writes the new hash, so
// two concurrent resets with the same token cannot both succeed.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	if err := ValidatePassword(password); err != nil {
		return err
	}

	now := s.now()
	user, err := s.repo.FindByResetSecret(ctx, token, now)
	if err != nil {
		return err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	return s.repo.ResetPassword(ctx, user.ID, token, hash, now)
}

// UpdateProfile patches non-credential fields. Username changes re-check
// uniqueness at the constraint.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, patch ProfileUpdate) (*User, error) {
	if patch.Username != nil {
		trimmed := strings.TrimSpace(*patch.Username)
		if trimmed == "" {
			return nil, fmt.Errorf("auth: %w: username must not be empty", ErrInvalidProfile)
		}
		patch.Username = &trimmed
	}
	return s.repo.UpdateProfile(ctx, userID, patch)
}

// ErrInvalidProfile reports an invalid profile patch.
var ErrInvalidProfile = errors.New("invalid profile update")
