package auth

// Table shape:
//
//	CREATE TABLE users (
//	    id                         BIGSERIAL PRIMARY KEY,
//	    email                      TEXT NOT NULL UNIQUE,
//	    username                   TEXT NOT NULL UNIQUE,
//	    password_hash              TEXT NOT NULL,
//	    first_name                 TEXT NOT NULL DEFAULT '',
//	    last_name                  TEXT NOT NULL DEFAULT '',
//	    is_active                  BOOLEAN NOT NULL DEFAULT TRUE,
//	    is_email_verified          BOOLEAN NOT NULL DEFAULT FALSE,
//	    email_verification_token   TEXT,
//	    email_verification_expires TIMESTAMPTZ,
//	    password_reset_token       TEXT,
//	    password_reset_expires     TIMESTAMPTZ,
//	    last_login_at              TIMESTAMPTZ,
//	    created_at                 TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    updated_at                 TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//	CREATE INDEX idx_users_email_verification_token ON users (email_verification_token);
//	CREATE INDEX idx_users_password_reset_token ON users (password_reset_token);

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, email, username, password_hash, first_name, last_name,
	is_active, is_email_verified,
	email_verification_token, email_verification_expires,
	password_reset_token, password_reset_expires,
	last_login_at, created_at, updated_at`

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.IsActive, &u.IsEmailVerified,
		&u.VerificationToken, &u.VerificationExpires,
		&u.ResetToken, &u.ResetExpires,
		&u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// uniqueViolation maps PostgreSQL unique constraint errors onto the domain
// conflict sentinels.
func uniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case "users_email_key":
			return ErrEmailTaken
		case "users_username_key":
			return ErrUsernameTaken
		}
	}
	return nil
}

// Create inserts the user, including any pre-generated verification secret,
// in a single statement.
func (r *PGRepository) Create(ctx context.Context, u *User) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (email, username, password_hash, first_name, last_name,
			email_verification_token, email_verification_expires)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+userColumns,
		u.Email, u.Username, u.PasswordHash, u.FirstName, u.LastName,
		u.VerificationToken, u.VerificationExpires,
	)
	created, err := scanUser(row)
	if err != nil {
		if conflict := uniqueViolation(err); conflict != nil {
			return nil, conflict
		}
		return nil, fmt.Errorf("auth: create user: %w", err)
	}
	return created, nil
}

// FindByEmail fetches a user by canonical email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("auth: find by email: %w", err)
	}
	return u, nil
}

// FindByID fetches a user by id.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("auth: find by id: %w", err)
	}
	return u, nil
}

// UpdateProfile patches profile fields with COALESCE so nil fields keep their
// stored value.
func (r *PGRepository) UpdateProfile(ctx context.Context, id int64, patch ProfileUpdate) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE users SET
			username = COALESCE($2, username),
			first_name = COALESCE($3, first_name),
			last_name = COALESCE($4, last_name),
			updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns,
		id, patch.Username, patch.FirstName, patch.LastName,
	)
	u, err := scanUser(row)
	if err != nil {
		if conflict := uniqueViolation(err); conflict != nil {
			return nil, conflict
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("auth: update profile: %w", err)
	}
	return u, nil
}

// SetVerificationSecret overwrites the pending verification secret, if any.
func (r *PGRepository) SetVerificationSecret(ctx context.Context, id int64, token string, expires time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET
			email_verification_token = $2,
			email_verification_expires = $3,
			updated_at = now()
		WHERE id = $1`,
		id, token, expires,
	)
	if err != nil {
		return fmt.Errorf("auth: set verification secret: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ConsumeVerificationSecret is the single conditional update that resolves
// concurrent consumers of the same token to at most one winner.
func (r *PGRepository) ConsumeVerificationSecret(ctx context.Context, token string, now time.Time) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE users SET
			is_email_verified = TRUE,
			email_verification_token = NULL,
			email_verification_expires = NULL,
			updated_at = now()
		WHERE email_verification_token = $1
		  AND email_verification_expires > $2
		RETURNING `+userColumns,
		token, now,
	)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidOrExpiredToken
		}
		return nil, fmt.Errorf("auth: consume verification secret: %w", err)
	}
	return u, nil
}

// SetResetSecret overwrites the pending reset secret, if any.
func (r *PGRepository) SetResetSecret(ctx context.Context, id int64, token string, expires time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET
			password_reset_token = $2,
			password_reset_expires = $3,
			updated_at = now()
		WHERE id = $1`,
		id, token, expires,
	)
	if err != nil {
		return fmt.Errorf("auth: set reset secret: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindByResetSecret resolves the holder of a pending, unexpired reset secret.
func (r *PGRepository) FindByResetSecret(ctx context.Context, token string, now time.Time) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE password_reset_token = $1
		  AND password_reset_expires > $2`,
		token, now,
	)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidOrExpiredToken
		}
		return nil, fmt.Errorf("auth: find by reset secret: %w", err)
	}
	return u, nil
}

// ResetPassword replaces the hash and clears the secret in one statement
// keyed on the still-pending token, so a replayed token cannot win twice.
func (r *PGRepository) ResetPassword(ctx context.Context, id int64, token, passwordHash string, now time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET
			password_hash = $3,
			password_reset_token = NULL,
			password_reset_expires = NULL,
			updated_at = now()
		WHERE id = $1
		  AND password_reset_token = $2
		  AND password_reset_expires > $4`,
		id, token, passwordHash, now,
	)
	if err != nil {
		return fmt.Errorf("auth: reset password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidOrExpiredToken
	}
	return nil
}

// TouchLastLogin records a successful login.
func (r *PGRepository) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET last_login_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("auth: touch last login: %w", err)
	}
	return nil
}
