package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"backstage/internal/apperr"
	"backstage/shared/go/models"
)

// SignupRecord is a pending account created by sign-up.
type SignupRecord struct {
	Email             string
	PasswordHash      []byte
	ConfirmationToken string
	RedirectURL       string
	CreatedAt         time.Time
}

const userColumns = `id, email, email_confirmed_at, is_superadmin, created_at`

func scanUser(row rowScanner) (models.User, error) {
	var (
		u         models.User
		confirmed sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Email, &confirmed, &u.IsSuperAdmin, &u.CreatedAt); err != nil {
		return models.User{}, err
	}
	if confirmed.Valid {
		t := confirmed.Time
		u.EmailConfirmedAt = &t
	}
	return u, nil
}

// CreateUser registers an unconfirmed user.
func (s *Store) CreateUser(ctx context.Context, rec SignupRecord) (models.User, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, email, password_hash, confirmation_token, signup_redirect, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+userColumns,
		uuid.New(), strings.ToLower(strings.TrimSpace(rec.Email)), rec.PasswordHash,
		rec.ConfirmationToken, rec.RedirectURL, rec.CreatedAt,
	)
	user, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, apperr.Conflict("an account with this email already exists")
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

// ConfirmUser marks the user owning the confirmation token as confirmed and
// returns the redirect URL stored at sign-up.
func (s *Store) ConfirmUser(ctx context.Context, confirmationToken string, now time.Time) (models.User, string, error) {
	var redirect string
	row := s.db.QueryRowContext(ctx, `
		UPDATE users
		SET email_confirmed_at = COALESCE(email_confirmed_at, $2), confirmation_token = NULL
		WHERE confirmation_token = $1
		RETURNING `+userColumns+`, signup_redirect`,
		confirmationToken, now,
	)

	var (
		u         models.User
		confirmed sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Email, &confirmed, &u.IsSuperAdmin, &u.CreatedAt, &redirect); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, "", apperr.NotFound("confirmation token not found")
		}
		return models.User{}, "", fmt.Errorf("confirm user: %w", err)
	}
	if confirmed.Valid {
		t := confirmed.Time
		u.EmailConfirmedAt = &t
	}
	return u, redirect, nil
}

// UserCredentials returns the user and password hash for an email.
func (s *Store) UserCredentials(ctx context.Context, email string) (models.User, []byte, error) {
	var (
		u         models.User
		confirmed sql.NullTime
		hash      []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`, password_hash
		FROM users
		WHERE LOWER(email) = LOWER($1)
	`, strings.TrimSpace(email)).Scan(&u.ID, &u.Email, &confirmed, &u.IsSuperAdmin, &u.CreatedAt, &hash)
	if err != nil {
		return models.User{}, nil, notFound(err, "user")
	}
	if confirmed.Valid {
		t := confirmed.Time
		u.EmailConfirmedAt = &t
	}
	return u, hash, nil
}

// GetUser returns a user by id.
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (models.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id))
	if err != nil {
		return models.User{}, notFound(err, "user")
	}
	return user, nil
}

// CreateSession stores a session token for the user.
func (s *Store) CreateSession(ctx context.Context, session models.Session, now time.Time) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (token, user_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`, session.Token, session.UserID, now, session.ExpiresAt); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

// UserBySession resolves an unexpired session token to its user.
func (s *Store) UserBySession(ctx context.Context, token string, now time.Time) (models.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `
		SELECT u.id, u.email, u.email_confirmed_at, u.is_superadmin, u.created_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token = $1 AND s.expires_at > $2
	`, token, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, apperr.Unauthorized("session is invalid or expired")
		}
		return models.User{}, fmt.Errorf("lookup session: %w", err)
	}
	return user, nil
}

// DeleteSession removes a session token.
func (s *Store) DeleteSession(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = $1`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
