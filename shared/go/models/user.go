package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an authenticated identity from the identity store.
type User struct {
	ID               uuid.UUID  `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
	IsSuperAdmin     bool       `json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Confirmed reports whether the user finished email confirmation.
func (u User) Confirmed() bool {
	return u.EmailConfirmedAt != nil
}

// Session is an issued sign-in.
type Session struct {
	Token     string    `json:"token"`
	UserID    uuid.UUID `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthEventType names an auth state transition.
type AuthEventType string

const (
	AuthSignedIn  AuthEventType = "SIGNED_IN"
	AuthSignedOut AuthEventType = "SIGNED_OUT"
)

// AuthEvent is delivered to auth state listeners.
type AuthEvent struct {
	Type AuthEventType
	User User
	At   time.Time
}
