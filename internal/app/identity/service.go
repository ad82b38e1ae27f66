// Package identity authenticates users against the users and sessions tables
// and notifies in-process listeners about sign-in state changes.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"backstage/internal/apperr"
	"backstage/internal/store"
	"backstage/shared/go/logging"
	"backstage/shared/go/models"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

var dummyPasswordHash = []byte("$2a$10$CwTycUXWue0Thq9StjUM0uJ8n4VWeNseyX2fA9DE.D7su7J6iYGTC")

// Store describes the persistence operations required by the identity service.
type Store interface {
	CreateUser(ctx context.Context, rec store.SignupRecord) (models.User, error)
	ConfirmUser(ctx context.Context, confirmationToken string, now time.Time) (models.User, string, error)
	UserCredentials(ctx context.Context, email string) (models.User, []byte, error)
	CreateSession(ctx context.Context, session models.Session, now time.Time) error
	UserBySession(ctx context.Context, token string, now time.Time) (models.User, error)
	DeleteSession(ctx context.Context, token string) error
}

// Signup is the result of registering an account. The confirmation token is
// handed to the mail layer; it is never returned to the browser.
type Signup struct {
	User              models.User
	ConfirmationToken string
}

// Confirmation is the result of confirming an email address.
type Confirmation struct {
	Session     models.Session
	User        models.User
	RedirectURL string
}

// Listener receives auth state changes.
type Listener func(models.AuthEvent)

// Service exposes the identity store to the rest of the application.
type Service interface {
	SignUp(ctx context.Context, email, password, redirectURL string) (Signup, error)
	ConfirmEmail(ctx context.Context, confirmationToken string) (Confirmation, error)
	SignInWithPassword(ctx context.Context, email, password string) (models.Session, error)
	CurrentUser(ctx context.Context, sessionToken string) (models.User, error)
	SignOut(ctx context.Context, sessionToken string) error
	// OnAuthStateChange registers a listener and returns a function that removes it.
	OnAuthStateChange(fn Listener) (unsubscribe func())
}

type service struct {
	store      Store
	sessionTTL time.Duration
	now        func() time.Time

	mu        sync.RWMutex
	listeners map[int]Listener
	nextID    int
}

// New wires a Service backed by the provided Store.
func New(store Store, sessionTTL time.Duration) Service {
	if sessionTTL <= 0 {
		sessionTTL = 30 * 24 * time.Hour
	}
	return &service{
		store:      store,
		sessionTTL: sessionTTL,
		now:        time.Now,
		listeners:  make(map[int]Listener),
	}
}

func (s *service) SignUp(ctx context.Context, email, password, redirectURL string) (Signup, error) {
	if err := ctx.Err(); err != nil {
		return Signup{}, err
	}

	addr, err := NormalizeEmail(email)
	if err != nil {
		return Signup{}, err
	}
	if len(password) < MinPasswordLength {
		return Signup{}, apperr.Validation(fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Signup{}, fmt.Errorf("hash password: %w", err)
	}
	confirmation, err := newToken()
	if err != nil {
		return Signup{}, fmt.Errorf("create confirmation token: %w", err)
	}

	user, err := s.store.CreateUser(ctx, store.SignupRecord{
		Email:             addr,
		PasswordHash:      hash,
		ConfirmationToken: confirmation,
		RedirectURL:       strings.TrimSpace(redirectURL),
		CreatedAt:         s.now().UTC(),
	})
	if err != nil {
		return Signup{}, err
	}

	logging.WithContext(ctx).Info().Str("user_id", user.ID.String()).Msg("user signed up")
	return Signup{User: user, ConfirmationToken: confirmation}, nil
}

func (s *service) ConfirmEmail(ctx context.Context, confirmationToken string) (Confirmation, error) {
	if err := ctx.Err(); err != nil {
		return Confirmation{}, err
	}
	confirmationToken = strings.TrimSpace(confirmationToken)
	if confirmationToken == "" {
		return Confirmation{}, apperr.Validation("confirmation token is required")
	}

	now := s.now().UTC()
	user, redirect, err := s.store.ConfirmUser(ctx, confirmationToken, now)
	if err != nil {
		return Confirmation{}, err
	}

	session, err := s.startSession(ctx, user, now)
	if err != nil {
		return Confirmation{}, err
	}
	return Confirmation{Session: session, User: user, RedirectURL: redirect}, nil
}

func (s *service) SignInWithPassword(ctx context.Context, email, password string) (models.Session, error) {
	if err := ctx.Err(); err != nil {
		return models.Session{}, err
	}

	user, hash, err := s.store.UserCredentials(ctx, email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyPasswordHash, []byte(password))
			return models.Session{}, apperr.Unauthorized("invalid email or password")
		}
		return models.Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return models.Session{}, apperr.Unauthorized("invalid email or password")
	}
	if !user.Confirmed() {
		return models.Session{}, apperr.Unauthorized("email address is not confirmed")
	}

	return s.startSession(ctx, user, s.now().UTC())
}

func (s *service) CurrentUser(ctx context.Context, sessionToken string) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}
	if strings.TrimSpace(sessionToken) == "" {
		return models.User{}, apperr.Unauthorized("missing session")
	}
	return s.store.UserBySession(ctx, sessionToken, s.now().UTC())
}

func (s *service) SignOut(ctx context.Context, sessionToken string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	user, err := s.CurrentUser(ctx, sessionToken)
	if err != nil {
		return err
	}
	if err := s.store.DeleteSession(ctx, sessionToken); err != nil {
		return err
	}
	s.emit(models.AuthEvent{Type: models.AuthSignedOut, User: user, At: s.now().UTC()})
	return nil
}

func (s *service) OnAuthStateChange(fn Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *service) startSession(ctx context.Context, user models.User, now time.Time) (models.Session, error) {
	token, err := newToken()
	if err != nil {
		return models.Session{}, fmt.Errorf("create token: %w", err)
	}
	session := models.Session{Token: token, UserID: user.ID, ExpiresAt: now.Add(s.sessionTTL)}
	if err := s.store.CreateSession(ctx, session, now); err != nil {
		return models.Session{}, err
	}
	s.emit(models.AuthEvent{Type: models.AuthSignedIn, User: user, At: now})
	return session, nil
}

func (s *service) emit(event models.AuthEvent) {
	s.mu.RLock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(event)
	}
}

// NormalizeEmail validates a bare address and lowercases it.
func NormalizeEmail(email string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil || addr.Name != "" {
		return "", apperr.Validation("a valid email address is required")
	}
	return strings.ToLower(addr.Address), nil
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
