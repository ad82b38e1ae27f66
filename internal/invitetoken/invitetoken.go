// Package invitetoken signs and verifies the tokens carried by invitation links.
//
// A link token is an HS256 JWT whose jti is the opaque token id stored on the
// invitation row. Verification checks signature and issuer only: expiry is
// enforced against the stored row by the acceptance flow, so an expired link
// still resolves and can be shown as expired.
package invitetoken

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSecretLength is the shortest accepted signing secret.
const MinSecretLength = 32

var (
	// ErrInvalidToken covers malformed, forged and mismatched tokens.
	ErrInvalidToken = errors.New("invalid invitation token")
)

// Claims are the invitation facts bound into a link.
type Claims struct {
	TokenID      string
	InvitationID uuid.UUID
	EntityID     uuid.UUID
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

type linkClaims struct {
	jwt.RegisteredClaims
	InvitationID string `json:"inv"`
	EntityID     string `json:"ent"`
}

// Signer issues and parses link tokens.
type Signer struct {
	secret []byte
	issuer string
}

// NewSigner configures a Signer with an HMAC secret.
func NewSigner(secret, issuer string) (*Signer, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("invitation token secret must be at least %d characters", MinSecretLength)
	}
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		issuer = "backstage"
	}
	return &Signer{secret: []byte(secret), issuer: issuer}, nil
}

// Sign produces the link token. The output is deterministic for the same claims,
// so a link can be rebuilt from a stored invitation.
func (s *Signer) Sign(c Claims) (string, error) {
	if c.TokenID == "" {
		return "", errors.New("token id is required")
	}
	claims := linkClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        c.TokenID,
			Issuer:    s.issuer,
			Subject:   c.InvitationID.String(),
			IssuedAt:  jwt.NewNumericDate(c.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(c.ExpiresAt),
		},
		InvitationID: c.InvitationID.String(),
		EntityID:     c.EntityID.String(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign invitation token: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature and issuer and returns the bound claims.
// It deliberately skips time-based validation.
func (s *Signer) Parse(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, ErrInvalidToken
	}

	var parsed linkClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if parsed.Issuer != s.issuer || parsed.ID == "" {
		return Claims{}, ErrInvalidToken
	}

	invitationID, err := uuid.Parse(parsed.InvitationID)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	entityID, err := uuid.Parse(parsed.EntityID)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	claims := Claims{
		TokenID:      parsed.ID,
		InvitationID: invitationID,
		EntityID:     entityID,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time
	}
	if parsed.ExpiresAt != nil {
		claims.ExpiresAt = parsed.ExpiresAt.Time
	}
	return claims, nil
}

// NewTokenID returns a fresh unguessable token id.
func NewTokenID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
