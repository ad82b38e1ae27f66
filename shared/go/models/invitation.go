package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"backstage/internal/apperr"
)

// InvitationStatus is the stored lifecycle state of an invitation.
// Expired is never stored; it is derived from a pending row past its expiry.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRevoked  InvitationStatus = "revoked"
	InvitationExpired  InvitationStatus = "expired"
)

// Invitation offers a team membership to an email address or a specific user.
type Invitation struct {
	ID               uuid.UUID        `json:"id"`
	EntityID         uuid.UUID        `json:"entity_id"`
	FestivalID       uuid.NullUUID    `json:"festival_id"` // set when the offer targets a festival's host crew
	TokenID          string           `json:"-"`
	Token            string           `json:"token,omitempty"` // signed link token, never stored
	Email            string           `json:"email,omitempty"`
	InvitedUserID    uuid.NullUUID    `json:"invited_user_id"`
	InvitedPersonaID uuid.NullUUID    `json:"invited_persona_id"`
	Access           AccessLevel      `json:"access"`
	RoleLabels       []string         `json:"role_labels"`
	InvitedBy        uuid.UUID        `json:"invited_by"`
	InvitedAt        time.Time        `json:"invited_at"`
	ExpiresAt        time.Time        `json:"expires_at"`
	Status           InvitationStatus `json:"status"`
	AcceptedBy       uuid.NullUUID    `json:"accepted_by"`
	AcceptedAt       *time.Time       `json:"accepted_at,omitempty"`
	RevokedAt        *time.Time       `json:"revoked_at,omitempty"`
}

// IsExpired reports whether a pending invitation has passed its expiry.
func (i Invitation) IsExpired(now time.Time) bool {
	return i.Status == InvitationPending && now.After(i.ExpiresAt)
}

// EffectiveStatus returns the stored status, or expired for a stale pending row.
func (i Invitation) EffectiveStatus(now time.Time) InvitationStatus {
	if i.IsExpired(now) {
		return InvitationExpired
	}
	return i.Status
}

// AddressedTo reports whether the invitation names this user, either by id or by email.
func (i Invitation) AddressedTo(userID uuid.UUID, email string) bool {
	if i.InvitedUserID.Valid {
		return i.InvitedUserID.UUID == userID
	}
	return i.Email != "" && strings.EqualFold(i.Email, strings.TrimSpace(email))
}

// AcceptAction tells the store what an Accept call must do.
type AcceptAction int

const (
	// AcceptGrant creates or updates the membership and marks the invitation accepted.
	AcceptGrant AcceptAction = iota + 1
	// AcceptReconfirm returns the membership granted by an earlier accept of the same user.
	AcceptReconfirm
)

// DecideAccept applies the acceptance preconditions to the current invitation row.
// An accepted invitation is re-confirmed for the user who accepted it, so that
// client retries after a session change succeed.
func DecideAccept(inv Invitation, userID uuid.UUID, now time.Time) (AcceptAction, error) {
	switch inv.Status {
	case InvitationAccepted:
		if inv.AcceptedBy.Valid && inv.AcceptedBy.UUID == userID {
			return AcceptReconfirm, nil
		}
		return 0, apperr.AlreadyProcessed("invitation has already been accepted")
	case InvitationRevoked:
		return 0, apperr.AlreadyProcessed("invitation has been revoked")
	case InvitationPending:
	default:
		return 0, apperr.Validation("invitation has an unknown status")
	}

	if now.After(inv.ExpiresAt) {
		return 0, apperr.Expired("invitation has expired")
	}
	if inv.InvitedUserID.Valid && inv.InvitedUserID.UUID != userID {
		return 0, apperr.PermissionDenied("invitation is addressed to another user")
	}
	return AcceptGrant, nil
}

// InvitationView is what the acceptance page renders, available before sign-in.
type InvitationView struct {
	Invitation   Invitation       `json:"invitation"`
	Status       InvitationStatus `json:"status"`
	Expired      bool             `json:"expired"`
	EntityName   string           `json:"entity_name"`
	EntitySlug   string           `json:"entity_slug"`
	EntityType   EntityType       `json:"entity_type"`
	HeroImage    string           `json:"hero_image,omitempty"`
	FestivalName string           `json:"festival_name,omitempty"`
}
