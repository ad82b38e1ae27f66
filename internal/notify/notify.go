// Package notify delivers invitation links to recipients.
package notify

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Invitation is what a recipient needs to act on an offer.
type Invitation struct {
	InvitationID uuid.UUID
	EntityName   string
	Email        string        // set for email invitations
	UserID       uuid.NullUUID // set for in-product invitations
	Access       string
	Link         string
	ExpiresAt    time.Time
}

// Notifier sends invitation links.
type Notifier interface {
	InvitationCreated(ctx context.Context, inv Invitation) error
}

// LogNotifier writes deliveries to a logger. It stands in for a mail sender and
// for the in-product inbox, which reads pending invitations from the store.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier returns a Notifier that logs each delivery.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) InvitationCreated(ctx context.Context, inv Invitation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	event := n.logger.Info().
		Str("invitation_id", inv.InvitationID.String()).
		Str("entity", inv.EntityName).
		Str("access", inv.Access).
		Time("expires_at", inv.ExpiresAt)
	if inv.UserID.Valid {
		event = event.Str("channel", "in_product").Str("recipient_user_id", inv.UserID.UUID.String())
	} else {
		event = event.Str("channel", "email").Str("recipient", MaskEmail(inv.Email))
	}
	event.Msg("invitation delivered")
	return nil
}

// MaskEmail keeps the first character of the local part and the domain.
func MaskEmail(email string) string {
	local, domain, ok := strings.Cut(strings.TrimSpace(email), "@")
	if !ok || local == "" {
		return "***"
	}
	return local[:1] + "***@" + domain
}
