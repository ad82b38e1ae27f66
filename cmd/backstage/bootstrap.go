package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"backstage/internal/app/invitations"
	"backstage/internal/apperr"
	"backstage/shared/go/models"
)

const (
	demoEmail    = "demo@backstage.local"
	demoPassword = "backstage-demo"
)

// bootstrapDemoData seeds a confirmed demo user who owns a venue running a
// festival with one event, plus a pending invitation. It does nothing once the
// demo user exists.
func bootstrapDemoData(ctx context.Context, app *application) error {
	signup, err := app.identity.SignUp(ctx, demoEmail, demoPassword, "")
	if errors.Is(err, apperr.ErrConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("bootstrap demo user: %w", err)
	}
	conf, err := app.identity.ConfirmEmail(ctx, signup.ConfirmationToken)
	if err != nil {
		return fmt.Errorf("confirm demo user: %w", err)
	}
	owner := conf.User.ID
	if err := app.identity.SignOut(ctx, conf.Session.Token); err != nil {
		return fmt.Errorf("sign out demo user: %w", err)
	}

	venue, err := app.entities.Create(ctx, owner, models.EntityTypeVenue, "Demo Hall", false)
	if err != nil {
		return fmt.Errorf("bootstrap demo venue: %w", err)
	}
	if _, err := app.entities.SetPublished(ctx, owner, venue.ID, true); err != nil {
		return fmt.Errorf("publish demo venue: %w", err)
	}

	festival, err := app.events.CreateFestival(ctx, owner, venue.ID, "Demo Fest")
	if err != nil {
		return fmt.Errorf("bootstrap demo festival: %w", err)
	}
	event, err := app.events.CreateEvent(ctx, owner, models.Event{
		Name:       "Opening Night",
		FestivalID: uuid.NullUUID{UUID: festival.ID, Valid: true},
		StartsAt:   time.Now().Add(30 * 24 * time.Hour).Truncate(time.Hour),
	})
	if err != nil {
		return fmt.Errorf("bootstrap demo event: %w", err)
	}

	inv, err := app.invitations.Create(ctx, owner, invitations.CreateInput{
		EntityID:   venue.ID,
		Access:     models.AccessEditor,
		Email:      "crew@backstage.local",
		RoleLabels: []string{"Stage Manager"},
	})
	if err != nil {
		return fmt.Errorf("bootstrap demo invitation: %w", err)
	}

	log.Info().
		Str("venue_id", venue.ID.String()).
		Str("festival_id", festival.ID.String()).
		Str("event_id", event.ID.String()).
		Str("invitation_id", inv.ID.String()).
		Msg("demo data created")
	return nil
}
