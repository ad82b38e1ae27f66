package main

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"backstage/internal/access"
	"backstage/internal/app/bindings"
	"backstage/internal/app/entities"
	"backstage/internal/app/events"
	"backstage/internal/app/identity"
	"backstage/internal/app/invitations"
	"backstage/internal/app/personas"
	"backstage/internal/app/team"
	"backstage/internal/app/zones"
	"backstage/internal/httpapi"
	"backstage/internal/invitetoken"
	"backstage/internal/notify"
	"backstage/internal/store"
	"backstage/shared/go/config"
	"backstage/shared/go/middleware"
	"backstage/shared/go/models"
)

// application holds the wired services and the HTTP handler.
type application struct {
	identity    identity.Service
	entities    entities.Service
	events      events.Service
	invitations invitations.Service
	handler     http.Handler
	close       func()
}

func newApp(cfg *config.Config, dataStore *store.Store) (*application, error) {
	superAdmins, err := cfg.SuperAdmins()
	if err != nil {
		return nil, err
	}
	signer, err := invitetoken.NewSigner(cfg.Invites.TokenSecret, "backstage")
	if err != nil {
		return nil, fmt.Errorf("invitation signer: %w", err)
	}

	// Base services
	acl := access.New(dataStore, access.WithSuperAdmins(superAdmins))
	identitySvc := identity.New(dataStore, cfg.Security.SessionTTL)
	personaSvc := personas.New(dataStore)

	// Services guarded by the access resolver
	entitySvc := entities.New(dataStore, acl)
	teamSvc := team.New(dataStore, acl)
	bindingSvc := bindings.New(dataStore, acl)
	eventSvc := events.New(dataStore, acl)
	zoneSvc := zones.New(dataStore, acl)
	invitationSvc := invitations.New(dataStore, acl, invitations.Options{
		Signer:   signer,
		TTL:      cfg.Invites.TTL,
		BaseURL:  cfg.Invites.PublicBaseURL,
		Notifier: notify.NewLogNotifier(log.Logger.With().Str("component", "notify").Logger()),
	})

	// Audit only. Accepting a pending invitation after sign-in is retried by the
	// client against POST /api/v1/invitations/{id}/accept, which is idempotent.
	unsubscribe := identitySvc.OnAuthStateChange(func(ev models.AuthEvent) {
		log.Info().
			Str("event", string(ev.Type)).
			Str("user_id", ev.User.ID.String()).
			Msg("auth state changed")
	})

	server := httpapi.New(httpapi.Services{
		Identity:    identitySvc,
		Entities:    entitySvc,
		Personas:    personaSvc,
		Team:        teamSvc,
		Invitations: invitationSvc,
		Bindings:    bindingSvc,
		Events:      eventSvc,
		Zones:       zoneSvc,
		Access:      acl,
	}, httpapi.Options{
		AllowedOrigins:           cfg.CORS.AllowedOrigins,
		ResolveLimiter:           middleware.NewRateLimiter(cfg.Invites.ResolveRate, cfg.Invites.ResolveBurst),
		ExposeConfirmationTokens: cfg.IsDevelopment(),
		SecureCookies:            cfg.IsProduction(),
	})

	return &application{
		identity:    identitySvc,
		entities:    entitySvc,
		events:      eventSvc,
		invitations: invitationSvc,
		handler:     server.Routes(),
		close:       unsubscribe,
	}, nil
}
