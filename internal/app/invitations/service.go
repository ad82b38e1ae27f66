// Package invitations implements the invitation lifecycle: create, resolve,
// accept and revoke, plus the listings the team and inbox pages use.
package invitations

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"backstage/internal/access"
	"backstage/internal/app/identity"
	"backstage/internal/apperr"
	"backstage/internal/invitetoken"
	"backstage/internal/notify"
	"backstage/internal/store"
	"backstage/internal/telemetry"
	"backstage/shared/go/logging"
	"backstage/shared/go/models"
)

// DefaultTTL is the fixed validity window of a new invitation.
const DefaultTTL = 7 * 24 * time.Hour

// AcceptPath is the page that resolves invitation links.
const AcceptPath = "/accept-invitation"

// Store describes the persistence operations required by the invitation service.
type Store interface {
	GetEntity(ctx context.Context, id uuid.UUID) (models.Entity, error)
	GetFestival(ctx context.Context, id uuid.UUID) (models.Festival, error)
	GetPersona(ctx context.Context, id uuid.UUID) (models.Persona, error)
	GetUser(ctx context.Context, id uuid.UUID) (models.User, error)
	EntitySummaries(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Entity, error)

	CreateInvitation(ctx context.Context, inv models.Invitation) (models.Invitation, error)
	InvitationByID(ctx context.Context, id uuid.UUID) (models.Invitation, error)
	InvitationByToken(ctx context.Context, tokenID string) (models.Invitation, error)
	LatestInvitationForEmail(ctx context.Context, email string, entityID uuid.UUID) (models.Invitation, error)
	ListInvitationsForEntity(ctx context.Context, entityID uuid.UUID) ([]models.Invitation, error)
	ListPendingForRecipient(ctx context.Context, userID uuid.UUID, email string, now time.Time) ([]models.Invitation, error)
	AcceptInvitation(ctx context.Context, invitationID, userID uuid.UUID, now time.Time) (store.AcceptResult, error)
	RevokeInvitation(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
}

// CreateInput is an offer of access. Exactly one of Email or InvitedUserID names
// the recipient. When FestivalID is set the offer targets the festival's host
// entity and EntityID is ignored.
type CreateInput struct {
	EntityID         uuid.UUID
	FestivalID       uuid.NullUUID
	Access           models.AccessLevel
	Email            string
	InvitedUserID    uuid.NullUUID
	InvitedPersonaID uuid.NullUUID
	RoleLabels       []string
}

// ResolveQuery looks an invitation up by link token, or by the legacy email and
// entity pair.
type ResolveQuery struct {
	Token    string
	Email    string
	EntityID uuid.UUID
}

// Service exposes the invitation lifecycle.
type Service interface {
	Create(ctx context.Context, actor uuid.UUID, in CreateInput) (models.Invitation, error)
	// Resolve is read-only and works without a session. It never expires rows;
	// the view reports expiry for the caller to act on.
	Resolve(ctx context.Context, q ResolveQuery) (models.InvitationView, error)
	// Accept grants the offered membership. Repeating it for the same user
	// returns the same membership.
	Accept(ctx context.Context, invitationID, userID uuid.UUID) (models.TeamMembership, error)
	// AcceptAsUser checks that the signed-in user is the addressee before Accept.
	AcceptAsUser(ctx context.Context, invitationID uuid.UUID, user models.User) (models.TeamMembership, error)
	Revoke(ctx context.Context, actor, invitationID uuid.UUID) error
	// ListForEntity returns the entity's invitations that the actor may revoke.
	ListForEntity(ctx context.Context, actor, entityID uuid.UUID) ([]models.Invitation, error)
	ListMine(ctx context.Context, user models.User) ([]models.InvitationView, error)
}

// Options configures the service.
type Options struct {
	Signer   *invitetoken.Signer
	TTL      time.Duration
	BaseURL  string
	Notifier notify.Notifier
}

type service struct {
	store    Store
	access   access.Service
	signer   *invitetoken.Signer
	notifier notify.Notifier
	ttl      time.Duration
	baseURL  string
	tracer   trace.Tracer
	now      func() time.Time
}

// New wires a Service backed by the provided Store and access checks.
func New(store Store, acl access.Service, opts Options) Service {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &service{
		store:    store,
		access:   acl,
		signer:   opts.Signer,
		notifier: opts.Notifier,
		ttl:      ttl,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		tracer:   telemetry.Tracer(),
		now:      time.Now,
	}
}

func (s *service) Create(ctx context.Context, actor uuid.UUID, in CreateInput) (inv models.Invitation, err error) {
	ctx, span := s.tracer.Start(ctx, "invitations.Create")
	defer func() { endSpan(span, err) }()

	if !in.Access.Invitable() {
		return models.Invitation{}, apperr.Validation("invitations can only offer admin, editor or viewer access")
	}

	entityID := in.EntityID
	target := access.Entity(entityID)
	if in.FestivalID.Valid {
		festival, err := s.store.GetFestival(ctx, in.FestivalID.UUID)
		if err != nil {
			return models.Invitation{}, err
		}
		entityID = festival.HostEntityID
		target = access.Festival(festival.ID)
	}
	if err := s.access.Require(ctx, actor, access.ActionInvite, target); err != nil {
		return models.Invitation{}, err
	}

	entity, err := s.store.GetEntity(ctx, entityID)
	if err != nil {
		return models.Invitation{}, err
	}

	draft := models.Invitation{
		EntityID:         entityID,
		FestivalID:       in.FestivalID,
		InvitedPersonaID: in.InvitedPersonaID,
		Access:           in.Access,
		RoleLabels:       cleanLabels(in.RoleLabels),
		InvitedBy:        actor,
	}
	if err := s.fillRecipient(ctx, &draft, in); err != nil {
		return models.Invitation{}, err
	}

	draft.TokenID, err = invitetoken.NewTokenID()
	if err != nil {
		return models.Invitation{}, err
	}
	now := s.now().UTC()
	draft.InvitedAt = now
	draft.ExpiresAt = now.Add(s.ttl)

	created, err := s.store.CreateInvitation(ctx, draft)
	if err != nil {
		return models.Invitation{}, err
	}
	created.Token, err = s.sign(created)
	if err != nil {
		return models.Invitation{}, err
	}

	span.SetAttributes(
		attribute.String("invitation.id", created.ID.String()),
		attribute.String("invitation.access", created.Access.String()),
	)
	telemetry.RecordInvitation(telemetry.OutcomeCreated)
	logging.WithContext(ctx).Info().
		Str("invitation_id", created.ID.String()).
		Str("entity_id", created.EntityID.String()).
		Str("access", created.Access.String()).
		Msg("invitation created")

	s.deliver(ctx, created, entity)
	return created, nil
}

func (s *service) fillRecipient(ctx context.Context, draft *models.Invitation, in CreateInput) error {
	email := strings.TrimSpace(in.Email)
	switch {
	case email != "" && in.InvitedUserID.Valid:
		return apperr.Validation("invite either an email address or a user, not both")
	case email != "":
		if in.InvitedPersonaID.Valid {
			return apperr.Validation("a persona can only be named for a platform user")
		}
		addr, err := identity.NormalizeEmail(email)
		if err != nil {
			return err
		}
		draft.Email = addr
	case in.InvitedUserID.Valid:
		if _, err := s.store.GetUser(ctx, in.InvitedUserID.UUID); err != nil {
			return err
		}
		if in.InvitedPersonaID.Valid {
			persona, err := s.store.GetPersona(ctx, in.InvitedPersonaID.UUID)
			if err != nil {
				return err
			}
			if persona.UserID != in.InvitedUserID.UUID {
				return apperr.Validation("persona does not belong to the invited user")
			}
		}
		draft.InvitedUserID = in.InvitedUserID
	default:
		return apperr.Validation("an email address or a user is required")
	}
	return nil
}

func (s *service) deliver(ctx context.Context, inv models.Invitation, entity models.Entity) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.InvitationCreated(ctx, notify.Invitation{
		InvitationID: inv.ID,
		EntityName:   entity.Name,
		Email:        inv.Email,
		UserID:       inv.InvitedUserID,
		Access:       inv.Access.String(),
		Link:         s.link(inv.Token),
		ExpiresAt:    inv.ExpiresAt,
	})
	if err != nil {
		logging.WithContext(ctx).Warn().Err(err).Str("invitation_id", inv.ID.String()).Msg("invitation delivery failed")
	}
}

func (s *service) Resolve(ctx context.Context, q ResolveQuery) (view models.InvitationView, err error) {
	ctx, span := s.tracer.Start(ctx, "invitations.Resolve")
	defer func() { endSpan(span, err) }()

	var inv models.Invitation
	switch {
	case strings.TrimSpace(q.Token) != "":
		claims, err := s.signer.Parse(q.Token)
		if err != nil {
			return models.InvitationView{}, apperr.NotFound("invitation not found")
		}
		inv, err = s.store.InvitationByToken(ctx, claims.TokenID)
		if err != nil {
			return models.InvitationView{}, err
		}
		if inv.ID != claims.InvitationID || inv.EntityID != claims.EntityID {
			return models.InvitationView{}, apperr.NotFound("invitation not found")
		}
	case strings.TrimSpace(q.Email) != "" && q.EntityID != uuid.Nil:
		inv, err = s.store.LatestInvitationForEmail(ctx, q.Email, q.EntityID)
		if err != nil {
			return models.InvitationView{}, err
		}
	default:
		return models.InvitationView{}, apperr.Validation("a token, or an email and entity id, is required")
	}

	views, err := s.views(ctx, []models.Invitation{inv})
	if err != nil {
		return models.InvitationView{}, err
	}
	telemetry.RecordInvitation(telemetry.OutcomeResolved)
	return views[0], nil
}

// views adds the entity and festival display facts to each invitation.
func (s *service) views(ctx context.Context, invs []models.Invitation) ([]models.InvitationView, error) {
	now := s.now()

	entityIDs := make([]uuid.UUID, 0, len(invs))
	festivalIDs := make(map[uuid.UUID]bool)
	for _, inv := range invs {
		entityIDs = append(entityIDs, inv.EntityID)
		if inv.FestivalID.Valid {
			festivalIDs[inv.FestivalID.UUID] = true
		}
	}

	var (
		entities      map[uuid.UUID]models.Entity
		festivalNames = make(map[uuid.UUID]string, len(festivalIDs))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		entities, err = s.store.EntitySummaries(gctx, entityIDs)
		return err
	})
	g.Go(func() error {
		for id := range festivalIDs {
			f, err := s.store.GetFestival(gctx, id)
			if err != nil {
				if errors.Is(err, apperr.ErrNotFound) {
					continue
				}
				return err
			}
			festivalNames[id] = f.Name
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]models.InvitationView, 0, len(invs))
	for _, inv := range invs {
		inv.Token = ""
		entity := entities[inv.EntityID]
		status := inv.EffectiveStatus(now)
		view := models.InvitationView{
			Invitation: inv,
			Status:     status,
			Expired:    status == models.InvitationExpired,
			EntityName: entity.Name,
			EntitySlug: entity.Slug,
			EntityType: entity.Type,
			HeroImage:  entity.HeroImage,
		}
		if inv.FestivalID.Valid {
			view.FestivalName = festivalNames[inv.FestivalID.UUID]
		}
		out = append(out, view)
	}
	return out, nil
}

func (s *service) Accept(ctx context.Context, invitationID, userID uuid.UUID) (m models.TeamMembership, err error) {
	ctx, span := s.tracer.Start(ctx, "invitations.Accept", trace.WithAttributes(
		attribute.String("invitation.id", invitationID.String()),
	))
	defer func() { endSpan(span, err) }()

	if err := ctx.Err(); err != nil {
		return models.TeamMembership{}, err
	}

	result, err := s.store.AcceptInvitation(ctx, invitationID, userID, s.now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrExpired):
			telemetry.RecordInvitation(telemetry.OutcomeExpired)
		case errors.Is(err, apperr.ErrAlreadyProcessed), errors.Is(err, apperr.ErrPermissionDenied):
			telemetry.RecordInvitation(telemetry.OutcomeRejected)
		}
		return models.TeamMembership{}, err
	}

	if result.Replayed {
		telemetry.RecordInvitation(telemetry.OutcomeReplayed)
		logging.WithContext(ctx).Info().
			Str("invitation_id", invitationID.String()).
			Msg("invitation accept replayed")
		return result.Membership, nil
	}

	telemetry.RecordInvitation(telemetry.OutcomeAccepted)
	logging.WithContext(ctx).Info().
		Str("invitation_id", invitationID.String()).
		Str("membership_id", result.Membership.ID.String()).
		Str("access", result.Membership.Access.String()).
		Msg("invitation accepted")
	return result.Membership, nil
}

func (s *service) AcceptAsUser(ctx context.Context, invitationID uuid.UUID, user models.User) (models.TeamMembership, error) {
	inv, err := s.store.InvitationByID(ctx, invitationID)
	if err != nil {
		return models.TeamMembership{}, err
	}
	if !inv.AddressedTo(user.ID, user.Email) {
		telemetry.RecordInvitation(telemetry.OutcomeRejected)
		return models.TeamMembership{}, apperr.PermissionDenied("this invitation was sent to a different account")
	}
	return s.Accept(ctx, invitationID, user.ID)
}

func (s *service) Revoke(ctx context.Context, actor, invitationID uuid.UUID) (err error) {
	ctx, span := s.tracer.Start(ctx, "invitations.Revoke")
	defer func() { endSpan(span, err) }()

	inv, err := s.store.InvitationByID(ctx, invitationID)
	if err != nil {
		return err
	}
	if err := s.access.Require(ctx, actor, access.ActionInvite, inviteTarget(inv)); err != nil {
		return err
	}

	changed, err := s.store.RevokeInvitation(ctx, invitationID, s.now().UTC())
	if err != nil {
		return err
	}
	if changed {
		telemetry.RecordInvitation(telemetry.OutcomeRevoked)
		logging.WithContext(ctx).Info().Str("invitation_id", invitationID.String()).Msg("invitation revoked")
	}
	return nil
}

func (s *service) ListForEntity(ctx context.Context, actor, entityID uuid.UUID) ([]models.Invitation, error) {
	if err := s.access.Require(ctx, actor, access.ActionInvite, access.Entity(entityID)); err != nil {
		return nil, err
	}
	invs, err := s.store.ListInvitationsForEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]models.Invitation, 0, len(invs))
	allowed := map[access.Target]bool{access.Entity(entityID): true}
	for _, inv := range invs {
		// Festival invitations are listed to those who could revoke them.
		target := inviteTarget(inv)
		ok, seen := allowed[target]
		if !seen {
			ok = s.access.CanPerform(ctx, actor, access.ActionInvite, target)
			allowed[target] = ok
		}
		if !ok {
			continue
		}
		if inv.IsExpired(now) {
			inv.Status = models.InvitationExpired
		}
		if inv.Status == models.InvitationPending {
			if inv.Token, err = s.sign(inv); err != nil {
				return nil, err
			}
		}
		out = append(out, inv)
	}
	return out, nil
}

func (s *service) ListMine(ctx context.Context, user models.User) ([]models.InvitationView, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	invs, err := s.store.ListPendingForRecipient(ctx, user.ID, user.Email, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if len(invs) == 0 {
		return []models.InvitationView{}, nil
	}
	return s.views(ctx, invs)
}

func (s *service) sign(inv models.Invitation) (string, error) {
	return s.signer.Sign(invitetoken.Claims{
		TokenID:      inv.TokenID,
		InvitationID: inv.ID,
		EntityID:     inv.EntityID,
		IssuedAt:     inv.InvitedAt,
		ExpiresAt:    inv.ExpiresAt,
	})
}

func (s *service) link(token string) string {
	return s.baseURL + AcceptPath + "?" + url.Values{"token": {token}}.Encode()
}

func inviteTarget(inv models.Invitation) access.Target {
	if inv.FestivalID.Valid {
		return access.Festival(inv.FestivalID.UUID)
	}
	return access.Entity(inv.EntityID)
}

func cleanLabels(labels []string) []string {
	out := make([]string, 0, len(labels))
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
