package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"backstage/internal/apperr"
	"backstage/internal/telemetry"
	"backstage/shared/go/logging"
	"backstage/shared/go/models"
)

// Store is the read side the resolver needs.
type Store interface {
	GetUser(ctx context.Context, id uuid.UUID) (models.User, error)
	GetEntity(ctx context.Context, id uuid.UUID) (models.Entity, error)
	EventHosting(ctx context.Context, eventID uuid.UUID) (models.Hosting, error)
	FestivalHosting(ctx context.Context, festivalID uuid.UUID) (models.Hosting, error)
	BestAccess(ctx context.Context, userID uuid.UUID, entityIDs []uuid.UUID) (models.AccessLevel, bool, error)
}

// Service checks permissions against stored memberships.
type Service interface {
	Decide(ctx context.Context, userID uuid.UUID, action Action, target Target) Decision
	CanPerform(ctx context.Context, userID uuid.UUID, action Action, target Target) bool
	// Require returns a PermissionDenied error unless the action is allowed.
	Require(ctx context.Context, userID uuid.UUID, action Action, target Target) error
	// RequireLevel checks the user's own membership on an entity against a level.
	RequireLevel(ctx context.Context, userID, entityID uuid.UUID, level models.AccessLevel) error
}

// Option configures the service.
type Option func(*service)

// WithSuperAdmins adds configured platform-wide administrators on top of the
// users flagged in the store.
func WithSuperAdmins(ids []uuid.UUID) Option {
	return func(s *service) {
		for _, id := range ids {
			s.superAdmins[id] = true
		}
	}
}

type service struct {
	store       Store
	superAdmins map[uuid.UUID]bool
}

// New constructs an access Service.
func New(store Store, opts ...Option) Service {
	s := &service{store: store, superAdmins: make(map[uuid.UUID]bool)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) Decide(ctx context.Context, userID uuid.UUID, action Action, target Target) Decision {
	facts, err := s.loadFacts(ctx, userID, target)
	if err != nil {
		logging.WithContext(ctx).Warn().
			Err(err).
			Str("action", string(action)).
			Str("target_kind", string(target.Kind)).
			Str("target_id", target.ID.String()).
			Msg("access facts unavailable, denying")
		facts = Facts{}
	}

	decision := Decide(action, target, facts)
	telemetry.RecordAccessDecision(string(action), decision.String())
	return decision
}

func (s *service) CanPerform(ctx context.Context, userID uuid.UUID, action Action, target Target) bool {
	return s.Decide(ctx, userID, action, target).Allowed()
}

func (s *service) Require(ctx context.Context, userID uuid.UUID, action Action, target Target) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.CanPerform(ctx, userID, action, target) {
		return apperr.PermissionDenied(fmt.Sprintf("not allowed to %s this %s", action, target.Kind))
	}
	return nil
}

func (s *service) RequireLevel(ctx context.Context, userID, entityID uuid.UUID, level models.AccessLevel) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.isSuperAdmin(ctx, userID) {
		return nil
	}
	best, _, err := s.store.BestAccess(ctx, userID, []uuid.UUID{entityID})
	if err != nil {
		return fmt.Errorf("load access: %w", err)
	}
	if !best.AtLeast(level) {
		return apperr.PermissionDenied(fmt.Sprintf("requires %s access", level))
	}
	return nil
}

func (s *service) isSuperAdmin(ctx context.Context, userID uuid.UUID) bool {
	if s.superAdmins[userID] {
		return true
	}
	user, err := s.store.GetUser(ctx, userID)
	return err == nil && user.IsSuperAdmin
}

// loadFacts gathers the super-admin flag and the target's host set in parallel,
// then the user's access on the owners and on the co-hosts separately.
func (s *service) loadFacts(ctx context.Context, userID uuid.UUID, target Target) (Facts, error) {
	var (
		facts   Facts
		hosting models.Hosting
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		facts.SuperAdmin = s.isSuperAdmin(gctx, userID)
		return nil
	})
	g.Go(func() error {
		var err error
		hosting, err = s.hosting(gctx, target)
		if errors.Is(err, apperr.ErrNotFound) {
			return nil
		}
		if err == nil {
			facts.TargetFound = true
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return Facts{}, err
	}
	if facts.SuperAdmin || !facts.TargetFound {
		return facts, nil
	}

	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		level, _, err := s.store.BestAccess(gctx, userID, hosting.Owners)
		facts.Access = level
		return err
	})
	if len(hosting.CoHosts) > 0 {
		g.Go(func() error {
			level, _, err := s.store.BestAccess(gctx, userID, hosting.CoHosts)
			facts.CoHostAccess = level
			return err
		})
	}
	if target.Kind == TargetLineup && hosting.FestivalHost.Valid {
		g.Go(func() error {
			_, found, err := s.store.BestAccess(gctx, userID, []uuid.UUID{hosting.FestivalHost.UUID})
			facts.FestivalCrew = found
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Facts{}, err
	}
	return facts, nil
}

func (s *service) hosting(ctx context.Context, target Target) (models.Hosting, error) {
	switch target.Kind {
	case TargetEntity:
		if _, err := s.store.GetEntity(ctx, target.ID); err != nil {
			return models.Hosting{}, err
		}
		return models.Hosting{Owners: []uuid.UUID{target.ID}}, nil
	case TargetEvent, TargetLineup:
		return s.store.EventHosting(ctx, target.ID)
	case TargetFestival:
		return s.store.FestivalHosting(ctx, target.ID)
	default:
		return models.Hosting{}, apperr.NotFound("unknown target kind")
	}
}
