package team

import (
	"context"
	"time"

	"github.com/google/uuid"

	"backstage/internal/access"
	"backstage/internal/apperr"
	"backstage/shared/go/logging"
	"backstage/shared/go/models"
)

// Store describes the persistence operations required by the team service.
type Store interface {
	ListActiveTeam(ctx context.Context, entityID uuid.UUID) ([]models.TeamMembership, error)
	MembershipByID(ctx context.Context, id uuid.UUID) (models.TeamMembership, error)
	GetPersona(ctx context.Context, id uuid.UUID) (models.Persona, error)
	UpdateMemberAccess(ctx context.Context, membershipID uuid.UUID, access models.AccessLevel) (models.TeamMembership, error)
	UpdateMemberProfile(ctx context.Context, membershipID uuid.UUID, personaID uuid.NullUUID, roleLabels []string) (models.TeamMembership, error)
	EndMembership(ctx context.Context, membershipID uuid.UUID, now time.Time) error
}

// Service exposes team administration.
type Service interface {
	List(ctx context.Context, actor, entityID uuid.UUID) ([]models.TeamMembership, error)
	UpdateAccess(ctx context.Context, actor, membershipID uuid.UUID, level models.AccessLevel) (models.TeamMembership, error)
	UpdateProfile(ctx context.Context, actor, membershipID uuid.UUID, personaID uuid.NullUUID, roleLabels []string) (models.TeamMembership, error)
	Remove(ctx context.Context, actor, membershipID uuid.UUID) error
	Leave(ctx context.Context, actor, membershipID uuid.UUID) error
}

type service struct {
	store  Store
	access access.Service
	now    func() time.Time
}

// New wires a Service backed by the provided Store and access checks.
func New(store Store, acl access.Service) Service {
	return &service{store: store, access: acl, now: time.Now}
}

func (s *service) List(ctx context.Context, actor, entityID uuid.UUID) ([]models.TeamMembership, error) {
	if err := s.access.Require(ctx, actor, access.ActionView, access.Entity(entityID)); err != nil {
		return nil, err
	}
	members, err := s.store.ListActiveTeam(ctx, entityID)
	if err != nil {
		return nil, err
	}
	if members == nil {
		members = []models.TeamMembership{}
	}
	return members, nil
}

// UpdateAccess overwrites a member's level. Only admins and the owner may do
// this, and the owner row is never changed.
func (s *service) UpdateAccess(ctx context.Context, actor, membershipID uuid.UUID, level models.AccessLevel) (models.TeamMembership, error) {
	if !level.Invitable() {
		return models.TeamMembership{}, apperr.Validation("access must be admin, editor or viewer")
	}
	m, err := s.activeMembership(ctx, membershipID)
	if err != nil {
		return models.TeamMembership{}, err
	}
	if err := s.access.RequireLevel(ctx, actor, m.EntityID, models.AccessAdmin); err != nil {
		return models.TeamMembership{}, err
	}
	if m.Access == models.AccessOwner {
		return models.TeamMembership{}, apperr.PermissionDenied("the owner's access cannot be changed")
	}

	updated, err := s.store.UpdateMemberAccess(ctx, membershipID, level)
	if err != nil {
		return models.TeamMembership{}, err
	}
	logging.WithContext(ctx).Info().
		Str("membership_id", membershipID.String()).
		Str("access", level.String()).
		Msg("member access updated")
	return updated, nil
}

// UpdateProfile sets the persona and role labels shown for a member. Members
// may edit their own row; admins may edit anyone's.
func (s *service) UpdateProfile(ctx context.Context, actor, membershipID uuid.UUID, personaID uuid.NullUUID, roleLabels []string) (models.TeamMembership, error) {
	m, err := s.activeMembership(ctx, membershipID)
	if err != nil {
		return models.TeamMembership{}, err
	}
	if m.UserID != actor {
		if err := s.access.RequireLevel(ctx, actor, m.EntityID, models.AccessAdmin); err != nil {
			return models.TeamMembership{}, err
		}
	}
	if personaID.Valid {
		p, err := s.store.GetPersona(ctx, personaID.UUID)
		if err != nil {
			return models.TeamMembership{}, err
		}
		if p.UserID != m.UserID {
			return models.TeamMembership{}, apperr.Validation("persona must belong to the member")
		}
	}
	return s.store.UpdateMemberProfile(ctx, membershipID, personaID, roleLabels)
}

func (s *service) Remove(ctx context.Context, actor, membershipID uuid.UUID) error {
	m, err := s.activeMembership(ctx, membershipID)
	if err != nil {
		return err
	}
	if err := s.access.RequireLevel(ctx, actor, m.EntityID, models.AccessAdmin); err != nil {
		return err
	}
	if m.Access == models.AccessOwner {
		return apperr.PermissionDenied("the owner cannot be removed")
	}
	if err := s.store.EndMembership(ctx, membershipID, s.now().UTC()); err != nil {
		return err
	}
	logging.WithContext(ctx).Info().Str("membership_id", membershipID.String()).Msg("member removed")
	return nil
}

func (s *service) Leave(ctx context.Context, actor, membershipID uuid.UUID) error {
	m, err := s.activeMembership(ctx, membershipID)
	if err != nil {
		return err
	}
	if m.UserID != actor {
		return apperr.PermissionDenied("only the member can leave")
	}
	if m.Access == models.AccessOwner {
		return apperr.PermissionDenied("the owner cannot leave")
	}
	return s.store.EndMembership(ctx, membershipID, s.now().UTC())
}

func (s *service) activeMembership(ctx context.Context, id uuid.UUID) (models.TeamMembership, error) {
	if err := ctx.Err(); err != nil {
		return models.TeamMembership{}, err
	}
	m, err := s.store.MembershipByID(ctx, id)
	if err != nil {
		return models.TeamMembership{}, err
	}
	if !m.Active() {
		return models.TeamMembership{}, apperr.NotFound("membership has ended")
	}
	return m, nil
}
