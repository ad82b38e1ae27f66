package entities

import (
	"context"
	"time"

	"github.com/google/uuid"

	"backstage/internal/access"
	"backstage/internal/apperr"
	"backstage/internal/store"
	"backstage/shared/go/logging"
	"backstage/shared/go/models"
)

// Store describes the persistence operations required by the entity service.
type Store interface {
	CreateEntity(ctx context.Context, entity models.Entity) (models.Entity, models.TeamMembership, error)
	GetEntity(ctx context.Context, id uuid.UUID) (models.Entity, error)
	GetEntityBySlug(ctx context.Context, slug string) (models.Entity, error)
	UpdateEntity(ctx context.Context, id uuid.UUID, patch store.EntityPatch, now time.Time) (models.Entity, error)
	SetEntityPublished(ctx context.Context, id uuid.UUID, published bool, now time.Time) (models.Entity, error)
	ListEntitiesForUser(ctx context.Context, scope models.PersonaScope) ([]models.Entity, error)
	ListCredits(ctx context.Context, entityID uuid.UUID, publicOnly bool) ([]models.Credit, error)
}

// Profile is the public view of an entity.
type Profile struct {
	Entity  models.Entity   `json:"entity"`
	Credits []models.Credit `json:"credits"`
}

// Service exposes entity workflows.
type Service interface {
	Create(ctx context.Context, actor uuid.UUID, entityType models.EntityType, name string, hostOrganizer bool) (models.Entity, error)
	Get(ctx context.Context, actor, id uuid.UUID) (models.Entity, error)
	// PublicProfile returns a published entity with its public credits.
	PublicProfile(ctx context.Context, slug string) (Profile, error)
	Update(ctx context.Context, actor, id uuid.UUID, patch store.EntityPatch) (models.Entity, error)
	SetPublished(ctx context.Context, actor, id uuid.UUID, published bool) (models.Entity, error)
	ListMine(ctx context.Context, scope models.PersonaScope) ([]models.Entity, error)
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

func (s *service) Create(ctx context.Context, actor uuid.UUID, entityType models.EntityType, name string, hostOrganizer bool) (models.Entity, error) {
	if err := ctx.Err(); err != nil {
		return models.Entity{}, err
	}
	if entityType == models.EntityTypeVenue {
		hostOrganizer = false
	}

	entity, _, err := s.store.CreateEntity(ctx, models.Entity{
		Type:            entityType,
		Name:            name,
		IsHostOrganizer: hostOrganizer,
		CreatedBy:       actor,
		CreatedAt:       s.now().UTC(),
	})
	if err != nil {
		return models.Entity{}, err
	}

	logging.WithContext(ctx).Info().
		Str("entity_id", entity.ID.String()).
		Str("type", string(entity.Type)).
		Msg("entity created")
	return entity, nil
}

func (s *service) Get(ctx context.Context, actor, id uuid.UUID) (models.Entity, error) {
	if err := s.access.Require(ctx, actor, access.ActionView, access.Entity(id)); err != nil {
		return models.Entity{}, err
	}
	return s.store.GetEntity(ctx, id)
}

func (s *service) PublicProfile(ctx context.Context, slug string) (Profile, error) {
	if err := ctx.Err(); err != nil {
		return Profile{}, err
	}
	entity, err := s.store.GetEntityBySlug(ctx, slug)
	if err != nil {
		return Profile{}, err
	}
	if !entity.IsPublished {
		return Profile{}, apperr.NotFound("entity not found")
	}
	credits, err := s.store.ListCredits(ctx, entity.ID, true)
	if err != nil {
		return Profile{}, err
	}
	if credits == nil {
		credits = []models.Credit{}
	}
	return Profile{Entity: entity, Credits: credits}, nil
}

func (s *service) Update(ctx context.Context, actor, id uuid.UUID, patch store.EntityPatch) (models.Entity, error) {
	if err := s.access.Require(ctx, actor, access.ActionEdit, access.Entity(id)); err != nil {
		return models.Entity{}, err
	}
	return s.store.UpdateEntity(ctx, id, patch, s.now().UTC())
}

func (s *service) SetPublished(ctx context.Context, actor, id uuid.UUID, published bool) (models.Entity, error) {
	if err := s.access.Require(ctx, actor, access.ActionPublish, access.Entity(id)); err != nil {
		return models.Entity{}, err
	}
	return s.store.SetEntityPublished(ctx, id, published, s.now().UTC())
}

func (s *service) ListMine(ctx context.Context, scope models.PersonaScope) ([]models.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entities, err := s.store.ListEntitiesForUser(ctx, scope)
	if err != nil {
		return nil, err
	}
	if entities == nil {
		entities = []models.Entity{}
	}
	return entities, nil
}
