package bindings

import (
	"context"
	"time"

	"github.com/google/uuid"

	"backstage/internal/access"
	"backstage/shared/go/models"
)

// Store describes the persistence operations required by the binding service.
type Store interface {
	UpsertBinding(ctx context.Context, b models.PersonaBinding, now time.Time) (models.PersonaBinding, error)
	DeleteBinding(ctx context.Context, entityID, personaID uuid.UUID) error
	ListCredits(ctx context.Context, entityID uuid.UUID, publicOnly bool) ([]models.Credit, error)
}

// Service manages persona credits on entities. Credits never grant access.
type Service interface {
	Set(ctx context.Context, actor uuid.UUID, b models.PersonaBinding) (models.PersonaBinding, error)
	Delete(ctx context.Context, actor, entityID, personaID uuid.UUID) error
	// List returns every credit to team viewers.
	List(ctx context.Context, actor, entityID uuid.UUID) ([]models.Credit, error)
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

func (s *service) Set(ctx context.Context, actor uuid.UUID, b models.PersonaBinding) (models.PersonaBinding, error) {
	if err := s.access.RequireLevel(ctx, actor, b.EntityID, models.AccessAdmin); err != nil {
		return models.PersonaBinding{}, err
	}
	return s.store.UpsertBinding(ctx, b, s.now().UTC())
}

func (s *service) Delete(ctx context.Context, actor, entityID, personaID uuid.UUID) error {
	if err := s.access.RequireLevel(ctx, actor, entityID, models.AccessAdmin); err != nil {
		return err
	}
	return s.store.DeleteBinding(ctx, entityID, personaID)
}

func (s *service) List(ctx context.Context, actor, entityID uuid.UUID) ([]models.Credit, error) {
	if err := s.access.Require(ctx, actor, access.ActionView, access.Entity(entityID)); err != nil {
		return nil, err
	}
	credits, err := s.store.ListCredits(ctx, entityID, false)
	if err != nil {
		return nil, err
	}
	if credits == nil {
		credits = []models.Credit{}
	}
	return credits, nil
}
