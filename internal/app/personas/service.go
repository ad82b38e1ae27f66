package personas

import (
	"context"
	"time"

	"github.com/google/uuid"

	"backstage/internal/apperr"
	"backstage/internal/store"
	"backstage/shared/go/models"
)

// Store describes the persistence operations required by the persona service.
type Store interface {
	CreatePersona(ctx context.Context, p models.Persona) (models.Persona, error)
	GetPersona(ctx context.Context, id uuid.UUID) (models.Persona, error)
	UpdatePersona(ctx context.Context, id, userID uuid.UUID, patch store.PersonaPatch, now time.Time) (models.Persona, error)
	ListPersonasForUser(ctx context.Context, userID uuid.UUID) ([]models.Persona, error)
}

// Service exposes persona workflows. Personas are edited only by their owner.
type Service interface {
	Create(ctx context.Context, owner uuid.UUID, p models.Persona) (models.Persona, error)
	Get(ctx context.Context, viewer uuid.UUID, id uuid.UUID) (models.Persona, error)
	Update(ctx context.Context, owner, id uuid.UUID, patch store.PersonaPatch) (models.Persona, error)
	ListMine(ctx context.Context, owner uuid.UUID) ([]models.Persona, error)
	// Scope validates that personaID belongs to the user and returns the query scope.
	Scope(ctx context.Context, userID uuid.UUID, personaID uuid.NullUUID) (models.PersonaScope, error)
}

type service struct {
	store Store
	now   func() time.Time
}

// New wires a Service backed by the provided Store.
func New(store Store) Service {
	return &service{store: store, now: time.Now}
}

func (s *service) Create(ctx context.Context, owner uuid.UUID, p models.Persona) (models.Persona, error) {
	if err := ctx.Err(); err != nil {
		return models.Persona{}, err
	}
	p.UserID = owner
	p.CreatedAt = s.now().UTC()
	return s.store.CreatePersona(ctx, p)
}

func (s *service) Get(ctx context.Context, viewer uuid.UUID, id uuid.UUID) (models.Persona, error) {
	if err := ctx.Err(); err != nil {
		return models.Persona{}, err
	}
	p, err := s.store.GetPersona(ctx, id)
	if err != nil {
		return models.Persona{}, err
	}
	if !p.IsPublic && p.UserID != viewer {
		return models.Persona{}, apperr.NotFound("persona not found")
	}
	return p, nil
}

func (s *service) Update(ctx context.Context, owner, id uuid.UUID, patch store.PersonaPatch) (models.Persona, error) {
	if err := ctx.Err(); err != nil {
		return models.Persona{}, err
	}
	return s.store.UpdatePersona(ctx, id, owner, patch, s.now().UTC())
}

func (s *service) ListMine(ctx context.Context, owner uuid.UUID) ([]models.Persona, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	personas, err := s.store.ListPersonasForUser(ctx, owner)
	if err != nil {
		return nil, err
	}
	if personas == nil {
		personas = []models.Persona{}
	}
	return personas, nil
}

func (s *service) Scope(ctx context.Context, userID uuid.UUID, personaID uuid.NullUUID) (models.PersonaScope, error) {
	scope := models.PersonaScope{UserID: userID}
	if !personaID.Valid {
		return scope, nil
	}
	p, err := s.store.GetPersona(ctx, personaID.UUID)
	if err != nil {
		return models.PersonaScope{}, err
	}
	if p.UserID != userID {
		return models.PersonaScope{}, apperr.PermissionDenied("persona belongs to another user")
	}
	scope.PersonaID = personaID
	return scope, nil
}
