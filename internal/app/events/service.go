package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"backstage/internal/access"
	"backstage/internal/apperr"
	"backstage/shared/go/models"
)

// Store describes the persistence operations required by the event service.
type Store interface {
	CreateFestival(ctx context.Context, f models.Festival) (models.Festival, error)
	GetFestival(ctx context.Context, id uuid.UUID) (models.Festival, error)
	CreateEvent(ctx context.Context, e models.Event) (models.Event, error)
	GetEvent(ctx context.Context, id uuid.UUID) (models.Event, error)
	ListFestivalEvents(ctx context.Context, festivalID uuid.UUID) ([]models.Event, error)
	GetEntity(ctx context.Context, id uuid.UUID) (models.Entity, error)
}

// Service manages the festival and event records access resolution hangs off.
type Service interface {
	CreateFestival(ctx context.Context, actor uuid.UUID, hostEntityID uuid.UUID, name string) (models.Festival, error)
	CreateEvent(ctx context.Context, actor uuid.UUID, e models.Event) (models.Event, error)
	GetEvent(ctx context.Context, actor, id uuid.UUID) (models.Event, error)
	GetFestival(ctx context.Context, actor, id uuid.UUID) (models.Festival, error)
	ListFestivalEvents(ctx context.Context, actor, festivalID uuid.UUID) ([]models.Event, error)
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

// CreateFestival requires edit rights on a host-kind entity.
func (s *service) CreateFestival(ctx context.Context, actor uuid.UUID, hostEntityID uuid.UUID, name string) (models.Festival, error) {
	if err := s.access.Require(ctx, actor, access.ActionEdit, access.Entity(hostEntityID)); err != nil {
		return models.Festival{}, err
	}
	host, err := s.store.GetEntity(ctx, hostEntityID)
	if err != nil {
		return models.Festival{}, err
	}
	if host.Kind() != models.KindHost {
		return models.Festival{}, apperr.Validation("festivals must be run by a host entity")
	}
	return s.store.CreateFestival(ctx, models.Festival{
		Name:         name,
		HostEntityID: hostEntityID,
		CreatedBy:    actor,
		CreatedAt:    s.now().UTC(),
	})
}

// CreateEvent requires edit rights on the festival, or on the host entity for
// a standalone event.
func (s *service) CreateEvent(ctx context.Context, actor uuid.UUID, e models.Event) (models.Event, error) {
	switch {
	case e.FestivalID.Valid:
		if err := s.access.Require(ctx, actor, access.ActionEdit, access.Festival(e.FestivalID.UUID)); err != nil {
			return models.Event{}, err
		}
		e.HostEntityID = uuid.NullUUID{}
	case e.HostEntityID.Valid:
		if err := s.access.Require(ctx, actor, access.ActionEdit, access.Entity(e.HostEntityID.UUID)); err != nil {
			return models.Event{}, err
		}
		host, err := s.store.GetEntity(ctx, e.HostEntityID.UUID)
		if err != nil {
			return models.Event{}, err
		}
		if host.Kind() != models.KindHost {
			return models.Event{}, apperr.Validation("events must be hosted by a host entity")
		}
	default:
		return models.Event{}, apperr.Validation("event needs a festival or a host entity")
	}

	e.CreatedBy = actor
	e.CreatedAt = s.now().UTC()
	return s.store.CreateEvent(ctx, e)
}

func (s *service) GetEvent(ctx context.Context, actor, id uuid.UUID) (models.Event, error) {
	if err := s.access.Require(ctx, actor, access.ActionView, access.Lineup(id)); err != nil {
		return models.Event{}, err
	}
	return s.store.GetEvent(ctx, id)
}

func (s *service) GetFestival(ctx context.Context, actor, id uuid.UUID) (models.Festival, error) {
	if err := s.access.Require(ctx, actor, access.ActionView, access.Festival(id)); err != nil {
		return models.Festival{}, err
	}
	return s.store.GetFestival(ctx, id)
}

func (s *service) ListFestivalEvents(ctx context.Context, actor, festivalID uuid.UUID) ([]models.Event, error) {
	if err := s.access.Require(ctx, actor, access.ActionView, access.Festival(festivalID)); err != nil {
		return nil, err
	}
	events, err := s.store.ListFestivalEvents(ctx, festivalID)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []models.Event{}
	}
	return events, nil
}
