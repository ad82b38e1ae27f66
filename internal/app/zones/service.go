package zones

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

// Store describes the persistence operations required by the zone service.
type Store interface {
	SetZoneAssignment(ctx context.Context, w store.ZoneWrite, now time.Time) (models.ZoneAssignment, error)
	ZoneAssignmentByID(ctx context.Context, id uuid.UUID) (models.ZoneAssignment, error)
	DeleteZoneAssignment(ctx context.Context, scope models.ZoneScope, id uuid.UUID) error
	MoveZoneAssignment(ctx context.Context, id uuid.UUID, direction int) (bool, error)
	ListScopeAssignments(ctx context.Context, scope models.ZoneScope) ([]models.ZoneAssignment, error)
	EventLineup(ctx context.Context, eventID uuid.UUID) (models.Lineup, error)
}

// Direction moves an assignment within its zone.
type Direction int

const (
	Up   Direction = -1
	Down Direction = 1
)

// Service manages participant zones on events and festivals.
type Service interface {
	Set(ctx context.Context, actor uuid.UUID, w store.ZoneWrite) (models.ZoneAssignment, error)
	// Remove deletes an assignment from scope. Festival rows seen on an event
	// lineup are inherited and cannot be removed through the event.
	Remove(ctx context.Context, actor uuid.UUID, scope models.ZoneScope, assignmentID uuid.UUID) error
	Move(ctx context.Context, actor uuid.UUID, scope models.ZoneScope, assignmentID uuid.UUID, dir Direction) (bool, error)
	EventLineup(ctx context.Context, actor, eventID uuid.UUID) (models.Lineup, error)
	FestivalZones(ctx context.Context, actor, festivalID uuid.UUID) ([]models.ZoneAssignment, error)
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

func scopeTarget(scope models.ZoneScope) access.Target {
	if scope.IsFestival() {
		return access.Festival(scope.FestivalID.UUID)
	}
	return access.Lineup(scope.EventID.UUID)
}

// hostTarget is the event or festival itself. Lineup read-through does not
// reach it.
func hostTarget(scope models.ZoneScope) access.Target {
	if scope.IsFestival() {
		return access.Festival(scope.FestivalID.UUID)
	}
	return access.Event(scope.EventID.UUID)
}

// placesCoHost reports whether a row makes an entity a co-host of its scope.
func placesCoHost(zone models.Zone, kind models.ParticipantKind) bool {
	return zone == models.ZoneHost && kind == models.ParticipantEntity
}

// requireCoHostRights guards rows that extend the scope's host set. Only those
// who may invite to the event or festival may add or drop co-hosts.
func (s *service) requireCoHostRights(ctx context.Context, actor uuid.UUID, scope models.ZoneScope, zone models.Zone, kind models.ParticipantKind) error {
	if !placesCoHost(zone, kind) {
		return nil
	}
	return s.access.Require(ctx, actor, access.ActionInvite, hostTarget(scope))
}

func (s *service) requireEdit(ctx context.Context, actor uuid.UUID, scope models.ZoneScope) error {
	if !scope.Valid() {
		return apperr.Validation("exactly one of event or festival is required")
	}
	return s.access.Require(ctx, actor, access.ActionEdit, scopeTarget(scope))
}

func (s *service) Set(ctx context.Context, actor uuid.UUID, w store.ZoneWrite) (models.ZoneAssignment, error) {
	if err := s.requireEdit(ctx, actor, w.Scope); err != nil {
		return models.ZoneAssignment{}, err
	}
	if err := s.requireCoHostRights(ctx, actor, w.Scope, w.Zone, w.ParticipantKind); err != nil {
		return models.ZoneAssignment{}, err
	}
	a, err := s.store.SetZoneAssignment(ctx, w, s.now().UTC())
	if err != nil {
		return models.ZoneAssignment{}, err
	}
	logging.WithContext(ctx).Info().
		Str("assignment_id", a.ID.String()).
		Str("zone", string(a.Zone)).
		Int("sort_order", a.SortOrder).
		Msg("zone assignment saved")
	return a, nil
}

func (s *service) Remove(ctx context.Context, actor uuid.UUID, scope models.ZoneScope, assignmentID uuid.UUID) error {
	if err := s.requireEdit(ctx, actor, scope); err != nil {
		return err
	}
	a, err := s.ownedBy(ctx, scope, assignmentID)
	if err != nil {
		return err
	}
	if err := s.requireCoHostRights(ctx, actor, scope, a.Zone, a.ParticipantKind); err != nil {
		return err
	}
	return s.store.DeleteZoneAssignment(ctx, scope, assignmentID)
}

func (s *service) Move(ctx context.Context, actor uuid.UUID, scope models.ZoneScope, assignmentID uuid.UUID, dir Direction) (bool, error) {
	if dir != Up && dir != Down {
		return false, apperr.Validation("direction must be up or down")
	}
	if err := s.requireEdit(ctx, actor, scope); err != nil {
		return false, err
	}
	if _, err := s.ownedBy(ctx, scope, assignmentID); err != nil {
		return false, err
	}
	return s.store.MoveZoneAssignment(ctx, assignmentID, int(dir))
}

func (s *service) EventLineup(ctx context.Context, actor, eventID uuid.UUID) (models.Lineup, error) {
	if err := s.access.Require(ctx, actor, access.ActionView, access.Lineup(eventID)); err != nil {
		return models.Lineup{}, err
	}
	lineup, err := s.store.EventLineup(ctx, eventID)
	if err != nil {
		return models.Lineup{}, err
	}
	if lineup.Assignments == nil {
		lineup.Assignments = []models.ZoneAssignment{}
	}
	return lineup, nil
}

func (s *service) FestivalZones(ctx context.Context, actor, festivalID uuid.UUID) ([]models.ZoneAssignment, error) {
	if err := s.access.Require(ctx, actor, access.ActionView, access.Festival(festivalID)); err != nil {
		return nil, err
	}
	rows, err := s.store.ListScopeAssignments(ctx, models.FestivalScope(festivalID))
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []models.ZoneAssignment{}
	}
	return rows, nil
}

// ownedBy rejects assignments that belong to another scope, which is how an
// event editor is kept from touching inherited festival rows.
func (s *service) ownedBy(ctx context.Context, scope models.ZoneScope, assignmentID uuid.UUID) (models.ZoneAssignment, error) {
	a, err := s.store.ZoneAssignmentByID(ctx, assignmentID)
	if err != nil {
		return models.ZoneAssignment{}, err
	}
	if a.Scope != scope {
		if a.Scope.IsFestival() && !scope.IsFestival() {
			return models.ZoneAssignment{}, apperr.PermissionDenied("festival participants are inherited and read-only on events")
		}
		return models.ZoneAssignment{}, apperr.NotFound("zone assignment not found")
	}
	return a, nil
}
