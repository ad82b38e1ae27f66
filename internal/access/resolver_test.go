package access

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backstage/internal/apperr"
	"backstage/shared/go/models"
)

func TestDecideEditOnEntity(t *testing.T) {
	target := Entity(uuid.New())
	tests := []struct {
		level models.AccessLevel
		want  Decision
	}{
		{models.AccessNone, Denied},
		{models.AccessViewer, Denied},
		{models.AccessEditor, Allowed},
		{models.AccessAdmin, Allowed},
		{models.AccessOwner, Allowed},
	}
	for _, tc := range tests {
		t.Run(tc.level.String(), func(t *testing.T) {
			got := Decide(ActionEdit, target, Facts{TargetFound: true, Access: tc.level})
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecideRequiredLevels(t *testing.T) {
	target := Entity(uuid.New())
	editor := Facts{TargetFound: true, Access: models.AccessEditor}
	admin := Facts{TargetFound: true, Access: models.AccessAdmin}

	assert.Equal(t, Allowed, Decide(ActionView, target, Facts{TargetFound: true, Access: models.AccessViewer}))
	assert.Equal(t, Denied, Decide(ActionInvite, target, editor))
	assert.Equal(t, Allowed, Decide(ActionInvite, target, admin))
	assert.Equal(t, Denied, Decide(ActionPublish, target, editor))
	assert.Equal(t, Allowed, Decide(ActionPublish, target, admin))
}

func TestDecideSuperAdminWins(t *testing.T) {
	assert.Equal(t, Allowed, Decide(ActionPublish, Festival(uuid.New()), Facts{SuperAdmin: true}))
}

func TestDecideNotApplicable(t *testing.T) {
	assert.Equal(t, NotApplicable, Decide("delete", Entity(uuid.New()), Facts{SuperAdmin: true}))
	assert.Equal(t, NotApplicable, Decide(ActionView, Target{Kind: "ticket"}, Facts{SuperAdmin: true}))
}

func TestDecideLineupReadThrough(t *testing.T) {
	target := Lineup(uuid.New())
	crew := Facts{TargetFound: true, FestivalCrew: true}

	assert.Equal(t, Allowed, Decide(ActionView, target, crew))
	assert.Equal(t, Allowed, Decide(ActionEdit, target, crew))
	assert.Equal(t, Denied, Decide(ActionInvite, target, crew))
	assert.Equal(t, Denied, Decide(ActionEdit, Event(target.ID), crew), "read-through only applies to lineups")
}

func TestDecideCoHostCappedAtEditor(t *testing.T) {
	target := Festival(uuid.New())
	coHostOwner := Facts{TargetFound: true, CoHostAccess: models.AccessOwner}

	assert.Equal(t, models.AccessEditor, coHostOwner.Effective())
	assert.Equal(t, Allowed, Decide(ActionEdit, target, coHostOwner))
	assert.Equal(t, Denied, Decide(ActionInvite, target, coHostOwner))
	assert.Equal(t, Denied, Decide(ActionPublish, target, coHostOwner))

	both := Facts{TargetFound: true, Access: models.AccessAdmin, CoHostAccess: models.AccessViewer}
	assert.Equal(t, Allowed, Decide(ActionInvite, target, both))
}

type fakeStore struct {
	users     map[uuid.UUID]models.User
	entities  map[uuid.UUID]bool
	events    map[uuid.UUID]models.Hosting
	festivals map[uuid.UUID]models.Hosting
	// access per (user, entity)
	access map[uuid.UUID]map[uuid.UUID]models.AccessLevel
	err    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     map[uuid.UUID]models.User{},
		entities:  map[uuid.UUID]bool{},
		events:    map[uuid.UUID]models.Hosting{},
		festivals: map[uuid.UUID]models.Hosting{},
		access:    map[uuid.UUID]map[uuid.UUID]models.AccessLevel{},
	}
}

func (f *fakeStore) grant(userID, entityID uuid.UUID, level models.AccessLevel) {
	if f.access[userID] == nil {
		f.access[userID] = map[uuid.UUID]models.AccessLevel{}
	}
	f.access[userID][entityID] = level
	f.entities[entityID] = true
}

func (f *fakeStore) GetUser(_ context.Context, id uuid.UUID) (models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return models.User{}, apperr.NotFound("user not found")
	}
	return u, nil
}

func (f *fakeStore) GetEntity(_ context.Context, id uuid.UUID) (models.Entity, error) {
	if !f.entities[id] {
		return models.Entity{}, apperr.NotFound("entity not found")
	}
	return models.Entity{ID: id}, nil
}

func (f *fakeStore) EventHosting(_ context.Context, id uuid.UUID) (models.Hosting, error) {
	if f.err != nil {
		return models.Hosting{}, f.err
	}
	h, ok := f.events[id]
	if !ok {
		return models.Hosting{}, apperr.NotFound("event not found")
	}
	return h, nil
}

func (f *fakeStore) FestivalHosting(_ context.Context, id uuid.UUID) (models.Hosting, error) {
	h, ok := f.festivals[id]
	if !ok {
		return models.Hosting{}, apperr.NotFound("festival not found")
	}
	return h, nil
}

func (f *fakeStore) BestAccess(_ context.Context, userID uuid.UUID, ids []uuid.UUID) (models.AccessLevel, bool, error) {
	best, found := models.AccessNone, false
	for _, id := range ids {
		if level, ok := f.access[userID][id]; ok {
			best = models.MaxAccess(best, level)
			found = true
		}
	}
	return best, found, nil
}

func TestServiceEventUsesHostSet(t *testing.T) {
	store := newFakeStore()
	user := uuid.New()
	festivalHost, zoneHost := uuid.New(), uuid.New()
	eventID := uuid.New()
	store.events[eventID] = models.Hosting{
		Owners:       []uuid.UUID{festivalHost},
		CoHosts:      []uuid.UUID{zoneHost},
		FestivalHost: uuid.NullUUID{UUID: festivalHost, Valid: true},
	}
	store.grant(user, zoneHost, models.AccessEditor)

	svc := New(store)
	ctx := context.Background()

	assert.True(t, svc.CanPerform(ctx, user, ActionEdit, Event(eventID)))
	assert.False(t, svc.CanPerform(ctx, user, ActionInvite, Event(eventID)))
	assert.False(t, svc.CanPerform(ctx, uuid.New(), ActionView, Event(eventID)))
}

func TestServiceFestivalCoHostCannotInvite(t *testing.T) {
	store := newFakeStore()
	user := uuid.New()
	venue, band := uuid.New(), uuid.New()
	festivalID := uuid.New()
	store.festivals[festivalID] = models.Hosting{
		Owners:       []uuid.UUID{venue},
		CoHosts:      []uuid.UUID{band},
		FestivalHost: uuid.NullUUID{UUID: venue, Valid: true},
	}
	store.grant(user, venue, models.AccessEditor)
	store.grant(user, band, models.AccessOwner)

	svc := New(store)
	ctx := context.Background()

	assert.True(t, svc.CanPerform(ctx, user, ActionEdit, Festival(festivalID)))
	assert.False(t, svc.CanPerform(ctx, user, ActionInvite, Festival(festivalID)))
	assert.False(t, svc.CanPerform(ctx, user, ActionPublish, Festival(festivalID)))
}

func TestServiceLineupFestivalCrew(t *testing.T) {
	store := newFakeStore()
	user := uuid.New()
	festivalHost := uuid.New()
	eventID := uuid.New()
	store.events[eventID] = models.Hosting{
		Owners:       []uuid.UUID{festivalHost},
		FestivalHost: uuid.NullUUID{UUID: festivalHost, Valid: true},
	}
	store.grant(user, festivalHost, models.AccessViewer)

	svc := New(store)
	ctx := context.Background()

	assert.True(t, svc.CanPerform(ctx, user, ActionEdit, Lineup(eventID)))
	assert.False(t, svc.CanPerform(ctx, user, ActionEdit, Event(eventID)))
}

func TestServiceSuperAdmin(t *testing.T) {
	store := newFakeStore()
	flagged, configured := uuid.New(), uuid.New()
	store.users[flagged] = models.User{ID: flagged, IsSuperAdmin: true}

	svc := New(store, WithSuperAdmins([]uuid.UUID{configured}))
	ctx := context.Background()
	missing := Festival(uuid.New())

	assert.True(t, svc.CanPerform(ctx, flagged, ActionPublish, missing))
	assert.True(t, svc.CanPerform(ctx, configured, ActionPublish, missing))
	require.NoError(t, svc.RequireLevel(ctx, configured, uuid.New(), models.AccessOwner))
}

func TestServiceStoreFailureDenies(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("connection reset")

	svc := New(store)
	got := svc.Decide(context.Background(), uuid.New(), ActionView, Event(uuid.New()))
	assert.Equal(t, Denied, got)
}

func TestServiceRequireReturnsPermissionDenied(t *testing.T) {
	store := newFakeStore()
	entityID := uuid.New()
	user := uuid.New()
	store.grant(user, entityID, models.AccessViewer)

	svc := New(store)
	err := svc.Require(context.Background(), user, ActionEdit, Entity(entityID))
	assert.True(t, errors.Is(err, apperr.ErrPermissionDenied))

	err = svc.RequireLevel(context.Background(), user, entityID, models.AccessAdmin)
	assert.True(t, errors.Is(err, apperr.ErrPermissionDenied))
	require.NoError(t, svc.RequireLevel(context.Background(), user, entityID, models.AccessViewer))
}
