package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"backstage/shared/go/models"
)

var zoneCols = []string{"id", "event_id", "festival_id", "zone", "participant_kind", "participant_id", "sort_order", "role_label", "is_public", "created_at"}

func TestMoveZoneAssignmentSingleStatement(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	id := uuid.New()
	mock.ExpectExec(`(?s)WITH target AS .*UPDATE zone_assignments z`).
		WithArgs(id, -1).
		WillReturnResult(sqlmock.NewResult(0, 2))

	moved, err := New(db).MoveZoneAssignment(context.Background(), id, -1)
	if err != nil {
		t.Fatalf("MoveZoneAssignment: %v", err)
	}
	if !moved {
		t.Fatal("expected swap with neighbour")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSetZoneAssignmentInsertsAtPosition(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	eventID := uuid.New()
	first, second, added := uuid.New(), uuid.New(), uuid.New()
	participant := uuid.New()
	now := time.Date(2026, 6, 20, 18, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM zone_assignments\s+WHERE event_id = \$1 AND zone = \$2`).
		WithArgs(eventID, "on_stage").
		WillReturnRows(sqlmock.NewRows(zoneCols).
			AddRow(first.String(), eventID.String(), nil, "on_stage", "entity", uuid.New().String(), 0, "", true, now).
			AddRow(second.String(), eventID.String(), nil, "on_stage", "entity", uuid.New().String(), 1, "", true, now))
	mock.ExpectQuery(`INSERT INTO zone_assignments`).
		WithArgs(sqlmock.AnyArg(), uuid.NullUUID{UUID: eventID, Valid: true}, uuid.NullUUID{}, "on_stage", "persona",
			participant, 2, "Headliner", true, now).
		WillReturnRows(sqlmock.NewRows(zoneCols).
			AddRow(added.String(), eventID.String(), nil, "on_stage", "persona", participant.String(), 2, "Headliner", true, now))
	mock.ExpectExec(`UPDATE zone_assignments z\s+SET sort_order = v.rank`).
		WithArgs(uuidArray([]uuid.UUID{added, first, second}), pq.Array([]int64{0, 1, 2})).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	saved, err := New(db).SetZoneAssignment(context.Background(), ZoneWrite{
		Scope:           models.EventScope(eventID),
		Zone:            models.ZoneOnStage,
		ParticipantKind: models.ParticipantPersona,
		ParticipantID:   participant,
		SortOrder:       0,
		RoleLabel:       "Headliner",
		IsPublic:        true,
	}, now)
	if err != nil {
		t.Fatalf("SetZoneAssignment: %v", err)
	}
	if saved.SortOrder != 0 || saved.ID != added {
		t.Fatalf("unexpected assignment %+v", saved)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestEventLineupFlagsInheritedRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	eventID, festivalID := uuid.New(), uuid.New()
	now := time.Now()

	mock.ExpectQuery(`FROM events WHERE id = \$1`).
		WithArgs(eventID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "slug", "festival_id", "host_entity_id", "starts_at", "created_by", "created_at"}).
			AddRow(eventID.String(), "Fredag", "fredag", festivalID.String(), nil, now, uuid.New().String(), now))
	mock.ExpectQuery(`festival_id IS NOT NULL AS inherited`).
		WithArgs(eventID, uuid.NullUUID{UUID: festivalID, Valid: true}).
		WillReturnRows(sqlmock.NewRows(append(append([]string{}, zoneCols...), "inherited")).
			AddRow(uuid.New().String(), nil, festivalID.String(), "host", "persona", uuid.New().String(), 0, "Arrangør", true, now, true).
			AddRow(uuid.New().String(), eventID.String(), nil, "host", "entity", uuid.New().String(), 0, "", true, now, false))

	lineup, err := New(db).EventLineup(context.Background(), eventID)
	if err != nil {
		t.Fatalf("EventLineup: %v", err)
	}
	hosts := lineup.InZone(models.ZoneHost)
	if len(hosts) != 2 || !hosts[0].Inherited || hosts[1].Inherited {
		t.Fatalf("expected inherited festival row first, got %+v", hosts)
	}
	if !hosts[0].Scope.IsFestival() {
		t.Fatalf("expected inherited row to keep festival scope")
	}
}
