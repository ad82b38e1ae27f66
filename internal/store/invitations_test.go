package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"backstage/internal/apperr"
	"backstage/shared/go/models"
)

var (
	invitationCols = []string{"id", "entity_id", "festival_id", "token", "email", "invited_user_id", "invited_persona_id",
		"access", "role_labels", "invited_by", "invited_at", "expires_at", "status", "accepted_by", "accepted_at", "revoked_at"}
	membershipCols = []string{"id", "entity_id", "user_id", "access", "persona_id", "role_labels", "joined_at", "left_at"}
)

type invitationRow struct {
	id, entityID, invitedBy uuid.UUID
	email                   string
	access                  string
	status                  string
	acceptedBy              driver.Value
	invitedAt, expiresAt    time.Time
}

func (r invitationRow) values() []driver.Value {
	var acceptedAt driver.Value
	if r.acceptedBy != nil {
		acceptedAt = r.invitedAt.Add(time.Minute)
	}
	return []driver.Value{r.id.String(), r.entityID.String(), nil, "tok", r.email, nil, nil,
		r.access, "{Lyd}", r.invitedBy.String(), r.invitedAt, r.expiresAt, r.status, r.acceptedBy, acceptedAt, nil}
}

func newInvitationRow(now time.Time) invitationRow {
	return invitationRow{
		id:        uuid.New(),
		entityID:  uuid.New(),
		invitedBy: uuid.New(),
		email:     "a@x.com",
		access:    "editor",
		status:    "pending",
		invitedAt: now.Add(-time.Hour),
		expiresAt: now.Add(time.Hour),
	}
}

func TestAcceptInvitationCreatesMembership(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	s := New(db)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	userID := uuid.New()
	row := newInvitationRow(now)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM invitations\s+WHERE id = \$1\s+FOR UPDATE`).
		WithArgs(row.id).
		WillReturnRows(sqlmock.NewRows(invitationCols).AddRow(row.values()...))
	mock.ExpectQuery(`FROM team_members\s+WHERE entity_id = \$1 AND user_id = \$2 AND left_at IS NULL FOR UPDATE`).
		WithArgs(row.entityID, userID).
		WillReturnRows(sqlmock.NewRows(membershipCols))
	mock.ExpectExec(`INSERT INTO team_members`).
		WithArgs(sqlmock.AnyArg(), row.entityID, userID, models.AccessEditor, uuid.NullUUID{}, "{\"Lyd\"}", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	accepted := row
	accepted.status = "accepted"
	accepted.acceptedBy = userID.String()
	mock.ExpectQuery(`UPDATE invitations\s+SET status = 'accepted'`).
		WithArgs(row.id, userID, now).
		WillReturnRows(sqlmock.NewRows(invitationCols).AddRow(accepted.values()...))
	mock.ExpectCommit()

	result, err := s.AcceptInvitation(context.Background(), row.id, userID, now)
	if err != nil {
		t.Fatalf("AcceptInvitation: %v", err)
	}
	if result.Replayed {
		t.Fatalf("expected first accept not to be a replay")
	}
	if result.Membership.Access != models.AccessEditor || result.Membership.UserID != userID {
		t.Fatalf("unexpected membership %+v", result.Membership)
	}
	if result.Invitation.Status != models.InvitationAccepted {
		t.Fatalf("expected accepted status, got %s", result.Invitation.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAcceptInvitationReplayReturnsExistingMembership(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	s := New(db)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	userID := uuid.New()
	row := newInvitationRow(now)
	row.status = "accepted"
	row.acceptedBy = userID.String()
	membershipID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM invitations\s+WHERE id = \$1\s+FOR UPDATE`).
		WithArgs(row.id).
		WillReturnRows(sqlmock.NewRows(invitationCols).AddRow(row.values()...))
	mock.ExpectQuery(`FROM team_members\s+WHERE entity_id = \$1 AND user_id = \$2 AND left_at IS NULL`).
		WithArgs(row.entityID, userID).
		WillReturnRows(sqlmock.NewRows(membershipCols).
			AddRow(membershipID.String(), row.entityID.String(), userID.String(), "editor", nil, "{}", now.Add(-time.Minute), nil))
	mock.ExpectCommit()

	result, err := s.AcceptInvitation(context.Background(), row.id, userID, now)
	if err != nil {
		t.Fatalf("AcceptInvitation replay: %v", err)
	}
	if !result.Replayed || result.Membership.ID != membershipID {
		t.Fatalf("expected replay of membership %s, got %+v", membershipID, result)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// otherThan matches a uuid argument that differs from the given id.
type otherThan uuid.UUID

func (o otherThan) Match(v driver.Value) bool {
	var got uuid.UUID
	var err error
	switch x := v.(type) {
	case string:
		got, err = uuid.Parse(x)
	case []byte:
		got, err = uuid.ParseBytes(x)
	default:
		return false
	}
	return err == nil && got != uuid.Nil && got != uuid.UUID(o)
}

func TestAcceptInvitationAfterLeavingInsertsNewMembership(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	s := New(db)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	userID := uuid.New()
	endedID := uuid.New()
	row := newInvitationRow(now)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM invitations\s+WHERE id = \$1\s+FOR UPDATE`).
		WithArgs(row.id).
		WillReturnRows(sqlmock.NewRows(invitationCols).AddRow(row.values()...))
	// The ended membership has left_at set, so the active lookup finds nothing.
	mock.ExpectQuery(`FROM team_members\s+WHERE entity_id = \$1 AND user_id = \$2 AND left_at IS NULL FOR UPDATE`).
		WithArgs(row.entityID, userID).
		WillReturnRows(sqlmock.NewRows(membershipCols))
	mock.ExpectExec(`INSERT INTO team_members`).
		WithArgs(otherThan(endedID), row.entityID, userID, models.AccessEditor, uuid.NullUUID{}, "{\"Lyd\"}", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	accepted := row
	accepted.status = "accepted"
	accepted.acceptedBy = userID.String()
	mock.ExpectQuery(`UPDATE invitations\s+SET status = 'accepted'`).
		WithArgs(row.id, userID, now).
		WillReturnRows(sqlmock.NewRows(invitationCols).AddRow(accepted.values()...))
	mock.ExpectCommit()

	result, err := s.AcceptInvitation(context.Background(), row.id, userID, now)
	if err != nil {
		t.Fatalf("AcceptInvitation: %v", err)
	}
	if result.Membership.ID == endedID || result.Membership.ID == uuid.Nil {
		t.Fatalf("expected a fresh membership id, got %s", result.Membership.ID)
	}
	if !result.Membership.Active() {
		t.Fatalf("expected the new membership to be active")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAcceptInvitationReplayAfterLeavingIsAlreadyProcessed(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	s := New(db)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	userID := uuid.New()
	row := newInvitationRow(now)
	row.status = "accepted"
	row.acceptedBy = userID.String()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM invitations\s+WHERE id = \$1\s+FOR UPDATE`).
		WithArgs(row.id).
		WillReturnRows(sqlmock.NewRows(invitationCols).AddRow(row.values()...))
	mock.ExpectQuery(`FROM team_members\s+WHERE entity_id = \$1 AND user_id = \$2 AND left_at IS NULL`).
		WithArgs(row.entityID, userID).
		WillReturnRows(sqlmock.NewRows(membershipCols))
	mock.ExpectRollback()

	_, err = s.AcceptInvitation(context.Background(), row.id, userID, now)
	if !errors.Is(err, apperr.ErrAlreadyProcessed) {
		t.Fatalf("expected already processed, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAcceptInvitationRejectsExpired(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	s := New(db)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	row := newInvitationRow(now)
	row.expiresAt = now.Add(-time.Second)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM invitations\s+WHERE id = \$1\s+FOR UPDATE`).
		WithArgs(row.id).
		WillReturnRows(sqlmock.NewRows(invitationCols).AddRow(row.values()...))
	mock.ExpectRollback()

	_, err = s.AcceptInvitation(context.Background(), row.id, uuid.New(), now)
	if !errors.Is(err, apperr.ErrExpired) {
		t.Fatalf("expected expired error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAcceptInvitationKeepsOwnerAccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	s := New(db)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	userID := uuid.New()
	row := newInvitationRow(now)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM invitations\s+WHERE id = \$1\s+FOR UPDATE`).
		WithArgs(row.id).
		WillReturnRows(sqlmock.NewRows(invitationCols).AddRow(row.values()...))
	mock.ExpectQuery(`FROM team_members\s+WHERE entity_id = \$1 AND user_id = \$2 AND left_at IS NULL FOR UPDATE`).
		WithArgs(row.entityID, userID).
		WillReturnRows(sqlmock.NewRows(membershipCols).
			AddRow(uuid.New().String(), row.entityID.String(), userID.String(), "owner", nil, "{}", now.Add(-time.Hour), nil))

	accepted := row
	accepted.status = "accepted"
	accepted.acceptedBy = userID.String()
	mock.ExpectQuery(`UPDATE invitations\s+SET status = 'accepted'`).
		WithArgs(row.id, userID, now).
		WillReturnRows(sqlmock.NewRows(invitationCols).AddRow(accepted.values()...))
	mock.ExpectCommit()

	result, err := s.AcceptInvitation(context.Background(), row.id, userID, now)
	if err != nil {
		t.Fatalf("AcceptInvitation: %v", err)
	}
	if result.Membership.Access != models.AccessOwner {
		t.Fatalf("expected owner access to be kept, got %s", result.Membership.Access)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRevokeInvitationIsNoopWhenNotPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	s := New(db)
	id := uuid.New()
	now := time.Now()

	mock.ExpectExec(`UPDATE invitations\s+SET status = 'revoked'`).
		WithArgs(id, now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := s.RevokeInvitation(context.Background(), id, now)
	if err != nil {
		t.Fatalf("RevokeInvitation: %v", err)
	}
	if changed {
		t.Fatalf("expected no transition for non-pending invitation")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateInvitationRequiresSingleRecipient(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	s := New(db)
	_, err = s.CreateInvitation(context.Background(), models.Invitation{
		TokenID:       "tok",
		Email:         "a@x.com",
		InvitedUserID: uuid.NullUUID{UUID: uuid.New(), Valid: true},
	})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRevokeInvitationSkipsExpired(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	s := New(db)
	id := uuid.New()
	now := time.Date(2026, 5, 9, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`WHERE id = \$1 AND status = 'pending' AND expires_at > \$2`).
		WithArgs(id, now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := s.RevokeInvitation(context.Background(), id, now)
	if err != nil {
		t.Fatalf("RevokeInvitation: %v", err)
	}
	if changed {
		t.Fatalf("expected an expired invitation to stay as it is")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
