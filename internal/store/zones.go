package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"backstage/internal/apperr"
	"backstage/shared/go/models"
)

// ZoneWrite places a participant in a zone at a position. A SortOrder outside
// the current range appends at the end.
type ZoneWrite struct {
	Scope           models.ZoneScope
	Zone            models.Zone
	ParticipantKind models.ParticipantKind
	ParticipantID   uuid.UUID
	SortOrder       int
	RoleLabel       string
	IsPublic        bool
}

const zoneColumns = `id, event_id, festival_id, zone, participant_kind, participant_id, sort_order, role_label, is_public, created_at`

func scanZoneAssignment(row rowScanner, extra ...any) (models.ZoneAssignment, error) {
	var (
		a          models.ZoneAssignment
		zone, kind string
	)
	dest := []any{&a.ID, &a.Scope.EventID, &a.Scope.FestivalID, &zone, &kind, &a.ParticipantID,
		&a.SortOrder, &a.RoleLabel, &a.IsPublic, &a.CreatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return models.ZoneAssignment{}, err
	}
	a.Zone = models.Zone(zone)
	a.ParticipantKind = models.ParticipantKind(kind)
	return a, nil
}

// scopeFilter returns the column predicate and id for a scope.
func scopeFilter(scope models.ZoneScope) (string, uuid.UUID) {
	if scope.IsFestival() {
		return "festival_id", scope.FestivalID.UUID
	}
	return "event_id", scope.EventID.UUID
}

func lockZone(ctx context.Context, tx *sql.Tx, scope models.ZoneScope, zone models.Zone) ([]models.ZoneAssignment, error) {
	column, id := scopeFilter(scope)
	rows, err := tx.QueryContext(ctx, `
		SELECT `+zoneColumns+`
		FROM zone_assignments
		WHERE `+column+` = $1 AND zone = $2
		ORDER BY sort_order, created_at
		FOR UPDATE
	`, id, string(zone))
	if err != nil {
		return nil, fmt.Errorf("lock zone: %w", err)
	}
	defer rows.Close()

	var out []models.ZoneAssignment
	for rows.Next() {
		a, err := scanZoneAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan zone assignment: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate zone: %w", err)
	}
	return out, nil
}

// renumber writes dense ranks 0..n-1 for ids in one statement.
func renumber(ctx context.Context, tx *sql.Tx, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	ranks := make([]int64, len(ids))
	for i := range ids {
		ranks[i] = int64(i)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE zone_assignments z
		SET sort_order = v.rank
		FROM (SELECT unnest($1::uuid[]) AS id, unnest($2::int[]) AS rank) v
		WHERE z.id = v.id AND z.sort_order <> v.rank
	`, uuidArray(ids), pq.Array(ranks)); err != nil {
		return fmt.Errorf("renumber zone: %w", err)
	}
	return nil
}

// SetZoneAssignment adds or updates a participant in a zone and moves it to the
// requested position, keeping the zone's ranks dense.
func (s *Store) SetZoneAssignment(ctx context.Context, w ZoneWrite, now time.Time) (models.ZoneAssignment, error) {
	if !w.Scope.Valid() {
		return models.ZoneAssignment{}, apperr.Validation("exactly one of event or festival is required")
	}
	if !w.Zone.Valid() {
		return models.ZoneAssignment{}, apperr.Validation("zone must be on_stage, backstage or host")
	}
	if !w.ParticipantKind.Valid() {
		return models.ZoneAssignment{}, apperr.Validation("participant kind must be persona or entity")
	}

	var saved models.ZoneAssignment
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := lockZone(ctx, tx, w.Scope, w.Zone)
		if err != nil {
			return err
		}

		pos := -1
		for i, a := range current {
			if a.ParticipantKind == w.ParticipantKind && a.ParticipantID == w.ParticipantID {
				pos = i
				break
			}
		}

		if pos >= 0 {
			saved, err = scanZoneAssignment(tx.QueryRowContext(ctx, `
				UPDATE zone_assignments
				SET role_label = $2, is_public = $3
				WHERE id = $1
				RETURNING `+zoneColumns,
				current[pos].ID, strings.TrimSpace(w.RoleLabel), w.IsPublic,
			))
			if err != nil {
				return fmt.Errorf("update zone assignment: %w", err)
			}
			current = append(current[:pos], current[pos+1:]...)
		} else {
			saved, err = scanZoneAssignment(tx.QueryRowContext(ctx, `
				INSERT INTO zone_assignments (id, event_id, festival_id, zone, participant_kind, participant_id, sort_order, role_label, is_public, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				RETURNING `+zoneColumns,
				uuid.New(), w.Scope.EventID, w.Scope.FestivalID, string(w.Zone), string(w.ParticipantKind),
				w.ParticipantID, len(current), strings.TrimSpace(w.RoleLabel), w.IsPublic, now,
			))
			if err != nil {
				if isUniqueViolation(err) {
					return apperr.Conflict("participant is already in this zone")
				}
				if isForeignKeyViolation(err) {
					return apperr.NotFound("event or festival not found")
				}
				return fmt.Errorf("insert zone assignment: %w", err)
			}
		}

		target := w.SortOrder
		if target < 0 || target > len(current) {
			target = len(current)
		}
		ordered := make([]uuid.UUID, 0, len(current)+1)
		for _, a := range current[:target] {
			ordered = append(ordered, a.ID)
		}
		ordered = append(ordered, saved.ID)
		for _, a := range current[target:] {
			ordered = append(ordered, a.ID)
		}
		saved.SortOrder = target
		return renumber(ctx, tx, ordered)
	})
	if err != nil {
		return models.ZoneAssignment{}, err
	}
	return saved, nil
}

// ZoneAssignmentByID returns one assignment.
func (s *Store) ZoneAssignmentByID(ctx context.Context, id uuid.UUID) (models.ZoneAssignment, error) {
	a, err := scanZoneAssignment(s.db.QueryRowContext(ctx, `SELECT `+zoneColumns+` FROM zone_assignments WHERE id = $1`, id))
	if err != nil {
		return models.ZoneAssignment{}, notFound(err, "zone assignment")
	}
	return a, nil
}

// DeleteZoneAssignment removes an assignment that belongs to scope and compacts
// the ranks of its zone. Rows of another scope are never touched.
func (s *Store) DeleteZoneAssignment(ctx context.Context, scope models.ZoneScope, id uuid.UUID) error {
	column, scopeID := scopeFilter(scope)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var zone string
		err := tx.QueryRowContext(ctx, `
			DELETE FROM zone_assignments
			WHERE id = $1 AND `+column+` = $2
			RETURNING zone
		`, id, scopeID).Scan(&zone)
		if err != nil {
			return notFound(err, "zone assignment")
		}

		remaining, err := lockZone(ctx, tx, scope, models.Zone(zone))
		if err != nil {
			return err
		}
		ids := make([]uuid.UUID, len(remaining))
		for i, a := range remaining {
			ids[i] = a.ID
		}
		return renumber(ctx, tx, ids)
	})
}

// MoveZoneAssignment swaps the rank of an assignment with its neighbour in one
// statement. direction < 0 moves it up, otherwise down. It reports false when the
// assignment is already at that edge of its zone.
func (s *Store) MoveZoneAssignment(ctx context.Context, id uuid.UUID, direction int) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		WITH target AS (
			SELECT id, event_id, festival_id, zone, sort_order
			FROM zone_assignments
			WHERE id = $1
		), neighbour AS (
			SELECT z.id, z.sort_order
			FROM zone_assignments z, target t
			WHERE z.zone = t.zone
			  AND z.event_id IS NOT DISTINCT FROM t.event_id
			  AND z.festival_id IS NOT DISTINCT FROM t.festival_id
			  AND z.id <> t.id
			  AND CASE WHEN $2::int < 0 THEN z.sort_order < t.sort_order ELSE z.sort_order > t.sort_order END
			ORDER BY CASE WHEN $2::int < 0 THEN -z.sort_order ELSE z.sort_order END
			LIMIT 1
		)
		UPDATE zone_assignments z
		SET sort_order = CASE WHEN z.id = t.id THEN n.sort_order ELSE t.sort_order END
		FROM target t, neighbour n
		WHERE z.id IN (t.id, n.id)
	`, id, direction)
	if err != nil {
		return false, fmt.Errorf("move zone assignment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("move zone assignment rows: %w", err)
	}
	return n > 0, nil
}

// ListScopeAssignments returns all zones of an event or festival without inheritance.
func (s *Store) ListScopeAssignments(ctx context.Context, scope models.ZoneScope) ([]models.ZoneAssignment, error) {
	column, id := scopeFilter(scope)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+zoneColumns+`
		FROM zone_assignments
		WHERE `+column+` = $1
		ORDER BY zone, sort_order
	`, id)
	if err != nil {
		return nil, fmt.Errorf("list zone assignments: %w", err)
	}
	defer rows.Close()

	var out []models.ZoneAssignment
	for rows.Next() {
		a, err := scanZoneAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan zone assignment: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate zone assignments: %w", err)
	}
	return out, nil
}

// EventLineup returns an event's own assignments plus the host and backstage rows
// of its festival, which are flagged inherited.
func (s *Store) EventLineup(ctx context.Context, eventID uuid.UUID) (models.Lineup, error) {
	event, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return models.Lineup{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+zoneColumns+`, festival_id IS NOT NULL AS inherited
		FROM zone_assignments
		WHERE event_id = $1
		   OR ($2::uuid IS NOT NULL AND festival_id = $2 AND zone IN ('host', 'backstage'))
		ORDER BY zone, inherited DESC, sort_order
	`, eventID, event.FestivalID)
	if err != nil {
		return models.Lineup{}, fmt.Errorf("load lineup: %w", err)
	}
	defer rows.Close()

	lineup := models.Lineup{EventID: eventID, FestivalID: event.FestivalID}
	for rows.Next() {
		var inherited bool
		a, err := scanZoneAssignment(rows, &inherited)
		if err != nil {
			return models.Lineup{}, fmt.Errorf("scan lineup row: %w", err)
		}
		a.Inherited = inherited
		lineup.Assignments = append(lineup.Assignments, a)
	}
	if err := rows.Err(); err != nil {
		return models.Lineup{}, fmt.Errorf("iterate lineup: %w", err)
	}
	return lineup, nil
}
