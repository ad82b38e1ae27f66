package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"backstage/internal/apperr"
	"backstage/shared/go/models"
)

const (
	festivalColumns = `id, name, slug, host_entity_id, created_by, created_at`
	eventColumns    = `id, name, slug, festival_id, host_entity_id, starts_at, created_by, created_at`
)

func scanFestival(row rowScanner) (models.Festival, error) {
	var f models.Festival
	if err := row.Scan(&f.ID, &f.Name, &f.Slug, &f.HostEntityID, &f.CreatedBy, &f.CreatedAt); err != nil {
		return models.Festival{}, err
	}
	return f, nil
}

func scanEvent(row rowScanner) (models.Event, error) {
	var e models.Event
	if err := row.Scan(&e.ID, &e.Name, &e.Slug, &e.FestivalID, &e.HostEntityID, &e.StartsAt, &e.CreatedBy, &e.CreatedAt); err != nil {
		return models.Event{}, err
	}
	return e, nil
}

// CreateFestival inserts a festival run by a host entity.
func (s *Store) CreateFestival(ctx context.Context, f models.Festival) (models.Festival, error) {
	name := strings.TrimSpace(f.Name)
	if name == "" {
		return models.Festival{}, apperr.Validation("festival name is required")
	}

	var created models.Festival
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		festivalSlug, err := nextFreeSlug(ctx, tx, "festivals", name, "festival")
		if err != nil {
			return err
		}
		created, err = scanFestival(tx.QueryRowContext(ctx, `
			INSERT INTO festivals (id, name, slug, host_entity_id, created_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING `+festivalColumns,
			uuid.New(), name, festivalSlug, f.HostEntityID, f.CreatedBy, f.CreatedAt,
		))
		if err != nil {
			if isForeignKeyViolation(err) {
				return apperr.NotFound("host entity not found")
			}
			return fmt.Errorf("insert festival: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.Festival{}, err
	}
	return created, nil
}

// GetFestival returns a festival by id.
func (s *Store) GetFestival(ctx context.Context, id uuid.UUID) (models.Festival, error) {
	f, err := scanFestival(s.db.QueryRowContext(ctx, `SELECT `+festivalColumns+` FROM festivals WHERE id = $1`, id))
	if err != nil {
		return models.Festival{}, notFound(err, "festival")
	}
	return f, nil
}

// CreateEvent inserts an event under a festival or directly under a host entity.
func (s *Store) CreateEvent(ctx context.Context, e models.Event) (models.Event, error) {
	name := strings.TrimSpace(e.Name)
	if name == "" {
		return models.Event{}, apperr.Validation("event name is required")
	}
	if !e.FestivalID.Valid && !e.HostEntityID.Valid {
		return models.Event{}, apperr.Validation("event needs a festival or a host entity")
	}

	var created models.Event
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		eventSlug, err := nextFreeSlug(ctx, tx, "events", name, "event")
		if err != nil {
			return err
		}
		created, err = scanEvent(tx.QueryRowContext(ctx, `
			INSERT INTO events (id, name, slug, festival_id, host_entity_id, starts_at, created_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING `+eventColumns,
			uuid.New(), name, eventSlug, e.FestivalID, e.HostEntityID, e.StartsAt, e.CreatedBy, e.CreatedAt,
		))
		if err != nil {
			if isForeignKeyViolation(err) {
				return apperr.NotFound("festival or host entity not found")
			}
			return fmt.Errorf("insert event: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.Event{}, err
	}
	return created, nil
}

// GetEvent returns an event by id.
func (s *Store) GetEvent(ctx context.Context, id uuid.UUID) (models.Event, error) {
	e, err := scanEvent(s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		return models.Event{}, notFound(err, "event")
	}
	return e, nil
}

// ListFestivalEvents returns a festival's events in start order.
func (s *Store) ListFestivalEvents(ctx context.Context, festivalID uuid.UUID) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE festival_id = $1
		ORDER BY starts_at, name
	`, festivalID)
	if err != nil {
		return nil, fmt.Errorf("list festival events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// FestivalHosting returns the festival's host entity plus entities in its host zone.
func (s *Store) FestivalHosting(ctx context.Context, festivalID uuid.UUID) (models.Hosting, error) {
	f, err := s.GetFestival(ctx, festivalID)
	if err != nil {
		return models.Hosting{}, err
	}
	zoneHosts, err := s.hostZoneEntities(ctx, `festival_id = $1`, festivalID)
	if err != nil {
		return models.Hosting{}, err
	}
	owners := []uuid.UUID{f.HostEntityID}
	return models.Hosting{
		Owners:       owners,
		CoHosts:      coHosts(owners, zoneHosts),
		FestivalHost: uuid.NullUUID{UUID: f.HostEntityID, Valid: true},
	}, nil
}

// EventHosting returns the entities whose crew administers an event: the owning
// host (festival host or direct host entity) and, as co-hosts, entity
// participants in the host zone of the event or of its festival.
func (s *Store) EventHosting(ctx context.Context, eventID uuid.UUID) (models.Hosting, error) {
	var (
		festivalHost uuid.NullUUID
		directHost   uuid.NullUUID
		festivalID   uuid.NullUUID
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT f.host_entity_id, e.host_entity_id, e.festival_id
		FROM events e
		LEFT JOIN festivals f ON f.id = e.festival_id
		WHERE e.id = $1
	`, eventID).Scan(&festivalHost, &directHost, &festivalID)
	if err != nil {
		return models.Hosting{}, notFound(err, "event")
	}

	zoneHosts, err := s.hostZoneEntities(ctx, `event_id = $1 OR ($2::uuid IS NOT NULL AND festival_id = $2)`, eventID, festivalID)
	if err != nil {
		return models.Hosting{}, err
	}

	var owners []uuid.UUID
	if festivalHost.Valid {
		owners = append(owners, festivalHost.UUID)
	}
	if directHost.Valid && directHost != festivalHost {
		owners = append(owners, directHost.UUID)
	}
	return models.Hosting{
		Owners:       owners,
		CoHosts:      coHosts(owners, zoneHosts),
		FestivalHost: festivalHost,
	}, nil
}

func (s *Store) hostZoneEntities(ctx context.Context, scopeClause string, args ...any) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT participant_id
		FROM zone_assignments
		WHERE zone = 'host' AND participant_kind = 'entity' AND (`+scopeClause+`)
		ORDER BY sort_order
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("load host zone: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan host zone: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate host zone: %w", err)
	}
	return ids, nil
}

// coHosts returns the zone hosts that are not owners, without duplicates.
func coHosts(owners, zoneHosts []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(owners)+len(zoneHosts))
	for _, id := range owners {
		seen[id] = true
	}
	var out []uuid.UUID
	for _, id := range zoneHosts {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
