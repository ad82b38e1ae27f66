package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"backstage/internal/apperr"
	"backstage/shared/go/models"
)

// EntityPatch carries the mutable profile fields of an entity.
type EntityPatch struct {
	Name            *string
	HeroImage       *string
	IsHostOrganizer *bool
}

const entityColumns = `id, type, name, slug, is_published, is_host_organizer, hero_image, created_by, created_at, updated_at`

func scanEntity(row rowScanner) (models.Entity, error) {
	var (
		e       models.Entity
		typeStr string
	)
	if err := row.Scan(&e.ID, &typeStr, &e.Name, &e.Slug, &e.IsPublished, &e.IsHostOrganizer,
		&e.HeroImage, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return models.Entity{}, err
	}
	e.Type = models.EntityType(typeStr)
	return e, nil
}

// CreateEntity inserts the entity and the creator's owner membership atomically.
func (s *Store) CreateEntity(ctx context.Context, entity models.Entity) (models.Entity, models.TeamMembership, error) {
	name := strings.TrimSpace(entity.Name)
	if name == "" {
		return models.Entity{}, models.TeamMembership{}, apperr.Validation("entity name is required")
	}
	if !entity.Type.Valid() {
		return models.Entity{}, models.TeamMembership{}, apperr.Validation("entity type must be venue, solo or band")
	}

	var (
		created models.Entity
		owner   models.TeamMembership
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		entitySlug, err := nextFreeSlug(ctx, tx, "entities", name, string(entity.Type))
		if err != nil {
			return err
		}

		created, err = scanEntity(tx.QueryRowContext(ctx, `
			INSERT INTO entities (id, type, name, slug, is_published, is_host_organizer, hero_image, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, FALSE, $5, $6, $7, $8, $8)
			RETURNING `+entityColumns,
			uuid.New(), string(entity.Type), name, entitySlug, entity.IsHostOrganizer,
			entity.HeroImage, entity.CreatedBy, entity.CreatedAt,
		))
		if err != nil {
			if isUniqueViolation(err) {
				return apperr.Conflict("entity slug is already taken")
			}
			return fmt.Errorf("insert entity: %w", err)
		}

		owner = models.TeamMembership{
			EntityID:   created.ID,
			UserID:     entity.CreatedBy,
			Access:     models.AccessOwner,
			RoleLabels: []string{},
			JoinedAt:   entity.CreatedAt,
		}
		owner.ID, err = insertMembership(ctx, tx, owner)
		return err
	})
	if err != nil {
		return models.Entity{}, models.TeamMembership{}, err
	}
	return created, owner, nil
}

// GetEntity returns an entity by id.
func (s *Store) GetEntity(ctx context.Context, id uuid.UUID) (models.Entity, error) {
	e, err := scanEntity(s.db.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE id = $1`, id))
	if err != nil {
		return models.Entity{}, notFound(err, "entity")
	}
	return e, nil
}

// GetEntityBySlug returns an entity by slug.
func (s *Store) GetEntityBySlug(ctx context.Context, entitySlug string) (models.Entity, error) {
	e, err := scanEntity(s.db.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE slug = $1`, entitySlug))
	if err != nil {
		return models.Entity{}, notFound(err, "entity")
	}
	return e, nil
}

// UpdateEntity applies patch to the entity. The type column is never written.
func (s *Store) UpdateEntity(ctx context.Context, id uuid.UUID, patch EntityPatch, now time.Time) (models.Entity, error) {
	var name sql.NullString
	if patch.Name != nil {
		trimmed := strings.TrimSpace(*patch.Name)
		if trimmed == "" {
			return models.Entity{}, apperr.Validation("entity name cannot be empty")
		}
		name = sql.NullString{String: trimmed, Valid: true}
	}
	var hero sql.NullString
	if patch.HeroImage != nil {
		hero = sql.NullString{String: *patch.HeroImage, Valid: true}
	}
	var organizer sql.NullBool
	if patch.IsHostOrganizer != nil {
		organizer = sql.NullBool{Bool: *patch.IsHostOrganizer, Valid: true}
	}

	e, err := scanEntity(s.db.QueryRowContext(ctx, `
		UPDATE entities
		SET name = COALESCE($2, name),
		    hero_image = COALESCE($3, hero_image),
		    is_host_organizer = COALESCE($4, is_host_organizer),
		    updated_at = $5
		WHERE id = $1
		RETURNING `+entityColumns,
		id, name, hero, organizer, now,
	))
	if err != nil {
		return models.Entity{}, notFound(err, "entity")
	}
	return e, nil
}

// SetEntityPublished toggles public visibility.
func (s *Store) SetEntityPublished(ctx context.Context, id uuid.UUID, published bool, now time.Time) (models.Entity, error) {
	e, err := scanEntity(s.db.QueryRowContext(ctx, `
		UPDATE entities
		SET is_published = $2, updated_at = $3
		WHERE id = $1
		RETURNING `+entityColumns,
		id, published, now,
	))
	if err != nil {
		return models.Entity{}, notFound(err, "entity")
	}
	return e, nil
}

// ListEntitiesForUser returns entities where the user holds an active membership.
// When the scope carries a persona, only memberships represented by that persona count.
func (s *Store) ListEntitiesForUser(ctx context.Context, scope models.PersonaScope) ([]models.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.type, e.name, e.slug, e.is_published, e.is_host_organizer, e.hero_image, e.created_by, e.created_at, e.updated_at
		FROM team_members tm
		JOIN entities e ON e.id = tm.entity_id
		WHERE tm.user_id = $1
		  AND tm.left_at IS NULL
		  AND ($2::uuid IS NULL OR tm.persona_id = $2)
		ORDER BY e.name
	`, scope.UserID, scope.PersonaID)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var entities []models.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return entities, nil
}

// EntitySummaries returns name/slug facts for the given ids keyed by id.
func (s *Store) EntitySummaries(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Entity, error) {
	out := make(map[uuid.UUID]models.Entity, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE id = ANY($1::uuid[])`, uuidArray(ids))
	if err != nil {
		return nil, fmt.Errorf("load entities: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		out[e.ID] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return out, nil
}
