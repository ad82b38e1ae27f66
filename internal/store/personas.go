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

// PersonaPatch carries the editable persona fields.
type PersonaPatch struct {
	Name         *string
	IsPublic     *bool
	Avatar       *string
	Bio          *string
	CategoryTags []string // nil leaves tags untouched
}

const personaColumns = `id, user_id, name, slug, is_public, avatar, bio, category_tags, created_at, updated_at`

func scanPersona(row rowScanner) (models.Persona, error) {
	var p models.Persona
	if err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.Slug, &p.IsPublic, &p.Avatar, &p.Bio,
		pq.Array(&p.CategoryTags), &p.CreatedAt, &p.UpdatedAt); err != nil {
		return models.Persona{}, err
	}
	if p.CategoryTags == nil {
		p.CategoryTags = []string{}
	}
	return p, nil
}

// CreatePersona inserts a persona with a unique slug.
func (s *Store) CreatePersona(ctx context.Context, p models.Persona) (models.Persona, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return models.Persona{}, apperr.Validation("persona name is required")
	}

	var created models.Persona
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		personaSlug, err := nextFreeSlug(ctx, tx, "personas", name, "persona")
		if err != nil {
			return err
		}
		created, err = scanPersona(tx.QueryRowContext(ctx, `
			INSERT INTO personas (id, user_id, name, slug, is_public, avatar, bio, category_tags, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
			RETURNING `+personaColumns,
			uuid.New(), p.UserID, name, personaSlug, p.IsPublic, p.Avatar, p.Bio, textArray(p.CategoryTags), p.CreatedAt,
		))
		if err != nil {
			if isUniqueViolation(err) {
				return apperr.Conflict("persona slug is already taken")
			}
			return fmt.Errorf("insert persona: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.Persona{}, err
	}
	return created, nil
}

// GetPersona returns a persona by id.
func (s *Store) GetPersona(ctx context.Context, id uuid.UUID) (models.Persona, error) {
	p, err := scanPersona(s.db.QueryRowContext(ctx, `SELECT `+personaColumns+` FROM personas WHERE id = $1`, id))
	if err != nil {
		return models.Persona{}, notFound(err, "persona")
	}
	return p, nil
}

// UpdatePersona applies patch to a persona owned by userID.
func (s *Store) UpdatePersona(ctx context.Context, id, userID uuid.UUID, patch PersonaPatch, now time.Time) (models.Persona, error) {
	var name sql.NullString
	if patch.Name != nil {
		trimmed := strings.TrimSpace(*patch.Name)
		if trimmed == "" {
			return models.Persona{}, apperr.Validation("persona name cannot be empty")
		}
		name = sql.NullString{String: trimmed, Valid: true}
	}
	var public sql.NullBool
	if patch.IsPublic != nil {
		public = sql.NullBool{Bool: *patch.IsPublic, Valid: true}
	}
	var avatar, bio sql.NullString
	if patch.Avatar != nil {
		avatar = sql.NullString{String: *patch.Avatar, Valid: true}
	}
	if patch.Bio != nil {
		bio = sql.NullString{String: *patch.Bio, Valid: true}
	}
	var tags any
	if patch.CategoryTags != nil {
		tags = pq.Array(patch.CategoryTags)
	}

	p, err := scanPersona(s.db.QueryRowContext(ctx, `
		UPDATE personas
		SET name = COALESCE($3, name),
		    is_public = COALESCE($4, is_public),
		    avatar = COALESCE($5, avatar),
		    bio = COALESCE($6, bio),
		    category_tags = COALESCE($7::text[], category_tags),
		    updated_at = $8
		WHERE id = $1 AND user_id = $2
		RETURNING `+personaColumns,
		id, userID, name, public, avatar, bio, tags, now,
	))
	if err != nil {
		return models.Persona{}, notFound(err, "persona")
	}
	return p, nil
}

// ListPersonasForUser returns every persona the user owns.
func (s *Store) ListPersonasForUser(ctx context.Context, userID uuid.UUID) ([]models.Persona, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+personaColumns+`
		FROM personas
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list personas: %w", err)
	}
	defer rows.Close()

	var personas []models.Persona
	for rows.Next() {
		p, err := scanPersona(rows)
		if err != nil {
			return nil, fmt.Errorf("scan persona: %w", err)
		}
		personas = append(personas, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate personas: %w", err)
	}
	return personas, nil
}
