package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"backstage/internal/apperr"
	"backstage/shared/go/models"
)

const bindingColumns = `id, entity_id, persona_id, is_public, role_label, created_at, updated_at`

func scanBinding(row rowScanner) (models.PersonaBinding, error) {
	var b models.PersonaBinding
	if err := row.Scan(&b.ID, &b.EntityID, &b.PersonaID, &b.IsPublic, &b.RoleLabel, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return models.PersonaBinding{}, err
	}
	return b, nil
}

// UpsertBinding creates the (entity, persona) binding or updates its visibility and label.
func (s *Store) UpsertBinding(ctx context.Context, b models.PersonaBinding, now time.Time) (models.PersonaBinding, error) {
	saved, err := scanBinding(s.db.QueryRowContext(ctx, `
		INSERT INTO persona_bindings (id, entity_id, persona_id, is_public, role_label, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (entity_id, persona_id)
		DO UPDATE SET is_public = EXCLUDED.is_public, role_label = EXCLUDED.role_label, updated_at = EXCLUDED.updated_at
		RETURNING `+bindingColumns,
		uuid.New(), b.EntityID, b.PersonaID, b.IsPublic, strings.TrimSpace(b.RoleLabel), now,
	))
	if err != nil {
		if isForeignKeyViolation(err) {
			return models.PersonaBinding{}, apperr.NotFound("entity or persona not found")
		}
		return models.PersonaBinding{}, fmt.Errorf("upsert binding: %w", err)
	}
	return saved, nil
}

// DeleteBinding removes the (entity, persona) binding.
func (s *Store) DeleteBinding(ctx context.Context, entityID, personaID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM persona_bindings WHERE entity_id = $1 AND persona_id = $2`, entityID, personaID)
	if err != nil {
		return fmt.Errorf("delete binding: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete binding rows: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("binding not found")
	}
	return nil
}

// ListCredits returns the bindings of an entity joined with persona display fields.
// With publicOnly set, only bindings that are public on a public persona are returned.
func (s *Store) ListCredits(ctx context.Context, entityID uuid.UUID, publicOnly bool) ([]models.Credit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.entity_id, b.persona_id, b.is_public, b.role_label, b.created_at, b.updated_at,
		       p.name, p.slug, p.avatar, p.is_public
		FROM persona_bindings b
		JOIN personas p ON p.id = b.persona_id
		WHERE b.entity_id = $1
		  AND (NOT $2 OR (b.is_public AND p.is_public))
		ORDER BY b.created_at
	`, entityID, publicOnly)
	if err != nil {
		return nil, fmt.Errorf("list credits: %w", err)
	}
	defer rows.Close()

	var credits []models.Credit
	for rows.Next() {
		var c models.Credit
		if err := rows.Scan(&c.ID, &c.EntityID, &c.PersonaID, &c.IsPublic, &c.RoleLabel, &c.CreatedAt, &c.UpdatedAt,
			&c.PersonaName, &c.PersonaSlug, &c.PersonaAvatar, &c.PersonaIsPublic); err != nil {
			return nil, fmt.Errorf("scan credit: %w", err)
		}
		credits = append(credits, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credits: %w", err)
	}
	return credits, nil
}
