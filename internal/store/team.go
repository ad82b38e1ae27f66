package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"backstage/internal/apperr"
	"backstage/shared/go/models"
)

const membershipColumns = `id, entity_id, user_id, access, persona_id, role_labels, joined_at, left_at`

func scanMembership(row rowScanner) (models.TeamMembership, error) {
	var (
		m      models.TeamMembership
		leftAt sql.NullTime
	)
	if err := row.Scan(&m.ID, &m.EntityID, &m.UserID, &m.Access, &m.PersonaID,
		pq.Array(&m.RoleLabels), &m.JoinedAt, &leftAt); err != nil {
		return models.TeamMembership{}, err
	}
	if m.RoleLabels == nil {
		m.RoleLabels = []string{}
	}
	if leftAt.Valid {
		t := leftAt.Time
		m.LeftAt = &t
	}
	return m, nil
}

func insertMembership(ctx context.Context, q queryer, m models.TeamMembership) (uuid.UUID, error) {
	id := uuid.New()
	if _, err := q.ExecContext(ctx, `
		INSERT INTO team_members (id, entity_id, user_id, access, persona_id, role_labels, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, m.EntityID, m.UserID, m.Access, m.PersonaID, textArray(m.RoleLabels), m.JoinedAt); err != nil {
		if isUniqueViolation(err) {
			return uuid.Nil, apperr.Conflict("user already has an active membership on this entity")
		}
		if isForeignKeyViolation(err) {
			return uuid.Nil, apperr.NotFound("entity, user or persona not found")
		}
		return uuid.Nil, fmt.Errorf("insert membership: %w", err)
	}
	return id, nil
}

// ActiveMembership returns the single active membership for (entity, user).
func (s *Store) ActiveMembership(ctx context.Context, entityID, userID uuid.UUID) (models.TeamMembership, error) {
	return activeMembership(ctx, s.db, entityID, userID, false)
}

func activeMembership(ctx context.Context, q queryer, entityID, userID uuid.UUID, lock bool) (models.TeamMembership, error) {
	query := `
		SELECT ` + membershipColumns + `
		FROM team_members
		WHERE entity_id = $1 AND user_id = $2 AND left_at IS NULL`
	if lock {
		query += ` FOR UPDATE`
	}
	m, err := scanMembership(q.QueryRowContext(ctx, query, entityID, userID))
	if err != nil {
		return models.TeamMembership{}, notFound(err, "membership")
	}
	return m, nil
}

// BestAccess returns the highest active access level the user holds on any of
// the entities, and whether the user holds any active membership among them.
func (s *Store) BestAccess(ctx context.Context, userID uuid.UUID, entityIDs []uuid.UUID) (models.AccessLevel, bool, error) {
	if len(entityIDs) == 0 {
		return models.AccessNone, false, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT access
		FROM team_members
		WHERE user_id = $1 AND entity_id = ANY($2::uuid[]) AND left_at IS NULL
	`, userID, uuidArray(entityIDs))
	if err != nil {
		return models.AccessNone, false, fmt.Errorf("load memberships: %w", err)
	}
	defer rows.Close()

	best := models.AccessNone
	found := false
	for rows.Next() {
		var level models.AccessLevel
		if err := rows.Scan(&level); err != nil {
			return models.AccessNone, false, fmt.Errorf("scan membership access: %w", err)
		}
		best = models.MaxAccess(best, level)
		found = true
	}
	if err := rows.Err(); err != nil {
		return models.AccessNone, false, fmt.Errorf("iterate memberships: %w", err)
	}
	return best, found, nil
}

// MembershipByID returns a membership row, active or not.
func (s *Store) MembershipByID(ctx context.Context, id uuid.UUID) (models.TeamMembership, error) {
	m, err := scanMembership(s.db.QueryRowContext(ctx, `SELECT `+membershipColumns+` FROM team_members WHERE id = $1`, id))
	if err != nil {
		return models.TeamMembership{}, notFound(err, "membership")
	}
	return m, nil
}

// ListActiveTeam returns the active memberships of an entity, owner first.
func (s *Store) ListActiveTeam(ctx context.Context, entityID uuid.UUID) ([]models.TeamMembership, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+membershipColumns+`
		FROM team_members
		WHERE entity_id = $1 AND left_at IS NULL
		ORDER BY CASE access WHEN 'owner' THEN 0 WHEN 'admin' THEN 1 WHEN 'editor' THEN 2 ELSE 3 END, joined_at
	`, entityID)
	if err != nil {
		return nil, fmt.Errorf("list team: %w", err)
	}
	defer rows.Close()

	var team []models.TeamMembership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		team = append(team, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate team: %w", err)
	}
	return team, nil
}

// UpdateMemberAccess overwrites the access of an active, non-owner membership.
func (s *Store) UpdateMemberAccess(ctx context.Context, membershipID uuid.UUID, access models.AccessLevel) (models.TeamMembership, error) {
	if !access.Invitable() {
		return models.TeamMembership{}, apperr.Validation("access must be admin, editor or viewer")
	}
	m, err := scanMembership(s.db.QueryRowContext(ctx, `
		UPDATE team_members
		SET access = $2
		WHERE id = $1 AND left_at IS NULL AND access <> 'owner'
		RETURNING `+membershipColumns,
		membershipID, access,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.TeamMembership{}, apperr.NotFound("active non-owner membership not found")
		}
		return models.TeamMembership{}, fmt.Errorf("update membership access: %w", err)
	}
	return m, nil
}

// UpdateMemberProfile sets the representing persona and role labels of an active membership.
func (s *Store) UpdateMemberProfile(ctx context.Context, membershipID uuid.UUID, personaID uuid.NullUUID, roleLabels []string) (models.TeamMembership, error) {
	m, err := scanMembership(s.db.QueryRowContext(ctx, `
		UPDATE team_members
		SET persona_id = $2, role_labels = $3
		WHERE id = $1 AND left_at IS NULL
		RETURNING `+membershipColumns,
		membershipID, personaID, textArray(roleLabels),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.TeamMembership{}, apperr.NotFound("active membership not found")
		}
		if isForeignKeyViolation(err) {
			return models.TeamMembership{}, apperr.NotFound("persona not found")
		}
		return models.TeamMembership{}, fmt.Errorf("update membership profile: %w", err)
	}
	return m, nil
}

// EndMembership marks an active, non-owner membership as left.
func (s *Store) EndMembership(ctx context.Context, membershipID uuid.UUID, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE team_members
		SET left_at = $2
		WHERE id = $1 AND left_at IS NULL AND access <> 'owner'
	`, membershipID, now)
	if err != nil {
		return fmt.Errorf("end membership: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("end membership rows: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("active non-owner membership not found")
	}
	return nil
}
