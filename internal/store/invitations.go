package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"backstage/internal/apperr"
	"backstage/shared/go/models"
)

// AcceptResult reports the membership an accept produced and whether it was a replay.
type AcceptResult struct {
	Invitation models.Invitation
	Membership models.TeamMembership
	Replayed   bool
}

const invitationColumns = `id, entity_id, festival_id, token, email, invited_user_id, invited_persona_id,
	access, role_labels, invited_by, invited_at, expires_at, status, accepted_by, accepted_at, revoked_at`

func scanInvitation(row rowScanner) (models.Invitation, error) {
	var (
		inv        models.Invitation
		email      sql.NullString
		status     string
		acceptedAt sql.NullTime
		revokedAt  sql.NullTime
	)
	if err := row.Scan(&inv.ID, &inv.EntityID, &inv.FestivalID, &inv.TokenID, &email, &inv.InvitedUserID,
		&inv.InvitedPersonaID, &inv.Access, pq.Array(&inv.RoleLabels), &inv.InvitedBy, &inv.InvitedAt,
		&inv.ExpiresAt, &status, &inv.AcceptedBy, &acceptedAt, &revokedAt); err != nil {
		return models.Invitation{}, err
	}
	inv.Email = email.String
	inv.Status = models.InvitationStatus(status)
	if inv.RoleLabels == nil {
		inv.RoleLabels = []string{}
	}
	if acceptedAt.Valid {
		t := acceptedAt.Time
		inv.AcceptedAt = &t
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		inv.RevokedAt = &t
	}
	return inv, nil
}

func collectInvitations(rows *sql.Rows) ([]models.Invitation, error) {
	defer rows.Close()
	var out []models.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invitation: %w", err)
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invitations: %w", err)
	}
	return out, nil
}

// CreateInvitation inserts a pending invitation. The caller supplies the token id,
// timestamps and recipient; the store assigns the row id.
func (s *Store) CreateInvitation(ctx context.Context, inv models.Invitation) (models.Invitation, error) {
	if inv.TokenID == "" {
		return models.Invitation{}, apperr.Validation("invitation token is required")
	}
	email := strings.ToLower(strings.TrimSpace(inv.Email))
	if (email == "") == !inv.InvitedUserID.Valid {
		return models.Invitation{}, apperr.Validation("exactly one of email or invited user is required")
	}

	created, err := scanInvitation(s.db.QueryRowContext(ctx, `
		INSERT INTO invitations (id, entity_id, festival_id, token, email, invited_user_id, invited_persona_id,
			access, role_labels, invited_by, invited_at, expires_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 'pending')
		RETURNING `+invitationColumns,
		uuid.New(), inv.EntityID, inv.FestivalID, inv.TokenID, nullString(email), inv.InvitedUserID,
		inv.InvitedPersonaID, inv.Access, textArray(inv.RoleLabels), inv.InvitedBy, inv.InvitedAt, inv.ExpiresAt,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return models.Invitation{}, apperr.Conflict("invitation token collision")
		}
		if isForeignKeyViolation(err) {
			return models.Invitation{}, apperr.NotFound("invitation target or recipient not found")
		}
		return models.Invitation{}, fmt.Errorf("insert invitation: %w", err)
	}
	return created, nil
}

// InvitationByID returns an invitation by id.
func (s *Store) InvitationByID(ctx context.Context, id uuid.UUID) (models.Invitation, error) {
	inv, err := scanInvitation(s.db.QueryRowContext(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE id = $1`, id))
	if err != nil {
		return models.Invitation{}, notFound(err, "invitation")
	}
	return inv, nil
}

// InvitationByToken returns the invitation whose stored token id matches.
func (s *Store) InvitationByToken(ctx context.Context, tokenID string) (models.Invitation, error) {
	inv, err := scanInvitation(s.db.QueryRowContext(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE token = $1`, tokenID))
	if err != nil {
		return models.Invitation{}, notFound(err, "invitation")
	}
	return inv, nil
}

// LatestInvitationForEmail returns the most recent invitation for (email, entity).
func (s *Store) LatestInvitationForEmail(ctx context.Context, email string, entityID uuid.UUID) (models.Invitation, error) {
	inv, err := scanInvitation(s.db.QueryRowContext(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations
		WHERE LOWER(email) = LOWER($1) AND entity_id = $2
		ORDER BY invited_at DESC
		LIMIT 1
	`, strings.TrimSpace(email), entityID))
	if err != nil {
		return models.Invitation{}, notFound(err, "invitation")
	}
	return inv, nil
}

// ListInvitationsForEntity returns every invitation of an entity, newest first.
func (s *Store) ListInvitationsForEntity(ctx context.Context, entityID uuid.UUID) ([]models.Invitation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations
		WHERE entity_id = $1
		ORDER BY invited_at DESC
	`, entityID)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	return collectInvitations(rows)
}

// ListPendingForRecipient returns unexpired pending invitations addressed to the user id or email.
func (s *Store) ListPendingForRecipient(ctx context.Context, userID uuid.UUID, email string, now time.Time) ([]models.Invitation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations
		WHERE status = 'pending'
		  AND expires_at > $3
		  AND (invited_user_id = $1 OR LOWER(email) = LOWER($2))
		ORDER BY invited_at DESC
	`, userID, strings.TrimSpace(email), now)
	if err != nil {
		return nil, fmt.Errorf("list recipient invitations: %w", err)
	}
	return collectInvitations(rows)
}

// AcceptInvitation grants the offered membership and marks the invitation accepted
// in one transaction. The invitation row is locked so concurrent accepts serialize.
//
// An active owner membership is left untouched. Any other active membership has
// its access overwritten with the offered level. Without an active membership a
// new row is inserted; ended memberships are never revived.
func (s *Store) AcceptInvitation(ctx context.Context, invitationID, userID uuid.UUID, now time.Time) (AcceptResult, error) {
	var result AcceptResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		inv, err := scanInvitation(tx.QueryRowContext(ctx, `
			SELECT `+invitationColumns+`
			FROM invitations
			WHERE id = $1
			FOR UPDATE
		`, invitationID))
		if err != nil {
			return notFound(err, "invitation")
		}

		action, err := models.DecideAccept(inv, userID, now)
		if err != nil {
			return err
		}

		if action == models.AcceptReconfirm {
			m, err := activeMembership(ctx, tx, inv.EntityID, userID, false)
			if err != nil {
				if errors.Is(err, apperr.ErrNotFound) {
					return apperr.AlreadyProcessed("invitation was accepted but the membership has since ended")
				}
				return err
			}
			result = AcceptResult{Invitation: inv, Membership: m, Replayed: true}
			return nil
		}

		m, err := activeMembership(ctx, tx, inv.EntityID, userID, true)
		switch {
		case err == nil:
			if m.Access != models.AccessOwner && m.Access != inv.Access {
				m, err = scanMembership(tx.QueryRowContext(ctx, `
					UPDATE team_members
					SET access = $2
					WHERE id = $1
					RETURNING `+membershipColumns,
					m.ID, inv.Access,
				))
				if err != nil {
					return fmt.Errorf("update membership access: %w", err)
				}
			}
		case errors.Is(err, apperr.ErrNotFound):
			m = models.TeamMembership{
				EntityID:   inv.EntityID,
				UserID:     userID,
				Access:     inv.Access,
				PersonaID:  inv.InvitedPersonaID,
				RoleLabels: inv.RoleLabels,
				JoinedAt:   now,
			}
			if m.ID, err = insertMembership(ctx, tx, m); err != nil {
				return err
			}
		default:
			return err
		}

		inv, err = scanInvitation(tx.QueryRowContext(ctx, `
			UPDATE invitations
			SET status = 'accepted', accepted_by = $2, accepted_at = $3
			WHERE id = $1 AND status = 'pending'
			RETURNING `+invitationColumns,
			inv.ID, userID, now,
		))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.AlreadyProcessed("invitation is no longer pending")
			}
			return fmt.Errorf("mark invitation accepted: %w", err)
		}

		result = AcceptResult{Invitation: inv, Membership: m}
		return nil
	})
	if err != nil {
		return AcceptResult{}, err
	}
	return result, nil
}

// RevokeInvitation moves a pending, unexpired invitation to revoked. Other rows
// are left as they are; the returned bool reports whether a transition happened.
func (s *Store) RevokeInvitation(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE invitations
		SET status = 'revoked', revoked_at = $2
		WHERE id = $1 AND status = 'pending' AND expires_at > $2
	`, id, now)
	if err != nil {
		return false, fmt.Errorf("revoke invitation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke invitation rows: %w", err)
	}
	return n > 0, nil
}
