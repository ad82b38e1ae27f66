package models

import (
	"time"

	"github.com/google/uuid"
)

// TeamMembership is the authorization edge between a user and an entity.
// At most one membership per (entity, user) has a nil LeftAt.
type TeamMembership struct {
	ID         uuid.UUID     `json:"id"`
	EntityID   uuid.UUID     `json:"entity_id"`
	UserID     uuid.UUID     `json:"user_id"`
	Access     AccessLevel   `json:"access"`
	PersonaID  uuid.NullUUID `json:"persona_id"` // persona representing the member publicly
	RoleLabels []string      `json:"role_labels"`
	JoinedAt   time.Time     `json:"joined_at"`
	LeftAt     *time.Time    `json:"left_at,omitempty"`
}

// Active reports whether the membership still grants access.
func (m TeamMembership) Active() bool {
	return m.LeftAt == nil
}
