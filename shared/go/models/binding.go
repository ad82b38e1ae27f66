package models

import (
	"time"

	"github.com/google/uuid"
)

// PersonaBinding credits a persona on an entity. It carries no rights.
type PersonaBinding struct {
	ID        uuid.UUID `json:"id"`
	EntityID  uuid.UUID `json:"entity_id"`
	PersonaID uuid.UUID `json:"persona_id"`
	IsPublic  bool      `json:"is_public"`
	RoleLabel string    `json:"role_label,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Credit is a binding joined with the persona's display fields.
type Credit struct {
	PersonaBinding
	PersonaName     string `json:"persona_name"`
	PersonaSlug     string `json:"persona_slug"`
	PersonaAvatar   string `json:"persona_avatar,omitempty"`
	PersonaIsPublic bool   `json:"persona_is_public"`
}
