package models

import (
	"time"

	"github.com/google/uuid"
)

// Persona is a user's public-facing identity card, independent of login identity and rights.
type Persona struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	IsPublic     bool      `json:"is_public"`
	Avatar       string    `json:"avatar,omitempty"`
	Bio          string    `json:"bio,omitempty"`
	CategoryTags []string  `json:"category_tags"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PersonaScope is the acting user plus the persona they currently present as.
// It is passed explicitly into queries that filter by the current persona.
type PersonaScope struct {
	UserID    uuid.UUID
	PersonaID uuid.NullUUID
}

// HasPersona reports whether the scope narrows results to a single persona.
func (s PersonaScope) HasPersona() bool {
	return s.PersonaID.Valid
}
