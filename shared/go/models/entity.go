package models

import (
	"time"

	"github.com/google/uuid"
)

// EntityType is the immutable type an organizational record is created with.
type EntityType string

const (
	EntityTypeVenue EntityType = "venue"
	EntityTypeSolo  EntityType = "solo"
	EntityTypeBand  EntityType = "band"
)

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	switch t {
	case EntityTypeVenue, EntityTypeSolo, EntityTypeBand:
		return true
	}
	return false
}

// EntityKind scopes permissions: hosts organize, projects perform.
type EntityKind string

const (
	KindHost    EntityKind = "host"
	KindProject EntityKind = "project"
)

// Entity is a venue, solo artist or band.
type Entity struct {
	ID              uuid.UUID  `json:"id"`
	Type            EntityType `json:"type"`
	Name            string     `json:"name"`
	Slug            string     `json:"slug"`
	IsPublished     bool       `json:"is_published"`
	IsHostOrganizer bool       `json:"is_host_organizer"` // solo/band acting as an organizer
	HeroImage       string     `json:"hero_image,omitempty"`
	CreatedBy       uuid.UUID  `json:"created_by"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Kind derives the permission scope of the entity. Venues are always hosts.
func (e Entity) Kind() EntityKind {
	return KindOf(e.Type, e.IsHostOrganizer)
}

// KindOf derives an entity kind from its type and organizer flag.
func KindOf(t EntityType, hostOrganizer bool) EntityKind {
	if t == EntityTypeVenue || hostOrganizer {
		return KindHost
	}
	return KindProject
}
