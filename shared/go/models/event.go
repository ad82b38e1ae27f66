package models

import (
	"time"

	"github.com/google/uuid"
)

// Festival is run by a host entity and groups events.
type Festival struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	HostEntityID uuid.UUID `json:"host_entity_id"`
	CreatedBy    uuid.UUID `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
}

// Event belongs either to a festival or directly to a host entity.
type Event struct {
	ID           uuid.UUID     `json:"id"`
	Name         string        `json:"name"`
	Slug         string        `json:"slug"`
	FestivalID   uuid.NullUUID `json:"festival_id"`
	HostEntityID uuid.NullUUID `json:"host_entity_id"`
	StartsAt     time.Time     `json:"starts_at"`
	CreatedBy    uuid.UUID     `json:"created_by"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Hosting lists who administers an event, festival or entity for access resolution.
type Hosting struct {
	// Owners are the owning host entities: the festival's host entity, an
	// event's direct host entity, or the entity itself.
	Owners []uuid.UUID
	// CoHosts are entities placed in a host zone (festival rows included for
	// events) that are not owners. Their crew acts as editors at most.
	CoHosts []uuid.UUID
	// FestivalHost is the festival's host entity when the target belongs to a festival.
	FestivalHost uuid.NullUUID
}
