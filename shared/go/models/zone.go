package models

import (
	"time"

	"github.com/google/uuid"
)

// Zone groups participants on an event or festival.
type Zone string

const (
	ZoneOnStage   Zone = "on_stage"
	ZoneBackstage Zone = "backstage"
	ZoneHost      Zone = "host"
)

// Valid reports whether z is a known zone.
func (z Zone) Valid() bool {
	switch z {
	case ZoneOnStage, ZoneBackstage, ZoneHost:
		return true
	}
	return false
}

// InheritedByEvents reports whether festival-level rows in this zone show on every event.
func (z Zone) InheritedByEvents() bool {
	return z == ZoneHost || z == ZoneBackstage
}

// ParticipantKind says whether a participant id names a persona or an entity.
type ParticipantKind string

const (
	ParticipantPersona ParticipantKind = "persona"
	ParticipantEntity  ParticipantKind = "entity"
)

// Valid reports whether k is a known participant kind.
func (k ParticipantKind) Valid() bool {
	return k == ParticipantPersona || k == ParticipantEntity
}

// ZoneScope is the event or festival a zone belongs to. Exactly one id is set.
type ZoneScope struct {
	EventID    uuid.NullUUID `json:"event_id"`
	FestivalID uuid.NullUUID `json:"festival_id"`
}

// EventScope scopes zones to a single event.
func EventScope(id uuid.UUID) ZoneScope {
	return ZoneScope{EventID: uuid.NullUUID{UUID: id, Valid: true}}
}

// FestivalScope scopes zones to a festival.
func FestivalScope(id uuid.UUID) ZoneScope {
	return ZoneScope{FestivalID: uuid.NullUUID{UUID: id, Valid: true}}
}

// Valid reports whether exactly one of the scope ids is set.
func (s ZoneScope) Valid() bool {
	return s.EventID.Valid != s.FestivalID.Valid
}

// IsFestival reports whether the scope is festival-level.
func (s ZoneScope) IsFestival() bool {
	return s.FestivalID.Valid
}

// ZoneAssignment places a participant in one zone of an event or festival.
type ZoneAssignment struct {
	ID              uuid.UUID       `json:"id"`
	Scope           ZoneScope       `json:"scope"`
	Zone            Zone            `json:"zone"`
	ParticipantKind ParticipantKind `json:"participant_kind"`
	ParticipantID   uuid.UUID       `json:"participant_id"`
	SortOrder       int             `json:"sort_order"`
	RoleLabel       string          `json:"role_label,omitempty"`
	IsPublic        bool            `json:"is_public"`
	CreatedAt       time.Time       `json:"created_at"`

	// Inherited marks festival rows shown read-only on an event lineup.
	Inherited bool `json:"inherited"`
}

// Lineup is an event's zones including festival rows it inherits.
type Lineup struct {
	EventID     uuid.UUID        `json:"event_id"`
	FestivalID  uuid.NullUUID    `json:"festival_id"`
	Assignments []ZoneAssignment `json:"assignments"`
}

// InZone returns the lineup rows of one zone, festival rows first.
func (l Lineup) InZone(zone Zone) []ZoneAssignment {
	var inherited, own []ZoneAssignment
	for _, a := range l.Assignments {
		if a.Zone != zone {
			continue
		}
		if a.Inherited {
			inherited = append(inherited, a)
		} else {
			own = append(own, a)
		}
	}
	return append(inherited, own...)
}
