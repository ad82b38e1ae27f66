// Package access answers whether a user may act on an entity, event, festival
// or lineup. Decide is pure; Service loads the facts it needs from the store.
package access

import (
	"github.com/google/uuid"

	"backstage/shared/go/models"
)

// Action is something a user attempts on a target.
type Action string

const (
	ActionView    Action = "view"
	ActionEdit    Action = "edit"
	ActionInvite  Action = "invite"
	ActionPublish Action = "publish"
)

// ParseAction validates an action name.
func ParseAction(s string) (Action, bool) {
	a := Action(s)
	_, ok := requiredLevels[a]
	return a, ok
}

var requiredLevels = map[Action]models.AccessLevel{
	ActionView:    models.AccessViewer,
	ActionEdit:    models.AccessEditor,
	ActionInvite:  models.AccessAdmin,
	ActionPublish: models.AccessAdmin,
}

// RequiredLevel returns the lowest access level that permits the action.
func (a Action) RequiredLevel() (models.AccessLevel, bool) {
	level, ok := requiredLevels[a]
	return level, ok
}

// TargetKind says what a Target id names.
type TargetKind string

const (
	TargetEntity   TargetKind = "entity"
	TargetEvent    TargetKind = "event"
	TargetFestival TargetKind = "festival"
	// TargetLineup is an event's zones; festival crew may read and edit it.
	// Placing co-hosts is checked against the event instead.
	TargetLineup TargetKind = "lineup"
)

// Target is the record an action applies to. For lineups ID is the event id.
type Target struct {
	Kind TargetKind
	ID   uuid.UUID
}

// Entity targets an entity directly.
func Entity(id uuid.UUID) Target { return Target{Kind: TargetEntity, ID: id} }

// Event targets an event through its host set.
func Event(id uuid.UUID) Target { return Target{Kind: TargetEvent, ID: id} }

// Festival targets a festival through its host set.
func Festival(id uuid.UUID) Target { return Target{Kind: TargetFestival, ID: id} }

// Lineup targets the zones of an event.
func Lineup(eventID uuid.UUID) Target { return Target{Kind: TargetLineup, ID: eventID} }

// ParseTargetKind validates a target kind name.
func ParseTargetKind(s string) (TargetKind, bool) {
	switch k := TargetKind(s); k {
	case TargetEntity, TargetEvent, TargetFestival, TargetLineup:
		return k, true
	}
	return "", false
}

// Decision is the tri-state resolver result.
type Decision int

const (
	NotApplicable Decision = iota
	Allowed
	Denied
)

func (d Decision) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case Denied:
		return "denied"
	default:
		return "not_applicable"
	}
}

// Allowed reports whether the decision grants the action.
func (d Decision) Allowed() bool {
	return d == Allowed
}

// Facts are the records the resolver needs about one (user, target) pair.
type Facts struct {
	// SuperAdmin is the platform-wide override.
	SuperAdmin bool
	// TargetFound is false when the target does not exist.
	TargetFound bool
	// Access is the user's best active level across the target's owning hosts.
	// For an entity target that is the entity itself.
	Access models.AccessLevel
	// CoHostAccess is the user's best level across host zone entities. It
	// counts as editor at most, so invite and publish stay with the owners.
	CoHostAccess models.AccessLevel
	// FestivalCrew is true when the user holds any active membership on the
	// host entity of the festival the target belongs to.
	FestivalCrew bool
}

// CoHostCeiling is the highest level a host zone placement can confer.
const CoHostCeiling = models.AccessEditor

// Effective is the level the resolver compares against an action.
func (f Facts) Effective() models.AccessLevel {
	return models.MaxAccess(f.Access, f.CoHostAccess.CappedAt(CoHostCeiling))
}

// Decide resolves an action. Rules apply in order and the first match wins:
// super-admin, then the effective access level against the action's required level, then
// festival crew read-through on lineups. Unknown actions or target kinds are
// not applicable; anything else falls through to denied.
func Decide(action Action, target Target, f Facts) Decision {
	required, ok := action.RequiredLevel()
	if !ok {
		return NotApplicable
	}
	if _, ok := ParseTargetKind(string(target.Kind)); !ok {
		return NotApplicable
	}

	if f.SuperAdmin {
		return Allowed
	}
	if !f.TargetFound {
		return Denied
	}
	if f.Effective().AtLeast(required) {
		return Allowed
	}
	if target.Kind == TargetLineup && f.FestivalCrew && (action == ActionView || action == ActionEdit) {
		return Allowed
	}
	return Denied
}
