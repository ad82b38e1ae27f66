package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// AccessLevel is the authorization level a team member holds on an entity.
// Levels are totally ordered: owner > admin > editor > viewer.
type AccessLevel int

const (
	AccessNone AccessLevel = iota
	AccessViewer
	AccessEditor
	AccessAdmin
	AccessOwner
)

var accessLabels = map[AccessLevel]string{
	AccessViewer: "viewer",
	AccessEditor: "editor",
	AccessAdmin:  "admin",
	AccessOwner:  "owner",
}

// ParseAccessLevel converts a stored or submitted label to an AccessLevel.
func ParseAccessLevel(label string) (AccessLevel, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "viewer":
		return AccessViewer, nil
	case "editor":
		return AccessEditor, nil
	case "admin":
		return AccessAdmin, nil
	case "owner":
		return AccessOwner, nil
	default:
		return AccessNone, fmt.Errorf("unknown access level %q", label)
	}
}

func (a AccessLevel) String() string {
	if label, ok := accessLabels[a]; ok {
		return label
	}
	return "none"
}

// Valid reports whether a is one of the four real levels.
func (a AccessLevel) Valid() bool {
	return a >= AccessViewer && a <= AccessOwner
}

// AtLeast reports whether a grants everything required grants.
func (a AccessLevel) AtLeast(required AccessLevel) bool {
	return a.Valid() && a >= required
}

// Invitable reports whether the level may be offered through an invitation.
// Ownership is fixed at entity creation and is never invited.
func (a AccessLevel) Invitable() bool {
	return a == AccessViewer || a == AccessEditor || a == AccessAdmin
}

// MaxAccess returns the higher of two levels.
func MaxAccess(a, b AccessLevel) AccessLevel {
	if a > b {
		return a
	}
	return b
}

// CappedAt returns a, lowered to limit when it is higher.
func (a AccessLevel) CappedAt(limit AccessLevel) AccessLevel {
	if a > limit {
		return limit
	}
	return a
}

// MarshalText writes the label; the zero level is written as "none".
func (a AccessLevel) MarshalText() ([]byte, error) {
	if a != AccessNone && !a.Valid() {
		return nil, fmt.Errorf("invalid access level %d", int(a))
	}
	return []byte(a.String()), nil
}

func (a *AccessLevel) UnmarshalText(text []byte) error {
	level, err := ParseAccessLevel(string(text))
	if err != nil {
		return err
	}
	*a = level
	return nil
}

// Value stores the level as its label.
func (a AccessLevel) Value() (driver.Value, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("invalid access level %d", int(a))
	}
	return a.String(), nil
}

// Scan reads a label column.
func (a *AccessLevel) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return a.UnmarshalText([]byte(v))
	case []byte:
		return a.UnmarshalText(v)
	default:
		return fmt.Errorf("scan access level: unsupported type %T", src)
	}
}
