// Package apperr defines the error taxonomy shared by the access and invitation services.
package apperr

import "errors"

// Kind classifies an error for callers that translate failures into responses.
type Kind string

const (
	KindValidation       Kind = "validation"
	KindNotFound         Kind = "not_found"
	KindExpired          Kind = "expired"
	KindAlreadyProcessed Kind = "already_processed"
	KindPermissionDenied Kind = "permission_denied"
	KindConflict         Kind = "conflict"
	KindUnauthorized     Kind = "unauthorized"
)

// Error is a classified failure with a user-facing message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the package sentinels by kind, so errors.Is(err, ErrNotFound)
// holds for every not-found error regardless of its message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	// ErrValidation matches malformed or disallowed requests.
	ErrValidation = &Error{Kind: KindValidation}
	// ErrNotFound matches missing invitations, entities and memberships.
	ErrNotFound = &Error{Kind: KindNotFound}
	// ErrExpired matches invitations past their expiry.
	ErrExpired = &Error{Kind: KindExpired}
	// ErrAlreadyProcessed matches invitations that are no longer pending.
	ErrAlreadyProcessed = &Error{Kind: KindAlreadyProcessed}
	// ErrPermissionDenied matches writes the access resolver refused.
	ErrPermissionDenied = &Error{Kind: KindPermissionDenied}
	// ErrConflict matches unique-constraint violations.
	ErrConflict = &Error{Kind: KindConflict}
	// ErrUnauthorized matches missing or invalid sessions.
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
)

func Validation(msg string) error       { return &Error{Kind: KindValidation, Message: msg} }
func NotFound(msg string) error         { return &Error{Kind: KindNotFound, Message: msg} }
func Expired(msg string) error          { return &Error{Kind: KindExpired, Message: msg} }
func AlreadyProcessed(msg string) error { return &Error{Kind: KindAlreadyProcessed, Message: msg} }
func PermissionDenied(msg string) error { return &Error{Kind: KindPermissionDenied, Message: msg} }
func Conflict(msg string) error         { return &Error{Kind: KindConflict, Message: msg} }
func Unauthorized(msg string) error     { return &Error{Kind: KindUnauthorized, Message: msg} }

// Wrap classifies an underlying error.
func Wrap(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf reports the kind of the first classified error in err's chain.
func KindOf(err error) (Kind, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind, true
	}
	return "", false
}
