package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownEntity is returned when a name has no registered entity.
	ErrUnknownEntity = errors.New("unknown entity")
	// ErrNotFound is returned when no record has the requested id.
	ErrNotFound = errors.New("record not found")
)

// ValidationError reports a request body that cannot be applied to an entity.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ConflictError reports an update whose body id disagrees with the path id.
// BodyID is nil when the body sent "id": null.
type ConflictError struct {
	PathID int64
	BodyID *int64
}

func (e *ConflictError) Error() string {
	if e.BodyID == nil {
		return fmt.Sprintf("the URL was for id %d but the object sent had id null", e.PathID)
	}
	return fmt.Sprintf("the URL was for id %d but the object sent had id %d", e.PathID, *e.BodyID)
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
