package workflow

import (
	"errors"
	"fmt"

	"contentplan-bot/internal/database"
)

// Error kinds returned by the engine. Match them with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidState    = errors.New("invalid state")
	ErrExternalService = errors.New("external service failure")
	ErrStore           = errors.New("store failure")
)

// Error describes a failed workflow operation.
type Error struct {
	Op     string // operation name, e.g. "publish_plan"
	Kind   error  // one of the Err* kinds above
	Entity string // "idea", "plan" or "post"
	ID     int64
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Entity != "" {
		msg = fmt.Sprintf("%s: %s %d: %s", e.Op, e.Entity, e.ID, e.Kind)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the error's kind.
func (e *Error) Is(target error) bool { return target == e.Kind }

func newError(op string, kind error, entity string, id int64, err error) *Error {
	return &Error{Op: op, Kind: kind, Entity: entity, ID: id, Err: err}
}

// storeError classifies an error returned by the store.
func storeError(op, entity string, id int64, err error) *Error {
	switch {
	case errors.Is(err, database.ErrNotFound):
		return newError(op, ErrNotFound, entity, id, nil)
	case errors.Is(err, database.ErrConflict):
		return newError(op, ErrInvalidState, entity, id, errors.New("changed concurrently"))
	default:
		return newError(op, ErrStore, entity, id, err)
	}
}
