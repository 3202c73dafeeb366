package vesta

import (
	"errors"
	"fmt"
)

// Standard sentinel errors.
var (
	// ErrTxStarted is returned when attempting to start a transaction
	// on a client that is already bound to one.
	ErrTxStarted = errors.New("vesta: cannot start a transaction within a transaction")
)

// QueryError wraps a read failure with the entity it occurred on.
type QueryError struct {
	Entity string
	Err    error
}

// Error returns the error string.
func (e *QueryError) Error() string {
	return fmt.Sprintf("vesta: querying %s: %v", e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error { return e.Err }

// NewQueryError returns a new QueryError.
func NewQueryError(entity string, err error) *QueryError {
	return &QueryError{Entity: entity, Err: err}
}

// IsQueryError returns true if the error is a QueryError.
func IsQueryError(err error) bool {
	if err == nil {
		return false
	}
	var e *QueryError
	return errors.As(err, &e)
}

// MutationError wraps a write failure with the entity and operation.
type MutationError struct {
	Entity string
	Op     string // "insert", "update", "delete" or "increase"
	Err    error
}

// Error returns the error string.
func (e *MutationError) Error() string {
	return fmt.Sprintf("vesta: %s %s: %v", e.Op, e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *MutationError) Unwrap() error { return e.Err }

// NewMutationError returns a new MutationError.
func NewMutationError(entity, op string, err error) *MutationError {
	return &MutationError{Entity: entity, Op: op, Err: err}
}

// IsMutationError returns true if the error is a MutationError.
func IsMutationError(err error) bool {
	if err == nil {
		return false
	}
	var e *MutationError
	return errors.As(err, &e)
}

// InputError reports a malformed call: a value object without its
// primary key, a condition of the wrong shape, a non-numeric increment
// target. It indicates a caller bug, not a data condition.
type InputError struct {
	Msg string
}

// Error returns the error string.
func (e *InputError) Error() string {
	return fmt.Sprintf("vesta: invalid input: %s", e.Msg)
}

// NewInputError returns a new InputError.
func NewInputError(format string, args ...any) *InputError {
	return &InputError{Msg: fmt.Sprintf(format, args...)}
}

// IsInputError returns true if the error is an InputError.
func IsInputError(err error) bool {
	if err == nil {
		return false
	}
	var e *InputError
	return errors.As(err, &e)
}

// RelationError reports a relation or join request naming a field that
// does not exist on the entity schema. It is a programming mistake and
// is never swallowed.
type RelationError struct {
	Entity string
	Field  string
}

// Error returns the error string.
func (e *RelationError) Error() string {
	return fmt.Sprintf("vesta: relation %q is not defined on %s", e.Field, e.Entity)
}

// NewRelationError returns a new RelationError.
func NewRelationError(entity, field string) *RelationError {
	return &RelationError{Entity: entity, Field: field}
}

// IsRelationError returns true if the error is a RelationError.
func IsRelationError(err error) bool {
	if err == nil {
		return false
	}
	var e *RelationError
	return errors.As(err, &e)
}

// NotFoundError is returned when an entity lookup by primary key finds
// no row.
type NotFoundError struct {
	Entity string
	ID     any
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("vesta: %s not found (id=%v)", e.Entity, e.ID)
}

// NewNotFoundError returns a new NotFoundError.
func NewNotFoundError(entity string, id any) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e)
}
