package loom

import (
	"errors"
	"fmt"
)

// ErrWithInternal is an interface for errors that include extra "internal"
// information that should be logged in server logs but not sent to clients.
type ErrWithInternal interface {
	error
	Internal() string
}

// NotFoundError is returned when a referenced object does not resolve.
type NotFoundError struct {
	ResourceType string
	ID           string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q was not found", e.ResourceType, e.ID)
}

func (e *NotFoundError) IsNotFound() bool { return true }

// NewNotFoundError returns a NotFoundError for the given resource.
func NewNotFoundError(resourceType, id string) *NotFoundError {
	return &NotFoundError{ResourceType: resourceType, ID: id}
}

// IsNotFound reports whether err's chain contains a not-found error.
func IsNotFound(err error) bool {
	var nfe interface{ IsNotFound() bool }
	return errors.As(err, &nfe) && nfe.IsNotFound()
}

// InvalidArgumentError is returned for malformed or unsupported input.
type InvalidArgumentError struct {
	name   string
	reason string
}

// NewInvalidArgumentError returns an InvalidArgumentError for the named
// argument.
func NewInvalidArgumentError(name, reason string) *InvalidArgumentError {
	return &InvalidArgumentError{name: name, reason: reason}
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("%s %s", e.name, e.reason)
}

// IsInvalidArgument reports whether err's chain contains an
// InvalidArgumentError.
func IsInvalidArgument(err error) bool {
	var iae *InvalidArgumentError
	return errors.As(err, &iae)
}

// UnsupportedScopeError is a configuration error: a rule or request names a
// scope this subsystem has no handling for. It is fatal to the rule or
// request that carries it and is never retried within a cycle.
type UnsupportedScopeError struct {
	Scope string
}

func (e *UnsupportedScopeError) Error() string {
	return fmt.Sprintf("unsupported scope %q", e.Scope)
}

// IsUnsupportedScope reports whether err's chain contains an
// UnsupportedScopeError.
func IsUnsupportedScope(err error) bool {
	var use *UnsupportedScopeError
	return errors.As(err, &use)
}
