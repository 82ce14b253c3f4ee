package authz

import (
	"net/http"

	"github.com/loomhq/loom/server/loom"
)

const (
	// ForbiddenErrorMessage is the error message that should be returned to
	// clients when an action is forbidden. It is intentionally vague to prevent
	// disclosing information that a client should not have access to.
	ForbiddenErrorMessage = "forbidden"
)

// Forbidden is the error type for authorization denials.
type Forbidden struct {
	internal string
	subject  *loom.User
	scope    loom.TaskScope
	actions  []loom.TaskAction
}

// ForbiddenWithInternal creates a new error that will return a simple
// "forbidden" to the client, logging internally the more detailed message
// provided.
func ForbiddenWithInternal(internal string, subject *loom.User, scope loom.TaskScope, actions []loom.TaskAction) *Forbidden {
	return &Forbidden{
		internal: internal,
		subject:  subject,
		scope:    scope,
		actions:  actions,
	}
}

// Error implements the error interface.
func (e *Forbidden) Error() string {
	return ForbiddenErrorMessage
}

// StatusCode implements the go-kit http StatusCoder interface.
func (e *Forbidden) StatusCode() int {
	return http.StatusForbidden
}

// Internal allows the internal error message to be logged.
func (e *Forbidden) Internal() string {
	return e.internal
}

// LogFields allows this error to be logged with subject, scope, and actions.
func (e *Forbidden) LogFields() []interface{} {
	var subject string
	if e.subject != nil {
		subject = e.subject.ID
	}
	return []interface{}{
		"subject", subject,
		"scope", e.scope,
		"actions", e.actions,
	}
}

// Unsupported is the error type for requests naming an operation the gate has
// no handling for: not a capability problem, a contract one.
type Unsupported struct {
	internal string
}

// UnsupportedWithInternal creates a new Unsupported error carrying an
// internal detail message.
func UnsupportedWithInternal(internal string) *Unsupported {
	return &Unsupported{internal: internal}
}

func (e *Unsupported) Error() string {
	return "unsupported operation"
}

// StatusCode implements the go-kit http StatusCoder interface.
func (e *Unsupported) StatusCode() int {
	return http.StatusUnprocessableEntity
}

// Internal allows the internal error message to be logged.
func (e *Unsupported) Internal() string {
	return e.internal
}
