// Package ctxerr provides functions to wrap errors with annotations as close
// as possible to where the error is encountered, and to hand them once to a
// context-registered handler after they bubbled back to the top of the call
// stack (the cron loop, the CLI command, etc.). It is fine to wrap the error
// with more annotations along the way.
package ctxerr

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

type key int

const errHandlerKey key = 0

// Handler receives errors that reached the top of the call stack.
type Handler interface {
	Store(ctx context.Context, err error)
}

// NewContext returns a context derived from ctx that contains the provided
// error handler.
func NewContext(ctx context.Context, eh Handler) context.Context {
	return context.WithValue(ctx, errHandlerKey, eh)
}

func fromContext(ctx context.Context) Handler {
	v, _ := ctx.Value(errHandlerKey).(Handler)
	return v
}

// New creates a new error with the provided error message.
func New(ctx context.Context, errMsg string) error {
	return errors.New(errMsg)
}

// Errorf creates a new error with the provided formatted message.
func Errorf(ctx context.Context, fmsg string, args ...interface{}) error {
	return fmt.Errorf(fmsg, args...)
}

// Wrap annotates err with the provided message. Returns nil if err is nil.
func Wrap(ctx context.Context, err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, msg)
}

// Wrapf annotates err with the provided formatted message. Returns nil if err
// is nil.
func Wrapf(ctx context.Context, err error, fmsg string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, fmsg, args...)
}

// Handle passes err to the handler registered on the context, if any. Call it
// only once per error, at the top of the call stack.
func Handle(ctx context.Context, err error) error {
	if eh := fromContext(ctx); eh != nil && err != nil {
		eh.Store(ctx, err)
	}
	return err
}
