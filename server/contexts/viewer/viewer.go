// Package viewer enables setting and reading the current user from the
// request context.
package viewer

import (
	"context"

	"github.com/loomhq/loom/server/loom"
)

type key int

const viewerKey key = 0

// NewContext creates a new context with the current user information.
func NewContext(ctx context.Context, v Viewer) context.Context {
	return context.WithValue(ctx, viewerKey, v)
}

// FromContext returns the current user information if present.
func FromContext(ctx context.Context) (Viewer, bool) {
	v, ok := ctx.Value(viewerKey).(Viewer)
	return v, ok
}

// Viewer holds information about the current user.
type Viewer struct {
	User *loom.User
}

// UserID is a helper that enables quick access to the user ID of the current
// user.
func (v Viewer) UserID() string {
	if v.User != nil {
		return v.User.ID
	}
	return ""
}

// CanPerform reports whether the current user holds the given capability.
func (v Viewer) CanPerform(capability string) bool {
	if v.User == nil {
		return false
	}
	return v.User.HasCapability(capability)
}
