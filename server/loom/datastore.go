package loom

import (
	"context"
	"time"
)

// Locker allows a process to acquire a named lease, mutually exclusive
// across all cooperating instances. Lock returns true if the lease was
// acquired or extended; calling Lock again with the same owner renews it.
type Locker interface {
	Lock(ctx context.Context, name string, owner string, expiration time.Duration) (bool, error)
	Unlock(ctx context.Context, name string, owner string) error
}

// Datastore combines the storage concerns of this subsystem. The search/index
// engine is not part of it; see the search package.
type Datastore interface {
	Locker

	// ListRetentionRules returns every configured retention rule.
	ListRetentionRules(ctx context.Context) ([]*RetentionRule, error)
	// PatchRetentionRule persists the execution metadata of one rule.
	PatchRetentionRule(ctx context.Context, id string, patch RetentionRulePatch) error

	// NewBackgroundTask persists a freshly created task record.
	NewBackgroundTask(ctx context.Context, task *BackgroundTask) (*BackgroundTask, error)
	// UpdateBackgroundTask persists the runner's progress on a task.
	UpdateBackgroundTask(ctx context.Context, task *BackgroundTask) error
	// ListIncompleteTasks returns up to limit tasks not yet completed,
	// oldest first.
	ListIncompleteTasks(ctx context.Context, limit int) ([]*BackgroundTask, error)

	// ResolveObject resolves an id to its stored object, returning a
	// NotFoundError when it does not exist.
	ResolveObject(ctx context.Context, id string) (*StoredObject, error)
	// ResolveNotification resolves an id as a notification, returning a
	// NotFoundError when it does not exist or is not a notification.
	ResolveNotification(ctx context.Context, id string) (*Notification, error)

	// NewActivity appends an audit record for a user action.
	NewActivity(ctx context.Context, user *User, activity Activity) error
}
