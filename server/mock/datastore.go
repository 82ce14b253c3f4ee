// Package mock provides hand-written function-field mocks for the
// subsystem's storage seams. Tests assign the funcs they need and assert on
// the Invoked flags.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/loomhq/loom/server/loom"
)

var _ loom.Datastore = (*Store)(nil)

type LockFunc func(ctx context.Context, name string, owner string, expiration time.Duration) (bool, error)

type UnlockFunc func(ctx context.Context, name string, owner string) error

type ListRetentionRulesFunc func(ctx context.Context) ([]*loom.RetentionRule, error)

type PatchRetentionRuleFunc func(ctx context.Context, id string, patch loom.RetentionRulePatch) error

type NewBackgroundTaskFunc func(ctx context.Context, task *loom.BackgroundTask) (*loom.BackgroundTask, error)

type UpdateBackgroundTaskFunc func(ctx context.Context, task *loom.BackgroundTask) error

type ListIncompleteTasksFunc func(ctx context.Context, limit int) ([]*loom.BackgroundTask, error)

type ResolveObjectFunc func(ctx context.Context, id string) (*loom.StoredObject, error)

type ResolveNotificationFunc func(ctx context.Context, id string) (*loom.Notification, error)

type NewActivityFunc func(ctx context.Context, user *loom.User, activity loom.Activity) error

// Store is a mock implementation of loom.Datastore.
type Store struct {
	mu sync.Mutex

	LockFunc        LockFunc
	LockFuncInvoked bool

	UnlockFunc        UnlockFunc
	UnlockFuncInvoked bool

	ListRetentionRulesFunc        ListRetentionRulesFunc
	ListRetentionRulesFuncInvoked bool

	PatchRetentionRuleFunc        PatchRetentionRuleFunc
	PatchRetentionRuleFuncInvoked bool

	NewBackgroundTaskFunc        NewBackgroundTaskFunc
	NewBackgroundTaskFuncInvoked bool

	UpdateBackgroundTaskFunc        UpdateBackgroundTaskFunc
	UpdateBackgroundTaskFuncInvoked bool

	ListIncompleteTasksFunc        ListIncompleteTasksFunc
	ListIncompleteTasksFuncInvoked bool

	ResolveObjectFunc        ResolveObjectFunc
	ResolveObjectFuncInvoked bool

	ResolveNotificationFunc        ResolveNotificationFunc
	ResolveNotificationFuncInvoked bool

	NewActivityFunc        NewActivityFunc
	NewActivityFuncInvoked bool
}

func (s *Store) Lock(ctx context.Context, name string, owner string, expiration time.Duration) (bool, error) {
	s.mu.Lock()
	s.LockFuncInvoked = true
	s.mu.Unlock()
	return s.LockFunc(ctx, name, owner, expiration)
}

func (s *Store) Unlock(ctx context.Context, name string, owner string) error {
	s.mu.Lock()
	s.UnlockFuncInvoked = true
	s.mu.Unlock()
	return s.UnlockFunc(ctx, name, owner)
}

func (s *Store) ListRetentionRules(ctx context.Context) ([]*loom.RetentionRule, error) {
	s.mu.Lock()
	s.ListRetentionRulesFuncInvoked = true
	s.mu.Unlock()
	return s.ListRetentionRulesFunc(ctx)
}

func (s *Store) PatchRetentionRule(ctx context.Context, id string, patch loom.RetentionRulePatch) error {
	s.mu.Lock()
	s.PatchRetentionRuleFuncInvoked = true
	s.mu.Unlock()
	return s.PatchRetentionRuleFunc(ctx, id, patch)
}

func (s *Store) NewBackgroundTask(ctx context.Context, task *loom.BackgroundTask) (*loom.BackgroundTask, error) {
	s.mu.Lock()
	s.NewBackgroundTaskFuncInvoked = true
	s.mu.Unlock()
	return s.NewBackgroundTaskFunc(ctx, task)
}

func (s *Store) UpdateBackgroundTask(ctx context.Context, task *loom.BackgroundTask) error {
	s.mu.Lock()
	s.UpdateBackgroundTaskFuncInvoked = true
	s.mu.Unlock()
	return s.UpdateBackgroundTaskFunc(ctx, task)
}

func (s *Store) ListIncompleteTasks(ctx context.Context, limit int) ([]*loom.BackgroundTask, error) {
	s.mu.Lock()
	s.ListIncompleteTasksFuncInvoked = true
	s.mu.Unlock()
	return s.ListIncompleteTasksFunc(ctx, limit)
}

func (s *Store) ResolveObject(ctx context.Context, id string) (*loom.StoredObject, error) {
	s.mu.Lock()
	s.ResolveObjectFuncInvoked = true
	s.mu.Unlock()
	return s.ResolveObjectFunc(ctx, id)
}

func (s *Store) ResolveNotification(ctx context.Context, id string) (*loom.Notification, error) {
	s.mu.Lock()
	s.ResolveNotificationFuncInvoked = true
	s.mu.Unlock()
	return s.ResolveNotificationFunc(ctx, id)
}

func (s *Store) NewActivity(ctx context.Context, user *loom.User, activity loom.Activity) error {
	s.mu.Lock()
	s.NewActivityFuncInvoked = true
	s.mu.Unlock()
	return s.NewActivityFunc(ctx, user, activity)
}
