package service

import (
	"context"
	"fmt"

	"github.com/WatchBeam/clock"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/loomhq/loom/server/authz"
	"github.com/loomhq/loom/server/contexts/ctxerr"
	"github.com/loomhq/loom/server/contexts/viewer"
	"github.com/loomhq/loom/server/loom"
	"github.com/loomhq/loom/server/search"
)

// taskIDNamespace seeds the deterministic standard id of task records.
var taskIDNamespace = uuid.MustParse("7a0f3b62-9c1e-4c52-b7a4-2d5f0e8c41d9")

// CreateDefaultTask builds the canonical task record: fresh identifiers,
// creation timestamp and initiator, zeroed progress counters. When a scope is
// supplied (user-requested QUERY/LIST tasks, not system RULE tasks) the
// record also carries the authorization metadata computed once at creation:
// the principal as sole admin member (none for import tasks, whose records
// are not user-owned), and the scope's designated authority.
func CreateDefaultTask(clk clock.Clock, user *loom.User, taskType loom.TaskType, expectedNumber int, scope loom.TaskScope) *loom.BackgroundTask {
	internalID := uuid.New().String()
	standardID := "background-task--" + uuid.NewSHA1(taskIDNamespace, []byte(internalID)).String()

	task := &loom.BackgroundTask{
		ID:                  internalID,
		InternalID:          internalID,
		StandardID:          standardID,
		EntityType:          loom.BackgroundTaskEntityType,
		InitiatorID:         user.ID,
		CreatedAt:           clk.Now().UTC(),
		Completed:           false,
		Type:                taskType,
		TaskPosition:        "",
		TaskProcessedNumber: 0,
		TaskExpectedNumber:  expectedNumber,
		Errors:              []loom.TaskError{},
	}

	if scope != "" {
		task.Scope = scope
		task.AuthorizedMembers = []loom.MemberAccess{}
		if scope != loom.TaskScopeImport {
			task.AuthorizedMembers = append(task.AuthorizedMembers, loom.MemberAccess{
				ID:          user.ID,
				AccessRight: loom.AdminAccessRight,
			})
		}
		task.AuthorizedAuthorities = []string{}
		if authority := authz.AuthorityForScope(scope); authority != "" {
			task.AuthorizedAuthorities = append(task.AuthorizedAuthorities, authority)
		}
	}

	return task
}

// CreateListTask validates and records a bulk operation over an explicit id
// list, on behalf of the principal carried by the request context. Validation
// short-circuits before any side effect; on success the audit event is
// emitted and then the record is persisted, in that order.
func (svc *Service) CreateListTask(ctx context.Context, input loom.TaskInput) (*loom.BackgroundTask, error) {
	user, err := principalFromContext(ctx, input)
	if err != nil {
		return nil, err
	}
	if err := svc.gate.CheckActionValidity(ctx, user, input, input.Scope, loom.TaskTypeList); err != nil {
		return nil, err
	}

	task := CreateDefaultTask(svc.clock, user, loom.TaskTypeList, len(input.IDs), input.Scope)
	task.Actions = input.Actions
	task.IDs = input.IDs

	svc.publishUserAction(ctx, user,
		fmt.Sprintf("creates list task over %d elements", len(input.IDs)),
		map[string]interface{}{
			"id":          task.ID,
			"entity_type": loom.BackgroundTaskEntityType,
			"input":       input,
		})

	created, err := svc.ds.NewBackgroundTask(ctx, task)
	if err != nil {
		return nil, ctxerr.Wrap(ctx, err, "persist list task")
	}
	return created, nil
}

// CreateQueryTask validates and records a bulk operation over a filter
// snapshot. The expected count is taken from the search engine's global count
// at creation; the snapshot itself is re-evaluated by the runner at execution
// time.
func (svc *Service) CreateQueryTask(ctx context.Context, input loom.TaskInput) (*loom.BackgroundTask, error) {
	user, err := principalFromContext(ctx, input)
	if err != nil {
		return nil, err
	}
	if err := svc.gate.CheckActionValidity(ctx, user, input, input.Scope, loom.TaskTypeQuery); err != nil {
		return nil, err
	}

	target, err := search.TargetForTaskScope(input.Scope)
	if err != nil {
		return nil, err
	}
	expected, err := svc.adapter.Count(ctx, user, target, input.Filters)
	if err != nil {
		return nil, ctxerr.Wrap(ctx, err, "count query task elements")
	}

	task := CreateDefaultTask(svc.clock, user, loom.TaskTypeQuery, expected, input.Scope)
	task.Actions = input.Actions
	task.Filters = input.Filters

	svc.publishUserAction(ctx, user,
		fmt.Sprintf("creates query task over %d elements", expected),
		map[string]interface{}{
			"id":          task.ID,
			"entity_type": loom.BackgroundTaskEntityType,
			"input":       input,
		})

	created, err := svc.ds.NewBackgroundTask(ctx, task)
	if err != nil {
		return nil, ctxerr.Wrap(ctx, err, "persist query task")
	}
	return created, nil
}

// principalFromContext extracts the requesting user from the viewer context.
// A missing viewer is an authorization failure, not an internal error.
func principalFromContext(ctx context.Context, input loom.TaskInput) (*loom.User, error) {
	vc, ok := viewer.FromContext(ctx)
	if !ok || vc.User == nil {
		return nil, authz.ForbiddenWithInternal("missing viewer in request context", nil, input.Scope, input.Actions)
	}
	return vc.User, nil
}

// publishUserAction appends an audit record for the action. Fire-and-forget:
// a failed audit write is logged and never blocks the action it describes.
func (svc *Service) publishUserAction(ctx context.Context, user *loom.User, message string, contextData map[string]interface{}) {
	activity := loom.Activity{
		ID:          uuid.New().String(),
		CreatedAt:   svc.clock.Now().UTC(),
		UserID:      user.ID,
		EventType:   loom.ActivityTypeMutation,
		EventScope:  loom.ActivityScopeCreate,
		EventAccess: loom.ActivityAccessExtended,
		Message:     message,
		ContextData: contextData,
	}
	if err := svc.ds.NewActivity(ctx, user, activity); err != nil {
		level.Error(svc.logger).Log("msg", "publish user action", "err", err)
	}
}
