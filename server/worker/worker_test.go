package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"

	kitlog "github.com/go-kit/log"
	"github.com/loomhq/loom/server/loom"
	"github.com/loomhq/loom/server/mock"
	"github.com/loomhq/loom/server/search"
	"github.com/stretchr/testify/require"
)

type executedAction struct {
	actionType loom.ActionType
	elementID  string
}

type fakeExecutor struct {
	executed []executedAction
	failOn   map[string]error // keyed by "TYPE/elementID"
}

func (f *fakeExecutor) ExecuteAction(ctx context.Context, actor *loom.User, action loom.TaskAction, elementID string) error {
	if err, ok := f.failOn[fmt.Sprintf("%s/%s", action.Type, elementID)]; ok {
		return err
	}
	f.executed = append(f.executed, executedAction{actionType: action.Type, elementID: elementID})
	return nil
}

type fakeEngine struct {
	paginate func(req search.Request) (*loom.ElementConnection, error)
}

func (f *fakeEngine) Paginate(ctx context.Context, req search.Request) (*loom.ElementConnection, error) {
	return f.paginate(req)
}

type fakeLease struct {
	done      chan struct{}
	extendErr error
	extends   int
}

func newFakeLease() *fakeLease {
	return &fakeLease{done: make(chan struct{})}
}

func (l *fakeLease) Done() <-chan struct{} { return l.done }

func (l *fakeLease) Extend(ctx context.Context) error {
	l.extends++
	return l.extendErr
}

// taskStore serves one mutable task until it completes, like the real queue
// query does.
func taskStore(task *loom.BackgroundTask) *mock.Store {
	ds := new(mock.Store)
	ds.ListIncompleteTasksFunc = func(ctx context.Context, limit int) ([]*loom.BackgroundTask, error) {
		if task.Completed {
			return nil, nil
		}
		return []*loom.BackgroundTask{task}, nil
	}
	ds.UpdateBackgroundTaskFunc = func(ctx context.Context, t *loom.BackgroundTask) error {
		return nil
	}
	return ds
}

func listTask(ids ...string) *loom.BackgroundTask {
	return &loom.BackgroundTask{
		ID:      "task-1",
		Type:    loom.TaskTypeList,
		Scope:   loom.TaskScopeKnowledge,
		Actions: []loom.TaskAction{{Type: loom.ActionAdd}},
		IDs:     ids,
	}
}

func newTestRunner(ds Datastore, engine search.Client, exec ActionExecutor, opts ...Option) *Runner {
	if engine == nil {
		engine = &fakeEngine{paginate: func(req search.Request) (*loom.ElementConnection, error) {
			return &loom.ElementConnection{}, nil
		}}
	}
	return NewRunner(ds, search.NewAdapter(engine), exec, loom.AutomationUser(), kitlog.NewNopLogger(), opts...)
}

func TestRunListTaskSingleBatch(t *testing.T) {
	task := listTask("e1", "e2", "e3")
	ds := taskStore(task)
	exec := &fakeExecutor{}

	r := newTestRunner(ds, nil, exec)
	require.NoError(t, r.Run(context.Background(), nil))

	require.True(t, task.Completed)
	require.Equal(t, 3, task.TaskProcessedNumber)
	require.Equal(t, "e3", task.TaskPosition)
	require.NotNil(t, task.LastExecutionDate)
	require.Empty(t, task.Errors)
	require.Equal(t, []executedAction{
		{loom.ActionAdd, "e1"},
		{loom.ActionAdd, "e2"},
		{loom.ActionAdd, "e3"},
	}, exec.executed)
	require.True(t, ds.UpdateBackgroundTaskFuncInvoked)
}

func TestRunListTaskAdvancesAcrossRuns(t *testing.T) {
	task := listTask("e1", "e2", "e3", "e4", "e5")
	ds := taskStore(task)
	exec := &fakeExecutor{}

	r := newTestRunner(ds, nil, exec, WithBatchSize(2))

	require.NoError(t, r.Run(context.Background(), nil))
	require.False(t, task.Completed)
	require.Equal(t, 2, task.TaskProcessedNumber)
	require.Equal(t, "e2", task.TaskPosition)

	require.NoError(t, r.Run(context.Background(), nil))
	require.False(t, task.Completed)
	require.Equal(t, 4, task.TaskProcessedNumber)

	require.NoError(t, r.Run(context.Background(), nil))
	require.True(t, task.Completed)
	require.Equal(t, 5, task.TaskProcessedNumber)
	require.Equal(t, "e5", task.TaskPosition)
	require.Len(t, exec.executed, 5)

	// a completed task is not picked up again
	require.NoError(t, r.Run(context.Background(), nil))
	require.Len(t, exec.executed, 5)
}

func TestRunQueryTaskPagination(t *testing.T) {
	task := &loom.BackgroundTask{
		ID:      "task-1",
		Type:    loom.TaskTypeQuery,
		Scope:   loom.TaskScopeKnowledge,
		Actions: []loom.TaskAction{{Type: loom.ActionShare}},
		Filters: &loom.FilterGroup{Mode: loom.FilterModeAnd},
	}
	ds := taskStore(task)
	exec := &fakeExecutor{}

	pages := map[string]*loom.ElementConnection{
		"": {
			Edges: []loom.ElementEdge{
				{Node: &loom.Element{ID: "e1"}, Cursor: "c1"},
				{Node: &loom.Element{ID: "e2"}, Cursor: "c2"},
			},
			PageInfo: loom.PageInfo{EndCursor: "c2", HasNextPage: true, GlobalCount: 3},
		},
		"c2": {
			Edges: []loom.ElementEdge{
				{Node: &loom.Element{ID: "e3"}, Cursor: "c3"},
			},
			PageInfo: loom.PageInfo{EndCursor: "c3", HasNextPage: false, GlobalCount: 3},
		},
	}
	engine := &fakeEngine{paginate: func(req search.Request) (*loom.ElementConnection, error) {
		page, ok := pages[req.After]
		if !ok {
			return nil, fmt.Errorf("unexpected cursor %q", req.After)
		}
		return page, nil
	}}

	r := newTestRunner(ds, engine, exec, WithBatchSize(2))

	require.NoError(t, r.Run(context.Background(), nil))
	require.False(t, task.Completed)
	require.Equal(t, 2, task.TaskProcessedNumber)
	require.Equal(t, "c2", task.TaskPosition)

	require.NoError(t, r.Run(context.Background(), nil))
	require.True(t, task.Completed)
	require.Equal(t, 3, task.TaskProcessedNumber)
	require.Equal(t, "c3", task.TaskPosition)
	require.Len(t, exec.executed, 3)
}

func TestRunElementFailuresAccumulate(t *testing.T) {
	task := listTask("e1", "e2", "e3")
	task.Actions = []loom.TaskAction{{Type: loom.ActionAdd}, {Type: loom.ActionShare}}
	ds := taskStore(task)
	exec := &fakeExecutor{failOn: map[string]error{
		"ADD/e2":   errors.New("conflict"),
		"SHARE/e2": errors.New("not shareable"),
	}}

	r := newTestRunner(ds, nil, exec)
	require.NoError(t, r.Run(context.Background(), nil))

	// the failing element never aborts the task
	require.True(t, task.Completed)
	require.Equal(t, 3, task.TaskProcessedNumber)

	// both action failures of one element aggregate into one task error
	require.Len(t, task.Errors, 1)
	require.Equal(t, "e2", task.Errors[0].ID)
	require.Contains(t, task.Errors[0].Message, "conflict")
	require.Contains(t, task.Errors[0].Message, "not shareable")
}

func TestRunRuleTaskIsNotRunnable(t *testing.T) {
	task := &loom.BackgroundTask{
		ID:   "task-1",
		Type: loom.TaskTypeRule,
	}
	ds := taskStore(task)
	exec := &fakeExecutor{}

	r := newTestRunner(ds, nil, exec)
	require.NoError(t, r.Run(context.Background(), nil))

	require.True(t, task.Completed)
	require.Len(t, task.Errors, 1)
	require.Contains(t, task.Errors[0].Message, "not runnable")
	require.Empty(t, exec.executed)
}

func TestRunStopsWhenLeaseAlreadyLost(t *testing.T) {
	task := listTask("e1")
	ds := taskStore(task)
	exec := &fakeExecutor{}
	lease := newFakeLease()
	close(lease.done)

	r := newTestRunner(ds, nil, exec)
	require.NoError(t, r.Run(context.Background(), lease))

	require.False(t, task.Completed)
	require.Empty(t, exec.executed)
	require.False(t, ds.UpdateBackgroundTaskFuncInvoked)
}

func TestRunExtendFailureStops(t *testing.T) {
	task := listTask("e1")
	ds := taskStore(task)
	lease := newFakeLease()
	lease.extendErr = errors.New("lease lost")

	r := newTestRunner(ds, nil, &fakeExecutor{})
	require.NoError(t, r.Run(context.Background(), lease))

	require.False(t, task.Completed)
	require.False(t, ds.UpdateBackgroundTaskFuncInvoked)
}

func TestRunUpdateFailurePropagates(t *testing.T) {
	task := listTask("e1")
	ds := taskStore(task)
	ds.UpdateBackgroundTaskFunc = func(ctx context.Context, t *loom.BackgroundTask) error {
		return errors.New("write failed")
	}

	r := newTestRunner(ds, nil, &fakeExecutor{})
	require.Error(t, r.Run(context.Background(), nil))
}
