// Package worker runs queued background tasks: it drains incomplete task
// records, resolves each task's work set (the explicit id list of a LIST
// task, or a QUERY task's filter snapshot re-evaluated against the store),
// applies the requested actions element by element, and keeps the task's
// progress accounting consistent. Element failures accumulate on the record
// and never abort the task.
package worker

import (
	"context"
	"fmt"

	"github.com/WatchBeam/clock"
	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/go-multierror"
	"github.com/loomhq/loom/server/contexts/ctxerr"
	"github.com/loomhq/loom/server/loom"
	"github.com/loomhq/loom/server/search"
)

const (
	// maxTasksPerRun bounds how many tasks one scheduled run drains.
	maxTasksPerRun = 100

	// defaultTaskBatchSize is how many elements of one task are processed per
	// run; large tasks advance across runs via task_position.
	defaultTaskBatchSize = 100
)

// ActionExecutor applies one action to one element. It is the bulk-operation
// collaborator (knowledge store mutations, sharing, restore) external to this
// subsystem.
type ActionExecutor interface {
	ExecuteAction(ctx context.Context, actor *loom.User, action loom.TaskAction, elementID string) error
}

// Datastore is the narrow persistence seam the runner needs.
type Datastore interface {
	ListIncompleteTasks(ctx context.Context, limit int) ([]*loom.BackgroundTask, error)
	UpdateBackgroundTask(ctx context.Context, task *loom.BackgroundTask) error
}

// LeaseHandle is the part of the scheduler's lease the runner polls.
type LeaseHandle interface {
	Done() <-chan struct{}
	Extend(ctx context.Context) error
}

// Runner executes background tasks. NOT SAFE FOR CONCURRENT USE; mutual
// exclusion across instances comes from the schedule's lock.
type Runner struct {
	ds        Datastore
	adapter   *search.Adapter
	exec      ActionExecutor
	actor     *loom.User
	logger    kitlog.Logger
	clock     clock.Clock
	batchSize int
}

// Option customizes a Runner.
type Option func(*Runner)

// WithClock sets the clock used for progress timestamps.
func WithClock(c clock.Clock) Option {
	return func(r *Runner) { r.clock = c }
}

// WithBatchSize overrides the per-task element budget of one run.
func WithBatchSize(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// NewRunner builds a Runner. actor is the automation principal the actions
// execute as.
func NewRunner(ds Datastore, adapter *search.Adapter, exec ActionExecutor, actor *loom.User, logger kitlog.Logger, opts ...Option) *Runner {
	r := &Runner{
		ds:        ds,
		adapter:   adapter,
		exec:      exec,
		actor:     actor,
		logger:    logger,
		clock:     clock.C,
		batchSize: defaultTaskBatchSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run is the scheduled entrypoint: it processes one batch of each incomplete
// task, oldest first.
func (r *Runner) Run(ctx context.Context, lease LeaseHandle) error {
	var abort <-chan struct{}
	if lease != nil {
		abort = lease.Done()
	}

	tasks, err := r.ds.ListIncompleteTasks(ctx, maxTasksPerRun)
	if err != nil {
		return ctxerr.Wrap(ctx, err, "list incomplete tasks")
	}

	for _, task := range tasks {
		select {
		case <-abort:
			level.Info(r.logger).Log("msg", "lease lost, stopping task processing")
			return nil
		default:
		}
		if lease != nil {
			if err := lease.Extend(ctx); err != nil {
				level.Info(r.logger).Log("msg", "could not extend lease, stopping task processing", "err", err)
				return nil
			}
		}

		log := kitlog.With(r.logger, "task_id", task.ID, "task_type", task.Type)
		level.Debug(log).Log("msg", "processing task")

		if err := r.processTask(ctx, task, abort); err != nil {
			level.Error(log).Log("msg", "process task", "err", err)
			continue
		}
		if err := r.ds.UpdateBackgroundTask(ctx, task); err != nil {
			return ctxerr.Wrapf(ctx, err, "update task %s", task.ID)
		}
	}

	return nil
}

// processTask advances one task by at most one batch, mutating its progress
// fields in place.
func (r *Runner) processTask(ctx context.Context, task *loom.BackgroundTask, abort <-chan struct{}) error {
	now := r.clock.Now().UTC()
	task.LastExecutionDate = &now

	type workItem struct {
		id     string
		cursor string
	}
	var (
		items []workItem
		done  bool
	)

	switch task.Type {
	case loom.TaskTypeList:
		// the id set was baked in at creation; task_processed_number doubles
		// as the offset into it
		offset := task.TaskProcessedNumber
		if offset >= len(task.IDs) {
			task.Completed = true
			return nil
		}
		end := offset + r.batchSize
		if end > len(task.IDs) {
			end = len(task.IDs)
		}
		for _, id := range task.IDs[offset:end] {
			items = append(items, workItem{id: id, cursor: id})
		}
		done = end == len(task.IDs)

	case loom.TaskTypeQuery:
		// the filter snapshot is re-evaluated now, not at creation
		target, err := search.TargetForTaskScope(task.Scope)
		if err != nil {
			return err
		}
		conn, err := r.adapter.Paginate(ctx, r.actor, target, task.Filters, search.PaginateOpts{
			First: r.batchSize,
			After: task.TaskPosition,
		})
		if err != nil {
			return ctxerr.Wrap(ctx, err, "resolve query task work set")
		}
		for _, edge := range conn.Edges {
			if edge.Node != nil {
				items = append(items, workItem{id: edge.Node.ID, cursor: edge.Cursor})
			}
		}
		done = !conn.PageInfo.HasNextPage

	default:
		// RULE tasks are driven by the rule engine, not this runner
		task.Completed = true
		task.Errors = append(task.Errors, loom.TaskError{
			ID:        task.ID,
			Message:   fmt.Sprintf("task type %q is not runnable", task.Type),
			Timestamp: now,
		})
		return nil
	}

	for _, item := range items {
		select {
		case <-abort:
			// progress so far is kept; the next run resumes from task_position
			return nil
		default:
		}

		if err := r.executeActions(ctx, task, item.id); err != nil {
			task.Errors = append(task.Errors, loom.TaskError{
				ID:        item.id,
				Message:   err.Error(),
				Timestamp: r.clock.Now().UTC(),
			})
			level.Error(r.logger).Log("msg", "task element failed, continuing", "task_id", task.ID, "element_id", item.id, "err", err)
		}
		task.TaskProcessedNumber++
		task.TaskPosition = item.cursor
	}

	if done {
		task.Completed = true
	}
	return nil
}

// executeActions applies every action of the task to one element,
// aggregating failures so one element yields at most one task error.
func (r *Runner) executeActions(ctx context.Context, task *loom.BackgroundTask, elementID string) error {
	var result *multierror.Error
	for _, action := range task.Actions {
		if err := r.exec.ExecuteAction(ctx, r.actor, action, elementID); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", action.Type, err))
		}
	}
	return result.ErrorOrNil()
}
