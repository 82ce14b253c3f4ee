package mysql

import (
	"context"
	"encoding/json"
	"time"

	"github.com/loomhq/loom/server/contexts/ctxerr"
	"github.com/loomhq/loom/server/loom"
)

// backgroundTaskRow is the table projection of a task. The work definition
// and authorization metadata are JSON columns: they are opaque to SQL and
// read back whole.
type backgroundTaskRow struct {
	ID                    string          `db:"id"`
	InternalID            string          `db:"internal_id"`
	StandardID            string          `db:"standard_id"`
	EntityType            string          `db:"entity_type"`
	InitiatorID           string          `db:"initiator_id"`
	CreatedAt             time.Time       `db:"created_at"`
	Completed             bool            `db:"completed"`
	Type                  string          `db:"type"`
	LastExecutionDate     *time.Time      `db:"last_execution_date"`
	TaskPosition          string          `db:"task_position"`
	TaskProcessedNumber   int             `db:"task_processed_number"`
	TaskExpectedNumber    int             `db:"task_expected_number"`
	Errors                json.RawMessage `db:"errors"`
	Scope                 string          `db:"scope"`
	AuthorizedMembers     json.RawMessage `db:"authorized_members"`
	AuthorizedAuthorities json.RawMessage `db:"authorized_authorities"`
	Actions               json.RawMessage `db:"actions"`
	IDs                   json.RawMessage `db:"ids"`
	Filters               json.RawMessage `db:"filters"`
}

func marshalColumn(ctx context.Context, name string, v interface{}) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, ctxerr.Wrapf(ctx, err, "marshal %s", name)
	}
	return raw, nil
}

// NewBackgroundTask persists a freshly created task record.
func (d *Datastore) NewBackgroundTask(ctx context.Context, task *loom.BackgroundTask) (*loom.BackgroundTask, error) {
	errsJSON, err := marshalColumn(ctx, "errors", task.Errors)
	if err != nil {
		return nil, err
	}
	membersJSON, err := marshalColumn(ctx, "authorized_members", task.AuthorizedMembers)
	if err != nil {
		return nil, err
	}
	authoritiesJSON, err := marshalColumn(ctx, "authorized_authorities", task.AuthorizedAuthorities)
	if err != nil {
		return nil, err
	}
	actionsJSON, err := marshalColumn(ctx, "actions", task.Actions)
	if err != nil {
		return nil, err
	}
	idsJSON, err := marshalColumn(ctx, "ids", task.IDs)
	if err != nil {
		return nil, err
	}
	filtersJSON, err := marshalColumn(ctx, "filters", task.Filters)
	if err != nil {
		return nil, err
	}

	query, args, err := sq.
		Insert("background_tasks").
		Columns("id", "internal_id", "standard_id", "entity_type", "initiator_id",
			"created_at", "completed", "type", "last_execution_date", "task_position",
			"task_processed_number", "task_expected_number", "errors", "scope",
			"authorized_members", "authorized_authorities", "actions", "ids", "filters").
		Values(task.ID, task.InternalID, task.StandardID, task.EntityType, task.InitiatorID,
			task.CreatedAt, task.Completed, string(task.Type), task.LastExecutionDate, task.TaskPosition,
			task.TaskProcessedNumber, task.TaskExpectedNumber, errsJSON, string(task.Scope),
			membersJSON, authoritiesJSON, actionsJSON, idsJSON, filtersJSON).
		ToSql()
	if err != nil {
		return nil, ctxerr.Wrap(ctx, err, "build insert background task")
	}

	if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
		return nil, ctxerr.Wrap(ctx, err, "insert background task")
	}
	return task, nil
}

// UpdateBackgroundTask persists the runner's progress on a task.
func (d *Datastore) UpdateBackgroundTask(ctx context.Context, task *loom.BackgroundTask) error {
	errsJSON, err := marshalColumn(ctx, "errors", task.Errors)
	if err != nil {
		return err
	}

	query, args, err := sq.
		Update("background_tasks").
		Set("completed", task.Completed).
		Set("last_execution_date", task.LastExecutionDate).
		Set("task_position", task.TaskPosition).
		Set("task_processed_number", task.TaskProcessedNumber).
		Set("errors", errsJSON).
		Where("id = ?", task.ID).
		ToSql()
	if err != nil {
		return ctxerr.Wrap(ctx, err, "build update background task")
	}

	if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
		return ctxerr.Wrap(ctx, err, "update background task")
	}
	return nil
}

// ListIncompleteTasks returns up to limit tasks not yet completed, oldest
// first.
func (d *Datastore) ListIncompleteTasks(ctx context.Context, limit int) ([]*loom.BackgroundTask, error) {
	query, args, err := sq.
		Select("id", "internal_id", "standard_id", "entity_type", "initiator_id",
			"created_at", "completed", "type", "last_execution_date", "task_position",
			"task_processed_number", "task_expected_number", "errors", "scope",
			"authorized_members", "authorized_authorities", "actions", "ids", "filters").
		From("background_tasks").
		Where("completed = ?", false).
		OrderBy("created_at ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, ctxerr.Wrap(ctx, err, "build list incomplete tasks")
	}

	var rows []backgroundTaskRow
	if err := d.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, ctxerr.Wrap(ctx, err, "list incomplete tasks")
	}

	tasks := make([]*loom.BackgroundTask, 0, len(rows))
	for _, row := range rows {
		task, err := row.toTask(ctx)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (row *backgroundTaskRow) toTask(ctx context.Context) (*loom.BackgroundTask, error) {
	task := &loom.BackgroundTask{
		ID:                  row.ID,
		InternalID:          row.InternalID,
		StandardID:          row.StandardID,
		EntityType:          row.EntityType,
		InitiatorID:         row.InitiatorID,
		CreatedAt:           row.CreatedAt,
		Completed:           row.Completed,
		Type:                loom.TaskType(row.Type),
		LastExecutionDate:   row.LastExecutionDate,
		TaskPosition:        row.TaskPosition,
		TaskProcessedNumber: row.TaskProcessedNumber,
		TaskExpectedNumber:  row.TaskExpectedNumber,
		Scope:               loom.TaskScope(row.Scope),
	}

	unmarshal := func(name string, raw json.RawMessage, dst interface{}) error {
		if len(raw) == 0 {
			return nil
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return ctxerr.Wrapf(ctx, err, "unmarshal %s of task %s", name, row.ID)
		}
		return nil
	}

	if err := unmarshal("errors", row.Errors, &task.Errors); err != nil {
		return nil, err
	}
	if err := unmarshal("authorized_members", row.AuthorizedMembers, &task.AuthorizedMembers); err != nil {
		return nil, err
	}
	if err := unmarshal("authorized_authorities", row.AuthorizedAuthorities, &task.AuthorizedAuthorities); err != nil {
		return nil, err
	}
	if err := unmarshal("actions", row.Actions, &task.Actions); err != nil {
		return nil, err
	}
	if err := unmarshal("ids", row.IDs, &task.IDs); err != nil {
		return nil, err
	}
	if err := unmarshal("filters", row.Filters, &task.Filters); err != nil {
		return nil, err
	}
	return task, nil
}
