package loom

import (
	"time"
)

// TaskType discriminates how a background task's work set is defined.
//
// A LIST task carries a concrete, finite set of ids baked in at creation. A
// QUERY task carries a filter snapshot instead of live ids; the runner
// re-evaluates the snapshot at execution time. RULE tasks are created by
// system rules rather than by a user request.
type TaskType string

const (
	TaskTypeQuery TaskType = "QUERY"
	TaskTypeRule  TaskType = "RULE"
	TaskTypeList  TaskType = "LIST"
)

// TaskScope is the category of targets a user-requested task operates on.
type TaskScope string

const (
	TaskScopeSettings  TaskScope = "SETTINGS"
	TaskScopeKnowledge TaskScope = "KNOWLEDGE"
	TaskScopeUser      TaskScope = "USER"
	TaskScopeImport    TaskScope = "IMPORT"
)

// ActionType is a named bulk operation applied to each element of a task's
// work set.
type ActionType string

const (
	ActionAdd            ActionType = "ADD"
	ActionRemove         ActionType = "REMOVE"
	ActionReplace        ActionType = "REPLACE"
	ActionDelete         ActionType = "DELETE"
	ActionCompleteDelete ActionType = "COMPLETE_DELETE"
	ActionRestore        ActionType = "RESTORE"
	ActionShare          ActionType = "SHARE"
	ActionUnshare        ActionType = "UNSHARE"
)

// IsDelete reports whether the action removes its target (soft or complete).
func (a ActionType) IsDelete() bool {
	return a == ActionDelete || a == ActionCompleteDelete
}

// RequiresDeleteCapability reports whether requesting the action demands the
// delete-knowledge capability. Restore is included: moving an element out of
// the trash manipulates deleted data.
func (a ActionType) RequiresDeleteCapability() bool {
	return a == ActionDelete || a == ActionCompleteDelete || a == ActionRestore
}

// TaskAction is one requested operation, with optional operation-specific
// context (e.g. the value set for ADD/REPLACE, the target organization for
// SHARE).
type TaskAction struct {
	Type    ActionType             `json:"type"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// TaskError records one element-level failure encountered by the runner.
// Failures never abort the task; they accumulate here.
type TaskError struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// AdminAccessRight marks the task creator's member entry.
const AdminAccessRight = "admin"

// MemberAccess grants a principal an access right on the task record.
type MemberAccess struct {
	ID          string `json:"id"`
	AccessRight string `json:"access_right"`
}

// BackgroundTaskEntityType is the entity_type under which tasks are persisted.
const BackgroundTaskEntityType = "BackgroundTask"

// BackgroundTask is the persisted record of a requested bulk operation.
//
// The record is created once by the task factory; only the progress fields
// (completed, last_execution_date, task_position, task_processed_number,
// errors) are mutated afterwards, by the runner. authorized_members and
// authorized_authorities are computed once at creation from the scope and the
// creating principal and never recomputed. Field names are part of the stored
// contract.
type BackgroundTask struct {
	ID                    string         `json:"id" db:"id"`
	InternalID            string         `json:"internal_id" db:"internal_id"`
	StandardID            string         `json:"standard_id" db:"standard_id"`
	EntityType            string         `json:"entity_type" db:"entity_type"`
	InitiatorID           string         `json:"initiator_id" db:"initiator_id"`
	CreatedAt             time.Time      `json:"created_at" db:"created_at"`
	Completed             bool           `json:"completed" db:"completed"`
	Type                  TaskType       `json:"type" db:"type"`
	LastExecutionDate     *time.Time     `json:"last_execution_date" db:"last_execution_date"`
	TaskPosition          string         `json:"task_position" db:"task_position"`
	TaskProcessedNumber   int            `json:"task_processed_number" db:"task_processed_number"`
	TaskExpectedNumber    int            `json:"task_expected_number" db:"task_expected_number"`
	Errors                []TaskError    `json:"errors" db:"errors"`
	Scope                 TaskScope      `json:"scope,omitempty" db:"scope"`
	AuthorizedMembers     []MemberAccess `json:"authorized_members,omitempty" db:"authorized_members"`
	AuthorizedAuthorities []string       `json:"authorized_authorities,omitempty" db:"authorized_authorities"`

	// Work definition. Actions apply to both task types; IDs is set for LIST
	// tasks, Filters for QUERY tasks.
	Actions []TaskAction `json:"actions,omitempty" db:"actions"`
	IDs     []string     `json:"ids,omitempty" db:"ids"`
	Filters *FilterGroup `json:"filters,omitempty" db:"filters"`
}

// TaskInput is the request payload for creating a user-requested task.
// Exactly one of IDs (LIST) or Filters (QUERY) is used, per task type.
type TaskInput struct {
	Scope   TaskScope    `json:"scope"`
	Actions []TaskAction `json:"actions"`
	IDs     []string     `json:"ids,omitempty"`
	Filters *FilterGroup `json:"filters,omitempty"`
}

// HasDeleteAction reports whether any requested action needs the
// delete-knowledge capability.
func (in TaskInput) HasDeleteAction() bool {
	for _, a := range in.Actions {
		if a.Type.RequiresDeleteCapability() {
			return true
		}
	}
	return false
}

// AllDeleteActions reports whether every requested action is a deletion.
func (in TaskInput) AllDeleteActions() bool {
	if len(in.Actions) == 0 {
		return false
	}
	for _, a := range in.Actions {
		if !a.Type.IsDelete() {
			return false
		}
	}
	return true
}
