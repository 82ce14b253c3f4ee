package loom

import (
	"fmt"
	"time"
)

// RetentionScope identifies the category of data a retention rule purges.
// The values are part of the stored record contract and must not change.
type RetentionScope string

const (
	RetentionScopeKnowledge RetentionScope = "knowledge"
	RetentionScopeFile      RetentionScope = "file"
	RetentionScopeWorkbench RetentionScope = "workbench"
)

// RetentionUnit is the unit applied to a rule's max_retention value.
type RetentionUnit string

const (
	RetentionUnitMinutes RetentionUnit = "minutes"
	RetentionUnitHours   RetentionUnit = "hours"
	RetentionUnitDays    RetentionUnit = "days"
	RetentionUnitWeeks   RetentionUnit = "weeks"
	RetentionUnitMonths  RetentionUnit = "months"
	RetentionUnitYears   RetentionUnit = "years"
)

// RetentionRule is an administrator-defined purge policy. The executor is the
// only writer of the execution metadata fields (last_execution_date,
// remaining_count, last_deleted_count); everything else is fixed at creation
// by the rule-configuration store.
type RetentionRule struct {
	ID                string         `json:"id" db:"id"`
	Name              string         `json:"name" db:"name"`
	Scope             RetentionScope `json:"scope" db:"scope"`
	MaxRetention      int            `json:"max_retention" db:"max_retention"`
	RetentionUnit     RetentionUnit  `json:"retention_unit" db:"retention_unit"`
	Filters           *FilterGroup   `json:"filters,omitempty" db:"filters"`
	LastExecutionDate *time.Time     `json:"last_execution_date" db:"last_execution_date"`
	RemainingCount    int            `json:"remaining_count" db:"remaining_count"`
	LastDeletedCount  int            `json:"last_deleted_count" db:"last_deleted_count"`
}

// RetentionRuleEntityType is the entity_type under which rules are persisted.
const RetentionRuleEntityType = "RetentionRule"

// Cutoff returns the timestamp before which elements matched by the rule are
// eligible for deletion, i.e. now minus the rule's retention window.
func (r *RetentionRule) Cutoff(now time.Time) (time.Time, error) {
	n := r.MaxRetention
	switch r.RetentionUnit {
	case RetentionUnitMinutes:
		return now.Add(-time.Duration(n) * time.Minute), nil
	case RetentionUnitHours:
		return now.Add(-time.Duration(n) * time.Hour), nil
	case RetentionUnitDays:
		return now.AddDate(0, 0, -n), nil
	case RetentionUnitWeeks:
		return now.AddDate(0, 0, -7*n), nil
	case RetentionUnitMonths:
		return now.AddDate(0, -n, 0), nil
	case RetentionUnitYears:
		return now.AddDate(-n, 0, 0), nil
	default:
		return time.Time{}, fmt.Errorf("unknown retention unit: %q", r.RetentionUnit)
	}
}

// RetentionRulePatch carries the execution metadata persisted on a rule after
// each run.
type RetentionRulePatch struct {
	LastExecutionDate time.Time `json:"last_execution_date" db:"last_execution_date"`
	RemainingCount    int       `json:"remaining_count" db:"remaining_count"`
	LastDeletedCount  int       `json:"last_deleted_count" db:"last_deleted_count"`
}
