package mysql

import (
	"context"
	"encoding/json"
	"time"

	"github.com/loomhq/loom/server/contexts/ctxerr"
	"github.com/loomhq/loom/server/loom"
)

// retentionRuleRow is the table projection of a rule; the filter group is a
// JSON column.
type retentionRuleRow struct {
	ID                string          `db:"id"`
	Name              string          `db:"name"`
	Scope             string          `db:"scope"`
	MaxRetention      int             `db:"max_retention"`
	RetentionUnit     string          `db:"retention_unit"`
	Filters           json.RawMessage `db:"filters"`
	LastExecutionDate *time.Time      `db:"last_execution_date"`
	RemainingCount    int             `db:"remaining_count"`
	LastDeletedCount  int             `db:"last_deleted_count"`
}

// ListRetentionRules returns every configured retention rule, oldest name
// first for stable execution order.
func (d *Datastore) ListRetentionRules(ctx context.Context) ([]*loom.RetentionRule, error) {
	query, args, err := sq.
		Select("id", "name", "scope", "max_retention", "retention_unit", "filters",
			"last_execution_date", "remaining_count", "last_deleted_count").
		From("retention_rules").
		OrderBy("name ASC").
		ToSql()
	if err != nil {
		return nil, ctxerr.Wrap(ctx, err, "build list retention rules")
	}

	var rows []retentionRuleRow
	if err := d.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, ctxerr.Wrap(ctx, err, "list retention rules")
	}

	rules := make([]*loom.RetentionRule, 0, len(rows))
	for _, row := range rows {
		filters, err := loom.ParseFilterGroup(row.Filters)
		if err != nil {
			return nil, ctxerr.Wrapf(ctx, err, "parse filters of retention rule %s", row.ID)
		}
		rules = append(rules, &loom.RetentionRule{
			ID:                row.ID,
			Name:              row.Name,
			Scope:             loom.RetentionScope(row.Scope),
			MaxRetention:      row.MaxRetention,
			RetentionUnit:     loom.RetentionUnit(row.RetentionUnit),
			Filters:           filters,
			LastExecutionDate: row.LastExecutionDate,
			RemainingCount:    row.RemainingCount,
			LastDeletedCount:  row.LastDeletedCount,
		})
	}
	return rules, nil
}

// PatchRetentionRule persists the execution metadata of one rule.
func (d *Datastore) PatchRetentionRule(ctx context.Context, id string, patch loom.RetentionRulePatch) error {
	query, args, err := sq.
		Update("retention_rules").
		Set("last_execution_date", patch.LastExecutionDate).
		Set("remaining_count", patch.RemainingCount).
		Set("last_deleted_count", patch.LastDeletedCount).
		Where("id = ?", id).
		ToSql()
	if err != nil {
		return ctxerr.Wrap(ctx, err, "build patch retention rule")
	}

	updated, err := d.execOne(ctx, query, args...)
	if err != nil {
		return ctxerr.Wrap(ctx, err, "patch retention rule")
	}
	if !updated {
		// 0 rows can mean an identical patch; only a missing rule is an error
		var exists bool
		if err := d.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM retention_rules WHERE id = ?)`, id); err != nil {
			return ctxerr.Wrap(ctx, err, "check retention rule existence")
		}
		if !exists {
			return ctxerr.Wrap(ctx, loom.NewNotFoundError(loom.RetentionRuleEntityType, id), "patch retention rule")
		}
	}
	return nil
}
