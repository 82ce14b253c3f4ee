// Package retention implements the retention manager's rule executor: it
// turns each administrator-defined rule into one batch of deletions per
// cycle, with best-effort per-element semantics and execution metadata
// persisted back on the rule.
package retention

import (
	"context"

	"github.com/WatchBeam/clock"
	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/loomhq/loom/server/contexts/ctxerr"
	"github.com/loomhq/loom/server/loom"
	"github.com/loomhq/loom/server/search"
)

// DefaultBatchSize is the per-rule element budget for one cycle.
const DefaultBatchSize = 100

// KnowledgeDeleter force-deletes graph entities by internal id, cascading as
// the store defines.
type KnowledgeDeleter interface {
	DeleteByInternalID(ctx context.Context, actor *loom.User, internalID, entityType string, forceDelete bool) error
}

// FileDeleter deletes stored files (and pending workbenches) by id.
type FileDeleter interface {
	DeleteFile(ctx context.Context, actor *loom.User, id string) error
}

// Datastore is the narrow persistence seam the executor needs.
type Datastore interface {
	ListRetentionRules(ctx context.Context) ([]*loom.RetentionRule, error)
	PatchRetentionRule(ctx context.Context, id string, patch loom.RetentionRulePatch) error
}

// LeaseHandle is the part of the scheduler's lease the executor polls and
// renews. A nil handle disables both.
type LeaseHandle interface {
	Done() <-chan struct{}
	Extend(ctx context.Context) error
}

// ElementResult is the outcome of one element deletion attempt.
type ElementResult struct {
	ID  string
	Err error
}

// RuleStats summarizes one rule's batch.
type RuleStats struct {
	RuleID         string
	RuleName       string
	RemainingCount int // total matches before this batch's deletions
	DeletedCount   int
	Results        []ElementResult
	Aborted        bool
}

// Executor pages through each rule's matching elements and deletes them via
// the scope-specific deletion path.
type Executor struct {
	ds        Datastore
	adapter   *search.Adapter
	knowledge KnowledgeDeleter
	files     FileDeleter
	actor     *loom.User
	logger    kitlog.Logger
	clock     clock.Clock
	batchSize int
}

// Option customizes an Executor.
type Option func(*Executor)

// WithLogger sets the executor's logger.
func WithLogger(l kitlog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithClock sets the clock used to compute age cutoffs.
func WithClock(c clock.Clock) Option {
	return func(e *Executor) { e.clock = c }
}

// WithBatchSize overrides the per-rule element budget.
func WithBatchSize(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// NewExecutor builds an Executor. actor is the automation principal stamped
// on deletions.
func NewExecutor(ds Datastore, adapter *search.Adapter, knowledge KnowledgeDeleter, files FileDeleter, actor *loom.User, opts ...Option) *Executor {
	e := &Executor{
		ds:        ds,
		adapter:   adapter,
		knowledge: knowledge,
		files:     files,
		actor:     actor,
		logger:    kitlog.NewNopLogger(),
		clock:     clock.C,
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run is the scheduled entrypoint: it loads the configured rules and executes
// them under the given lease.
func (e *Executor) Run(ctx context.Context, lease LeaseHandle) error {
	rules, err := e.ds.ListRetentionRules(ctx)
	if err != nil {
		return ctxerr.Wrap(ctx, err, "list retention rules")
	}
	_, err = e.ExecuteRules(ctx, rules, lease)
	return err
}

// ExecuteRules processes the rules strictly sequentially. Rule N+1 does not
// start before rule N's batch and metadata patch complete.
//
// Failure semantics: an unsupported scope or invalid unit is a configuration
// error fatal to that rule only; it is logged and the loop moves on. A fetch
// or patch failure propagates and aborts the remaining rules for this cycle;
// the next scheduled cycle retries from scratch. The lease's abort signal is
// checked before each rule (and between elements) and stops processing
// without error: losing the lease is expected operational behavior, not a
// fault.
func (e *Executor) ExecuteRules(ctx context.Context, rules []*loom.RetentionRule, lease LeaseHandle) ([]RuleStats, error) {
	var abort <-chan struct{}
	if lease != nil {
		abort = lease.Done()
	}

	var all []RuleStats
	for _, rule := range rules {
		select {
		case <-abort:
			level.Info(e.logger).Log("msg", "lease lost, stopping rule processing", "rule_id", rule.ID)
			return all, nil
		default:
		}

		if lease != nil {
			// renew before each rule so a long rule set does not outlive the
			// default lease
			if err := lease.Extend(ctx); err != nil {
				level.Info(e.logger).Log("msg", "could not extend lease, stopping rule processing", "rule_id", rule.ID, "err", err)
				return all, nil
			}
		}

		stats, err := e.executeRule(ctx, rule, abort)
		if err != nil {
			if loom.IsUnsupportedScope(err) || loom.IsInvalidArgument(err) {
				level.Error(e.logger).Log("msg", "retention rule misconfigured, skipping", "rule_id", rule.ID, "rule", rule.Name, "err", err)
				continue
			}
			return all, ctxerr.Wrapf(ctx, err, "execute retention rule %s", rule.ID)
		}
		all = append(all, stats)
		rulesProcessed.WithLabelValues(string(rule.Scope)).Inc()

		if stats.Aborted {
			// exclusivity may be gone; leave the metadata patch to the next
			// cycle's holder
			return all, nil
		}

		patch := loom.RetentionRulePatch{
			LastExecutionDate: e.clock.Now(),
			RemainingCount:    stats.RemainingCount,
			LastDeletedCount:  stats.DeletedCount,
		}
		if err := e.ds.PatchRetentionRule(ctx, rule.ID, patch); err != nil {
			return all, ctxerr.Wrapf(ctx, err, "patch retention rule %s", rule.ID)
		}

		level.Debug(e.logger).Log(
			"msg", "retention rule executed",
			"rule_id", rule.ID,
			"rule", rule.Name,
			"deleted", stats.DeletedCount,
			"remaining", stats.RemainingCount,
		)
	}
	return all, nil
}

func (e *Executor) executeRule(ctx context.Context, rule *loom.RetentionRule, abort <-chan struct{}) (RuleStats, error) {
	stats := RuleStats{RuleID: rule.ID, RuleName: rule.Name}

	now := e.clock.Now()
	before, err := rule.Cutoff(now)
	if err != nil {
		return stats, loom.NewInvalidArgumentError("retention_unit", err.Error())
	}

	target, err := search.TargetForRetentionScope(rule.Scope)
	if err != nil {
		return stats, err
	}

	conn, err := e.adapter.Paginate(ctx, e.actor, target, rule.Filters, search.PaginateOpts{
		First:  e.batchSize,
		Before: &before,
	})
	if err != nil {
		return stats, ctxerr.Wrap(ctx, err, "fetch retention candidates")
	}
	stats.RemainingCount = conn.PageInfo.GlobalCount

	protectInFlight := rule.Scope == loom.RetentionScopeKnowledge || rule.Scope == loom.RetentionScopeFile

	for _, edge := range conn.Edges {
		el := edge.Node
		if el == nil {
			continue
		}
		if protectInFlight && el.InFlight() {
			// the pending operation protects its target; the element comes
			// back in a later window once it completes
			continue
		}

		select {
		case <-abort:
			stats.Aborted = true
			return stats, nil
		default:
		}

		if err := e.deleteElement(ctx, rule.Scope, el); err != nil {
			if loom.IsUnsupportedScope(err) {
				return stats, err
			}
			level.Error(e.logger).Log(
				"msg", "could not delete element, continuing",
				"rule_id", rule.ID,
				"rule", rule.Name,
				"element_id", el.ID,
				"err", err,
			)
			stats.Results = append(stats.Results, ElementResult{ID: el.ID, Err: err})
			elementErrors.WithLabelValues(string(rule.Scope)).Inc()
			continue
		}
		stats.Results = append(stats.Results, ElementResult{ID: el.ID})
		stats.DeletedCount++
		elementsDeleted.WithLabelValues(string(rule.Scope)).Inc()
	}

	return stats, nil
}

func (e *Executor) deleteElement(ctx context.Context, scope loom.RetentionScope, el *loom.Element) error {
	switch scope {
	case loom.RetentionScopeKnowledge:
		return e.knowledge.DeleteByInternalID(ctx, e.actor, el.InternalID, el.EntityType, true)
	case loom.RetentionScopeFile, loom.RetentionScopeWorkbench:
		return e.files.DeleteFile(ctx, e.actor, el.ID)
	default:
		return &loom.UnsupportedScopeError{Scope: string(scope)}
	}
}
