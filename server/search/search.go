// Package search adapts declarative filter criteria and scopes into requests
// for the platform's paginated search engine. The engine itself is an
// external collaborator behind the Client interface; this package owns the
// translation and boundary validation only.
package search

import (
	"context"
	"time"

	"github.com/loomhq/loom/server/contexts/ctxerr"
	"github.com/loomhq/loom/server/loom"
)

// DefaultPageSize bounds a page when the caller does not say otherwise.
const DefaultPageSize = 100

// Target identifies what a request paginates over: an index of graph
// entities, or a storage path listing.
type Target struct {
	Index string
	Path  string
}

// Well-known targets.
var (
	TargetEntities         = Target{Index: "entities"}
	TargetGlobalFiles      = Target{Path: "import/global"}
	TargetPendingWorkbench = Target{Path: "import/pending"}
)

// TargetForRetentionScope maps a retention rule's scope to its fetch target.
// An unknown scope is a configuration error.
func TargetForRetentionScope(scope loom.RetentionScope) (Target, error) {
	switch scope {
	case loom.RetentionScopeKnowledge:
		return TargetEntities, nil
	case loom.RetentionScopeFile:
		return TargetGlobalFiles, nil
	case loom.RetentionScopeWorkbench:
		return TargetPendingWorkbench, nil
	default:
		return Target{}, &loom.UnsupportedScopeError{Scope: string(scope)}
	}
}

// TargetForTaskScope maps a task scope to the search target its work set is
// drawn from. The import scope's fetch path inherently targets only files.
func TargetForTaskScope(scope loom.TaskScope) (Target, error) {
	switch scope {
	case loom.TaskScopeKnowledge, loom.TaskScopeUser, loom.TaskScopeSettings:
		return TargetEntities, nil
	case loom.TaskScopeImport:
		return TargetGlobalFiles, nil
	default:
		return Target{}, &loom.UnsupportedScopeError{Scope: string(scope)}
	}
}

// Request is the uniform query handed to the engine.
type Request struct {
	User    *loom.User
	Target  Target
	Filters *loom.FilterGroup
	First   int
	After   string

	// Before bounds updated_at for index targets; NotModifiedSince bounds the
	// modification time for path targets. The adapter sets the one matching
	// the target kind.
	Before           *time.Time
	NotModifiedSince *time.Time
}

// Client is the external search/index engine.
type Client interface {
	Paginate(ctx context.Context, req Request) (*loom.ElementConnection, error)
}

// PaginateOpts are the caller-facing pagination knobs.
type PaginateOpts struct {
	First  int
	After  string
	Before *time.Time
}

// Adapter is the scope query adapter consumed by the retention executor and
// the task subsystem.
type Adapter struct {
	client Client
}

// NewAdapter returns an Adapter backed by the given engine client.
func NewAdapter(client Client) *Adapter {
	return &Adapter{client: client}
}

// Paginate validates the filter group, builds the engine request for the
// target, and returns one page of elements with its pagination metadata.
func (a *Adapter) Paginate(ctx context.Context, user *loom.User, target Target, filters *loom.FilterGroup, opts PaginateOpts) (*loom.ElementConnection, error) {
	if err := filters.Validate(); err != nil {
		return nil, ctxerr.Wrap(ctx, err, "validate filters")
	}

	first := opts.First
	if first <= 0 {
		first = DefaultPageSize
	}

	req := Request{
		User:    user,
		Target:  target,
		Filters: filters,
		First:   first,
		After:   opts.After,
	}
	if opts.Before != nil {
		if target.Index != "" {
			req.Before = opts.Before
		} else {
			req.NotModifiedSince = opts.Before
		}
	}

	conn, err := a.client.Paginate(ctx, req)
	if err != nil {
		return nil, ctxerr.Wrap(ctx, err, "paginate search")
	}
	return conn, nil
}

// Count returns the global number of elements matching the criteria, without
// materializing a page.
func (a *Adapter) Count(ctx context.Context, user *loom.User, target Target, filters *loom.FilterGroup) (int, error) {
	conn, err := a.Paginate(ctx, user, target, filters, PaginateOpts{First: 1})
	if err != nil {
		return 0, err
	}
	return conn.PageInfo.GlobalCount, nil
}
