package search

import (
	"context"
	"testing"
	"time"

	"github.com/loomhq/loom/server/loom"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	requests []Request
	conn     *loom.ElementConnection
}

func (f *fakeClient) Paginate(ctx context.Context, req Request) (*loom.ElementConnection, error) {
	f.requests = append(f.requests, req)
	return f.conn, nil
}

func TestTargetForRetentionScope(t *testing.T) {
	target, err := TargetForRetentionScope(loom.RetentionScopeKnowledge)
	require.NoError(t, err)
	require.Equal(t, TargetEntities, target)

	target, err = TargetForRetentionScope(loom.RetentionScopeFile)
	require.NoError(t, err)
	require.Equal(t, TargetGlobalFiles, target)

	target, err = TargetForRetentionScope(loom.RetentionScopeWorkbench)
	require.NoError(t, err)
	require.Equal(t, TargetPendingWorkbench, target)

	_, err = TargetForRetentionScope("unknown")
	require.True(t, loom.IsUnsupportedScope(err))
}

func TestTargetForTaskScope(t *testing.T) {
	for _, scope := range []loom.TaskScope{loom.TaskScopeKnowledge, loom.TaskScopeUser, loom.TaskScopeSettings} {
		target, err := TargetForTaskScope(scope)
		require.NoError(t, err)
		require.Equal(t, TargetEntities, target)
	}

	target, err := TargetForTaskScope(loom.TaskScopeImport)
	require.NoError(t, err)
	require.Equal(t, TargetGlobalFiles, target)

	_, err = TargetForTaskScope("ELSEWHERE")
	require.True(t, loom.IsUnsupportedScope(err))
}

func TestAdapterPaginate(t *testing.T) {
	client := &fakeClient{conn: &loom.ElementConnection{}}
	a := NewAdapter(client)
	user := &loom.User{ID: "u1"}
	before := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := a.Paginate(context.Background(), user, TargetEntities, nil, PaginateOpts{Before: &before})
	require.NoError(t, err)

	// defaults and index-target cutoff routing
	req := client.requests[0]
	require.Equal(t, DefaultPageSize, req.First)
	require.Equal(t, user, req.User)
	require.NotNil(t, req.Before)
	require.Equal(t, before, *req.Before)
	require.Nil(t, req.NotModifiedSince)

	// path targets bound the modification time instead
	_, err = a.Paginate(context.Background(), user, TargetGlobalFiles, nil, PaginateOpts{First: 25, Before: &before})
	require.NoError(t, err)
	req = client.requests[1]
	require.Equal(t, 25, req.First)
	require.Nil(t, req.Before)
	require.NotNil(t, req.NotModifiedSince)
	require.Equal(t, before, *req.NotModifiedSince)
}

func TestAdapterPaginateInvalidFilters(t *testing.T) {
	client := &fakeClient{conn: &loom.ElementConnection{}}
	a := NewAdapter(client)

	filters := &loom.FilterGroup{Mode: "xor"}
	_, err := a.Paginate(context.Background(), nil, TargetEntities, filters, PaginateOpts{})
	require.True(t, loom.IsInvalidArgument(err))
	require.Empty(t, client.requests)
}

func TestAdapterCount(t *testing.T) {
	client := &fakeClient{conn: &loom.ElementConnection{
		PageInfo: loom.PageInfo{GlobalCount: 1234},
	}}
	a := NewAdapter(client)

	count, err := a.Count(context.Background(), nil, TargetEntities, nil)
	require.NoError(t, err)
	require.Equal(t, 1234, count)
	require.Equal(t, 1, client.requests[0].First)
}
