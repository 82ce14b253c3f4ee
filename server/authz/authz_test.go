package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/loomhq/loom/server/loom"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	objects       map[string]*loom.StoredObject
	notifications map[string]*loom.Notification
	err           error
}

func (r *fakeResolver) ResolveObject(ctx context.Context, id string) (*loom.StoredObject, error) {
	if r.err != nil {
		return nil, r.err
	}
	obj, ok := r.objects[id]
	if !ok {
		return nil, loom.NewNotFoundError("Object", id)
	}
	return obj, nil
}

func (r *fakeResolver) ResolveNotification(ctx context.Context, id string) (*loom.Notification, error) {
	if r.err != nil {
		return nil, r.err
	}
	notif, ok := r.notifications[id]
	if !ok {
		return nil, loom.NewNotFoundError(loom.NotificationType, id)
	}
	return notif, nil
}

func userWith(caps ...string) *loom.User {
	return &loom.User{ID: "u1", Name: "alice", Capabilities: caps}
}

func actions(types ...loom.ActionType) []loom.TaskAction {
	var out []loom.TaskAction
	for _, t := range types {
		out = append(out, loom.TaskAction{Type: t})
	}
	return out
}

func entityTypeFilter(types ...string) *loom.FilterGroup {
	return &loom.FilterGroup{
		Mode:    loom.FilterModeAnd,
		Filters: []loom.Filter{{Key: loom.FilterKeyEntityType, Operator: loom.FilterOpEq, Values: types}},
	}
}

func TestCheckActionValidityUnknownScope(t *testing.T) {
	g := NewGate(&fakeResolver{})
	err := g.CheckActionValidity(context.Background(), userWith(loom.CapabilityBypass), loom.TaskInput{}, "ELSEWHERE", loom.TaskTypeQuery)

	var unsupported *Unsupported
	require.ErrorAs(t, err, &unsupported)
	require.Equal(t, 422, unsupported.StatusCode())
}

func TestCheckSettingsScope(t *testing.T) {
	g := NewGate(&fakeResolver{})
	input := loom.TaskInput{Scope: loom.TaskScopeSettings, Actions: actions(loom.ActionAdd)}

	err := g.CheckActionValidity(context.Background(), userWith(), input, loom.TaskScopeSettings, loom.TaskTypeQuery)
	var forbidden *Forbidden
	require.ErrorAs(t, err, &forbidden)
	require.Equal(t, ForbiddenErrorMessage, forbidden.Error())

	err = g.CheckActionValidity(context.Background(), userWith(loom.CapabilityManageSettings), input, loom.TaskScopeSettings, loom.TaskTypeQuery)
	require.NoError(t, err)
}

func TestCheckKnowledgeScopeCapabilities(t *testing.T) {
	g := NewGate(&fakeResolver{})

	query := loom.TaskInput{
		Scope:   loom.TaskScopeKnowledge,
		Actions: actions(loom.ActionAdd),
		Filters: entityTypeFilter("Report"),
	}

	// modify-knowledge alone covers non-delete actions
	err := g.CheckActionValidity(context.Background(), userWith(loom.CapabilityModifyKnowledge), query, loom.TaskScopeKnowledge, loom.TaskTypeQuery)
	require.NoError(t, err)

	err = g.CheckActionValidity(context.Background(), userWith(), query, loom.TaskScopeKnowledge, loom.TaskTypeQuery)
	var forbidden *Forbidden
	require.ErrorAs(t, err, &forbidden)

	// delete, complete delete and restore all additionally require the
	// delete-knowledge capability
	for _, at := range []loom.ActionType{loom.ActionDelete, loom.ActionCompleteDelete, loom.ActionRestore} {
		withDelete := query
		withDelete.Actions = actions(at)
		err = g.CheckActionValidity(context.Background(), userWith(loom.CapabilityModifyKnowledge), withDelete, loom.TaskScopeKnowledge, loom.TaskTypeQuery)
		require.ErrorAs(t, err, &forbidden, string(at))

		err = g.CheckActionValidity(context.Background(), userWith(loom.CapabilityModifyKnowledge, loom.CapabilityDeleteKnowledge), withDelete, loom.TaskScopeKnowledge, loom.TaskTypeQuery)
		require.NoError(t, err, string(at))
	}
}

func TestCheckKnowledgeScopeQueryTargets(t *testing.T) {
	g := NewGate(&fakeResolver{})
	user := userWith(loom.CapabilityModifyKnowledge)

	for _, tc := range []struct {
		name    string
		filters *loom.FilterGroup
		allowed bool
	}{
		{"knowledge types", entityTypeFilter("Report", "Indicator"), true},
		{"abstract knowledge type", entityTypeFilter(loom.AbstractKnowledge), true},
		{"no entity_type filter matches everything", nil, true},
		{"vocabulary always denied", entityTypeFilter("Vocabulary"), false},
		{"vocabulary mixed in", entityTypeFilter("Report", "Vocabulary"), false},
		{"trash entries alone", entityTypeFilter(loom.DeleteOperationType), true},
		{"knowledge and trash mixed", entityTypeFilter("Report", loom.DeleteOperationType), false},
		{"non-knowledge type", entityTypeFilter(loom.NotificationType), false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			input := loom.TaskInput{
				Scope:   loom.TaskScopeKnowledge,
				Actions: actions(loom.ActionAdd),
				Filters: tc.filters,
			}
			err := g.CheckActionValidity(context.Background(), user, input, loom.TaskScopeKnowledge, loom.TaskTypeQuery)
			if tc.allowed {
				require.NoError(t, err)
			} else {
				var forbidden *Forbidden
				require.ErrorAs(t, err, &forbidden)
			}
		})
	}
}

func TestCheckKnowledgeScopeListTargets(t *testing.T) {
	resolver := &fakeResolver{objects: map[string]*loom.StoredObject{
		"report-1":    {ID: "report-1", InternalID: "i1", EntityType: "Report"},
		"indicator-1": {ID: "indicator-1", InternalID: "i2", EntityType: "Indicator"},
		"vocab-1":     {ID: "vocab-1", InternalID: "i3", EntityType: loom.VocabularyType},
	}}
	g := NewGate(resolver)
	user := userWith(loom.CapabilityModifyKnowledge)

	input := loom.TaskInput{
		Scope:   loom.TaskScopeKnowledge,
		Actions: actions(loom.ActionAdd),
		IDs:     []string{"report-1", "indicator-1"},
	}
	require.NoError(t, g.CheckActionValidity(context.Background(), user, input, loom.TaskScopeKnowledge, loom.TaskTypeList))

	var forbidden *Forbidden

	input.IDs = []string{"report-1", "vocab-1"}
	require.ErrorAs(t, g.CheckActionValidity(context.Background(), user, input, loom.TaskScopeKnowledge, loom.TaskTypeList), &forbidden)

	// unresolvable ids are a denial, not an internal error
	input.IDs = []string{"report-1", "missing"}
	require.ErrorAs(t, g.CheckActionValidity(context.Background(), user, input, loom.TaskScopeKnowledge, loom.TaskTypeList), &forbidden)

	// a store failure is surfaced as-is
	resolver.err = errors.New("store down")
	input.IDs = []string{"report-1"}
	err := g.CheckActionValidity(context.Background(), user, input, loom.TaskScopeKnowledge, loom.TaskTypeList)
	require.Error(t, err)
	require.False(t, errors.As(err, &forbidden))
}

func TestCheckUserScopeQuery(t *testing.T) {
	g := NewGate(&fakeResolver{})

	notifFilter := func(userIDs ...string) *loom.FilterGroup {
		fg := entityTypeFilter(loom.NotificationType)
		for _, id := range userIDs {
			fg.Filters = append(fg.Filters, loom.Filter{Key: loom.FilterKeyUserID, Operator: loom.FilterOpEq, Values: []string{id}})
		}
		return fg
	}

	input := loom.TaskInput{Scope: loom.TaskScopeUser, Actions: actions(loom.ActionDelete)}
	var forbidden *Forbidden

	// own notifications, explicitly pinned
	input.Filters = notifFilter("u1")
	require.NoError(t, g.CheckActionValidity(context.Background(), userWith(), input, loom.TaskScopeUser, loom.TaskTypeQuery))

	// another user's notifications need the manage-accesses capability
	input.Filters = notifFilter("u2")
	require.ErrorAs(t, g.CheckActionValidity(context.Background(), userWith(), input, loom.TaskScopeUser, loom.TaskTypeQuery), &forbidden)
	require.NoError(t, g.CheckActionValidity(context.Background(), userWith(loom.CapabilityManageAccesses), input, loom.TaskScopeUser, loom.TaskTypeQuery))

	// the user_id filter must pin exactly one value
	input.Filters = notifFilter("u1", "u2")
	require.ErrorAs(t, g.CheckActionValidity(context.Background(), userWith(loom.CapabilityManageAccesses), input, loom.TaskScopeUser, loom.TaskTypeQuery), &forbidden)
	input.Filters = notifFilter()
	require.ErrorAs(t, g.CheckActionValidity(context.Background(), userWith(loom.CapabilityManageAccesses), input, loom.TaskScopeUser, loom.TaskTypeQuery), &forbidden)

	// only the notification type may be targeted, and it must be explicit
	input.Filters = entityTypeFilter("Report")
	require.ErrorAs(t, g.CheckActionValidity(context.Background(), userWith(loom.CapabilityManageAccesses), input, loom.TaskScopeUser, loom.TaskTypeQuery), &forbidden)
	input.Filters = nil
	require.ErrorAs(t, g.CheckActionValidity(context.Background(), userWith(loom.CapabilityManageAccesses), input, loom.TaskScopeUser, loom.TaskTypeQuery), &forbidden)
}

func TestCheckUserScopeList(t *testing.T) {
	resolver := &fakeResolver{notifications: map[string]*loom.Notification{
		"n1": {ID: "n1", EntityType: loom.NotificationType, UserID: "u1"},
		"n2": {ID: "n2", EntityType: loom.NotificationType, UserID: "u1"},
		"n3": {ID: "n3", EntityType: loom.NotificationType, UserID: "u2"},
	}}
	g := NewGate(resolver)

	input := loom.TaskInput{Scope: loom.TaskScopeUser, Actions: actions(loom.ActionDelete)}
	var forbidden *Forbidden

	// all notifications owned by the requester
	input.IDs = []string{"n1", "n2"}
	require.NoError(t, g.CheckActionValidity(context.Background(), userWith(), input, loom.TaskScopeUser, loom.TaskTypeList))

	// mixed owners denied without manage-accesses, allowed with it
	input.IDs = []string{"n1", "n3"}
	require.ErrorAs(t, g.CheckActionValidity(context.Background(), userWith(), input, loom.TaskScopeUser, loom.TaskTypeList), &forbidden)
	require.NoError(t, g.CheckActionValidity(context.Background(), userWith(loom.CapabilityManageAccesses), input, loom.TaskScopeUser, loom.TaskTypeList))

	// someone else's notifications only
	input.IDs = []string{"n3"}
	require.ErrorAs(t, g.CheckActionValidity(context.Background(), userWith(), input, loom.TaskScopeUser, loom.TaskTypeList), &forbidden)

	// ids must resolve to notifications
	input.IDs = []string{"missing"}
	require.ErrorAs(t, g.CheckActionValidity(context.Background(), userWith(), input, loom.TaskScopeUser, loom.TaskTypeList), &forbidden)
}

func TestCheckUserScopeUnsupportedTaskType(t *testing.T) {
	g := NewGate(&fakeResolver{})
	err := g.CheckActionValidity(context.Background(), userWith(loom.CapabilityBypass), loom.TaskInput{}, loom.TaskScopeUser, loom.TaskTypeRule)

	var unsupported *Unsupported
	require.ErrorAs(t, err, &unsupported)
}

func TestCheckImportScope(t *testing.T) {
	g := NewGate(&fakeResolver{})
	var forbidden *Forbidden

	input := loom.TaskInput{Scope: loom.TaskScopeImport, Actions: actions(loom.ActionDelete)}

	// capability required
	require.ErrorAs(t, g.CheckActionValidity(context.Background(), userWith(), input, loom.TaskScopeImport, loom.TaskTypeQuery), &forbidden)

	// a pure delete set is denied even with the capability
	require.ErrorAs(t, g.CheckActionValidity(context.Background(), userWith(loom.CapabilityImportKnowledge), input, loom.TaskScopeImport, loom.TaskTypeQuery), &forbidden)

	// the same delete accompanied by another action is allowed
	input.Actions = actions(loom.ActionDelete, loom.ActionShare)
	require.NoError(t, g.CheckActionValidity(context.Background(), userWith(loom.CapabilityImportKnowledge), input, loom.TaskScopeImport, loom.TaskTypeQuery))
}

func TestAuthorityForScope(t *testing.T) {
	require.Equal(t, loom.CapabilityManageSettings, AuthorityForScope(loom.TaskScopeSettings))
	require.Equal(t, loom.CapabilityModifyKnowledge, AuthorityForScope(loom.TaskScopeKnowledge))
	require.Equal(t, loom.CapabilityManageAccesses, AuthorityForScope(loom.TaskScopeUser))
	require.Equal(t, loom.CapabilityImportKnowledge, AuthorityForScope(loom.TaskScopeImport))
	require.Equal(t, "", AuthorityForScope("ELSEWHERE"))
}
