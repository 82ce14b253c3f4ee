// Package authz implements the authorization gate for background-task
// creation: a pure decision layer that validates both the principal's
// capabilities and its rights over the targeted data, per task scope.
package authz

import (
	"context"
	"fmt"

	"github.com/loomhq/loom/server/contexts/ctxerr"
	"github.com/loomhq/loom/server/loom"
)

// Resolver resolves ids against the store for target-ownership validation.
type Resolver interface {
	ResolveObject(ctx context.Context, id string) (*loom.StoredObject, error)
	ResolveNotification(ctx context.Context, id string) (*loom.Notification, error)
}

// Gate decides whether a principal may request a set of bulk actions against
// a scope. It has no side effects; the only I/O is id resolution through the
// Resolver.
type Gate struct {
	resolver Resolver
}

// NewGate returns a Gate backed by the given resolver.
func NewGate(resolver Resolver) *Gate {
	return &Gate{resolver: resolver}
}

// scopeCheck validates one scope. Each entry is independent so scopes can be
// unit tested in isolation.
type scopeCheck func(ctx context.Context, g *Gate, user *loom.User, input loom.TaskInput, taskType loom.TaskType) error

var scopeChecks = map[loom.TaskScope]scopeCheck{
	loom.TaskScopeSettings:  checkSettingsScope,
	loom.TaskScopeKnowledge: checkKnowledgeScope,
	loom.TaskScopeUser:      checkUserScope,
	loom.TaskScopeImport:    checkImportScope,
}

// CheckActionValidity returns nil if the user may create the requested task,
// or a typed denial: *Forbidden for capability/ownership failures,
// *Unsupported for operations the gate has no handling for. Denials are never
// partially applied; the first failed rule rejects the whole request.
func (g *Gate) CheckActionValidity(ctx context.Context, user *loom.User, input loom.TaskInput, scope loom.TaskScope, taskType loom.TaskType) error {
	check, ok := scopeChecks[scope]
	if !ok {
		return UnsupportedWithInternal(fmt.Sprintf("task scope %q is not supported", scope))
	}
	return check(ctx, g, user, input, taskType)
}

// AuthorityForScope returns the capability granting full access to records of
// the given scope, or "" for unrecognized scopes. This is the single
// designated authority attached to a task at creation.
func AuthorityForScope(scope loom.TaskScope) string {
	switch scope {
	case loom.TaskScopeSettings:
		return loom.CapabilityManageSettings
	case loom.TaskScopeKnowledge:
		return loom.CapabilityModifyKnowledge
	case loom.TaskScopeUser:
		return loom.CapabilityManageAccesses
	case loom.TaskScopeImport:
		return loom.CapabilityImportKnowledge
	default:
		return ""
	}
}

func checkSettingsScope(ctx context.Context, g *Gate, user *loom.User, input loom.TaskInput, taskType loom.TaskType) error {
	if !user.HasCapability(loom.CapabilityManageSettings) {
		return ForbiddenWithInternal("settings tasks require the manage-settings capability", user, loom.TaskScopeSettings, input.Actions)
	}
	return nil
}

func checkKnowledgeScope(ctx context.Context, g *Gate, user *loom.User, input loom.TaskInput, taskType loom.TaskType) error {
	if !user.HasCapability(loom.CapabilityModifyKnowledge) {
		return ForbiddenWithInternal("knowledge tasks require the modify-knowledge capability", user, loom.TaskScopeKnowledge, input.Actions)
	}
	if input.HasDeleteAction() && !user.HasCapability(loom.CapabilityDeleteKnowledge) {
		return ForbiddenWithInternal("delete actions require the delete-knowledge capability", user, loom.TaskScopeKnowledge, input.Actions)
	}

	var targetTypes []string
	switch taskType {
	case loom.TaskTypeQuery:
		targetTypes = input.Filters.Values(loom.FilterKeyEntityType)
	case loom.TaskTypeList:
		for _, id := range input.IDs {
			obj, err := g.resolver.ResolveObject(ctx, id)
			if err != nil {
				if loom.IsNotFound(err) {
					return ForbiddenWithInternal(fmt.Sprintf("id %q does not resolve to a stored object", id), user, loom.TaskScopeKnowledge, input.Actions)
				}
				return ctxerr.Wrap(ctx, err, "resolve task target")
			}
			targetTypes = append(targetTypes, obj.EntityType)
		}
	default:
		return UnsupportedWithInternal(fmt.Sprintf("task type %q is not supported for the knowledge scope", taskType))
	}

	return validateKnowledgeTargets(user, input, targetTypes)
}

// validateKnowledgeTargets applies the target-type rule shared by QUERY and
// LIST knowledge tasks: vocabularies are never valid targets, and the target
// set must resolve entirely to the knowledge category or consist entirely of
// trash entries (delete-operation markers).
func validateKnowledgeTargets(user *loom.User, input loom.TaskInput, targetTypes []string) error {
	allKnowledge := true
	allDeleteOperations := true
	for _, t := range targetTypes {
		if loom.IsTypeOf(t, loom.VocabularyType) {
			return ForbiddenWithInternal(fmt.Sprintf("vocabularies cannot be targeted by bulk operations (got %q)", t), user, loom.TaskScopeKnowledge, input.Actions)
		}
		if !loom.IsKnowledgeType(t) {
			allKnowledge = false
		}
		if !loom.IsTypeOf(t, loom.DeleteOperationType) {
			allDeleteOperations = false
		}
	}
	if !allKnowledge && !allDeleteOperations {
		return ForbiddenWithInternal("targets must all be knowledge objects or all be trash entries", user, loom.TaskScopeKnowledge, input.Actions)
	}
	return nil
}

func checkUserScope(ctx context.Context, g *Gate, user *loom.User, input loom.TaskInput, taskType loom.TaskType) error {
	switch taskType {
	case loom.TaskTypeQuery:
		targetTypes := input.Filters.Values(loom.FilterKeyEntityType)
		if len(targetTypes) == 0 {
			return ForbiddenWithInternal("user tasks must target the notification type explicitly", user, loom.TaskScopeUser, input.Actions)
		}
		for _, t := range targetTypes {
			if t != loom.NotificationType {
				return ForbiddenWithInternal(fmt.Sprintf("user tasks can only target notifications (got %q)", t), user, loom.TaskScopeUser, input.Actions)
			}
		}
		userIDs := input.Filters.Values(loom.FilterKeyUserID)
		if len(userIDs) != 1 {
			return ForbiddenWithInternal("user tasks require a user_id filter pinned to exactly one value", user, loom.TaskScopeUser, input.Actions)
		}
		if !user.HasCapability(loom.CapabilityManageAccesses) && userIDs[0] != user.ID {
			return ForbiddenWithInternal("cannot operate on another user's notifications", user, loom.TaskScopeUser, input.Actions)
		}
		return nil

	case loom.TaskTypeList:
		owners := make(map[string]struct{})
		for _, id := range input.IDs {
			notif, err := g.resolver.ResolveNotification(ctx, id)
			if err != nil {
				if loom.IsNotFound(err) {
					return ForbiddenWithInternal(fmt.Sprintf("id %q does not resolve to a notification", id), user, loom.TaskScopeUser, input.Actions)
				}
				return ctxerr.Wrap(ctx, err, "resolve notification target")
			}
			owners[notif.UserID] = struct{}{}
		}
		if user.HasCapability(loom.CapabilityManageAccesses) {
			return nil
		}
		if len(owners) != 1 {
			return ForbiddenWithInternal("notifications must all belong to the requesting user", user, loom.TaskScopeUser, input.Actions)
		}
		if _, ok := owners[user.ID]; !ok {
			return ForbiddenWithInternal("cannot operate on another user's notifications", user, loom.TaskScopeUser, input.Actions)
		}
		return nil

	default:
		return UnsupportedWithInternal(fmt.Sprintf("task type %q is not supported for the user scope", taskType))
	}
}

func checkImportScope(ctx context.Context, g *Gate, user *loom.User, input loom.TaskInput, taskType loom.TaskType) error {
	if !user.HasCapability(loom.CapabilityImportKnowledge) {
		return ForbiddenWithInternal("import tasks require the import capability", user, loom.TaskScopeImport, input.Actions)
	}
	// Bulk delete through this path alone is disallowed: a delete must be
	// accompanied by at least one non-delete action. No target-type check is
	// needed since the import fetch path only ever yields files.
	if input.AllDeleteActions() {
		return ForbiddenWithInternal("import tasks cannot consist solely of delete actions", user, loom.TaskScopeImport, input.Actions)
	}
	return nil
}
