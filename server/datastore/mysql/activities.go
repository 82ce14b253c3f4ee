package mysql

import (
	"context"
	"encoding/json"

	"github.com/loomhq/loom/server/contexts/ctxerr"
	"github.com/loomhq/loom/server/loom"
)

// NewActivity appends an audit record for a user action.
func (d *Datastore) NewActivity(ctx context.Context, user *loom.User, activity loom.Activity) error {
	contextJSON, err := json.Marshal(activity.ContextData)
	if err != nil {
		return ctxerr.Wrap(ctx, err, "marshal activity context")
	}

	userID := activity.UserID
	if userID == "" && user != nil {
		userID = user.ID
	}

	query, args, err := sq.
		Insert("activities").
		Columns("id", "created_at", "user_id", "event_type", "event_scope", "event_access", "message", "context_data").
		Values(activity.ID, activity.CreatedAt, userID, activity.EventType, activity.EventScope, activity.EventAccess, activity.Message, contextJSON).
		ToSql()
	if err != nil {
		return ctxerr.Wrap(ctx, err, "build insert activity")
	}

	if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
		return ctxerr.Wrap(ctx, err, "insert activity")
	}
	return nil
}
