package mysql

import (
	"context"

	"github.com/loomhq/loom/server/contexts/ctxerr"
	"github.com/loomhq/loom/server/loom"
)

// ResolveObject resolves an id to its stored object projection.
func (d *Datastore) ResolveObject(ctx context.Context, id string) (*loom.StoredObject, error) {
	query, args, err := sq.
		Select("id", "internal_id", "entity_type").
		From("objects").
		Where("id = ?", id).
		ToSql()
	if err != nil {
		return nil, ctxerr.Wrap(ctx, err, "build resolve object")
	}

	var obj loom.StoredObject
	if err := d.db.GetContext(ctx, &obj, query, args...); err != nil {
		if isNoRows(err) {
			return nil, loom.NewNotFoundError("Object", id)
		}
		return nil, ctxerr.Wrap(ctx, err, "resolve object")
	}
	return &obj, nil
}

// ResolveNotification resolves an id as a notification, with its owning
// user.
func (d *Datastore) ResolveNotification(ctx context.Context, id string) (*loom.Notification, error) {
	query, args, err := sq.
		Select("id", "entity_type", "user_id").
		From("notifications").
		Where("id = ?", id).
		ToSql()
	if err != nil {
		return nil, ctxerr.Wrap(ctx, err, "build resolve notification")
	}

	var notif loom.Notification
	if err := d.db.GetContext(ctx, &notif, query, args...); err != nil {
		if isNoRows(err) {
			return nil, loom.NewNotFoundError(loom.NotificationType, id)
		}
		return nil, ctxerr.Wrap(ctx, err, "resolve notification")
	}
	if notif.EntityType != loom.NotificationType {
		return nil, loom.NewNotFoundError(loom.NotificationType, id)
	}
	return &notif, nil
}
