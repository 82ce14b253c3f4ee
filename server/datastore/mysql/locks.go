package mysql

import (
	"context"
	"time"

	"github.com/loomhq/loom/server/contexts/ctxerr"
)

// Lock acquires (or renews) the named lease for owner. The lease is a row in
// the locks table; acquisition tries, in order: extend a lease this owner
// already holds, take over an expired lease, create a fresh one. Each step is
// a single atomic statement, so concurrent instances cannot both win.
func (d *Datastore) Lock(ctx context.Context, name string, owner string, expiration time.Duration) (bool, error) {
	expiresAt := d.clock.Now().Add(expiration)

	steps := []func(ctx context.Context, name, owner string, expiresAt time.Time) (bool, error){
		d.extendLockIfAlreadyAcquired,
		d.overwriteLockIfExpired,
		d.createLock,
	}

	for _, step := range steps {
		acquired, err := step(ctx, name, owner, expiresAt)
		if err != nil {
			return false, ctxerr.Wrap(ctx, err, "lock")
		}
		if acquired {
			return true, nil
		}
	}
	return false, nil
}

func (d *Datastore) extendLockIfAlreadyAcquired(ctx context.Context, name, owner string, expiresAt time.Time) (bool, error) {
	return d.execOne(ctx,
		`UPDATE locks SET expires_at = ? WHERE name = ? AND owner = ?`,
		expiresAt, name, owner,
	)
}

func (d *Datastore) overwriteLockIfExpired(ctx context.Context, name, owner string, expiresAt time.Time) (bool, error) {
	return d.execOne(ctx,
		`UPDATE locks SET owner = ?, expires_at = ? WHERE name = ? AND expires_at < ?`,
		owner, expiresAt, name, d.clock.Now(),
	)
}

func (d *Datastore) createLock(ctx context.Context, name, owner string, expiresAt time.Time) (bool, error) {
	return d.execOne(ctx,
		`INSERT IGNORE INTO locks (name, owner, expires_at) VALUES (?, ?, ?)`,
		name, owner, expiresAt,
	)
}

// Unlock releases the named lease if owner still holds it.
func (d *Datastore) Unlock(ctx context.Context, name string, owner string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM locks WHERE name = ? AND owner = ?`, name, owner)
	return ctxerr.Wrap(ctx, err, "unlock")
}
