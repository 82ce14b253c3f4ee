package schedule

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/WatchBeam/clock"
)

// ErrLeaseLost is returned by Extend when the lease could not be renewed.
var ErrLeaseLost = errors.New("lease lost")

// Lease is the handle a job receives for the duration of a scheduled run. It
// exposes the abort signal (Done), lease renewal (Extend) and early release
// (Unlock).
//
// The abort signal fires when the parent context is cancelled or the lease
// expires without being extended. Failing to poll it between units of work
// risks two instances mutating the same data once the lease lapses.
type Lease struct {
	locker   Locker
	name     string
	owner    string
	duration time.Duration
	clock    clock.Clock

	mu        sync.Mutex
	expiresAt time.Time
	expiry    *time.Timer
	done      chan struct{}
	released  bool
}

func newLease(ctx context.Context, locker Locker, name, owner string, duration time.Duration, clk clock.Clock) *Lease {
	l := &Lease{
		locker:    locker,
		name:      name,
		owner:     owner,
		duration:  duration,
		clock:     clk,
		expiresAt: clk.Now().Add(duration),
		done:      make(chan struct{}),
	}
	l.expiry = time.AfterFunc(duration, l.abort)
	// propagate parent cancellation to the abort signal
	go func() {
		select {
		case <-ctx.Done():
			l.abort()
		case <-l.done:
		}
	}()
	return l
}

// Done returns the abort channel, closed when the run must stop: shutdown,
// lease expiry, or explicit release.
func (l *Lease) Done() <-chan struct{} {
	return l.done
}

// Extend renews the lease for another full duration. It must be called
// before the current expiration; on failure the abort signal fires.
func (l *Lease) Extend(ctx context.Context) error {
	locked, err := l.locker.Lock(ctx, l.name, l.owner, l.duration)
	if err != nil || !locked {
		l.abort()
		if err != nil {
			return err
		}
		return ErrLeaseLost
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return ErrLeaseLost
	}
	l.expiresAt = l.clock.Now().Add(l.duration)
	l.expiry.Reset(l.duration)
	return nil
}

// Unlock releases the lease early. Safe to call more than once; only the
// first call hits the locker.
func (l *Lease) Unlock(ctx context.Context) error {
	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		return nil
	}
	l.released = true
	l.expiry.Stop()
	close(l.done)
	l.mu.Unlock()

	return l.locker.Unlock(ctx, l.name, l.owner)
}

// ExpiresAt returns the current lease expiration.
func (l *Lease) ExpiresAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.expiresAt
}

func (l *Lease) abort() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return
	}
	l.released = true
	l.expiry.Stop()
	close(l.done)
}
