// Package schedule allows periodic run of a list of jobs under a named
// distributed lease: across all cooperating instances sharing a lock name,
// at most one run is active at any time. Jobs receive the lease handle and
// are expected to poll its abort signal between logical units of work, and to
// extend the lease when a run outlives the default duration.
package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/WatchBeam/clock"
	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Locker allows a Schedule to acquire and release a named lease. Calling Lock
// again with the same owner renews the lease.
type Locker interface {
	Lock(ctx context.Context, name string, owner string, expiration time.Duration) (bool, error)
	Unlock(ctx context.Context, name string, owner string) error
}

// JobFn is the signature of a scheduled job. The lease passed in is live for
// the duration of the run.
type JobFn func(ctx context.Context, lease *Lease) error

type job struct {
	id string
	fn JobFn
}

// Schedule runs its jobs at a fixed interval, serialized across instances by
// the locker.
type Schedule struct {
	ctx        context.Context
	name       string
	instanceID string
	logger     kitlog.Logger
	clock      clock.Clock
	locker     Locker

	muChecks             sync.Mutex
	preflightCheck       func(ctx context.Context) bool
	configCheck          func(ctx context.Context) (time.Duration, error)
	configReloadInterval time.Duration

	muInterval    sync.Mutex
	interval      time.Duration
	leaseDuration time.Duration

	jobs []job

	done chan struct{}
}

// Option customizes a Schedule created by New.
type Option func(*Schedule)

// WithLogger sets the logger for the Schedule.
func WithLogger(l kitlog.Logger) Option {
	return func(s *Schedule) {
		s.logger = kitlog.With(l, "schedule", s.name)
	}
}

// WithClock sets the clock used to compute lease expirations.
func WithClock(c clock.Clock) Option {
	return func(s *Schedule) {
		s.clock = c
	}
}

// WithJob appends a job to the Schedule. Jobs run sequentially in the order
// added.
func WithJob(id string, fn JobFn) Option {
	return func(s *Schedule) {
		s.jobs = append(s.jobs, job{id: id, fn: fn})
	}
}

// WithPreflightCheck sets a check run before acquiring the lock on each tick;
// if it returns false the tick is skipped. Used to honor a runtime
// enabled/disabled configuration flag.
func WithPreflightCheck(fn func(ctx context.Context) bool) Option {
	return func(s *Schedule) {
		s.preflightCheck = fn
	}
}

// WithConfigCheck sets a check run periodically to pick up interval changes
// at runtime.
func WithConfigCheck(fn func(ctx context.Context) (time.Duration, error)) Option {
	return func(s *Schedule) {
		s.configCheck = fn
	}
}

// WithConfigReloadInterval sets how often the config check runs (default
// 1h).
func WithConfigReloadInterval(d time.Duration) Option {
	return func(s *Schedule) {
		s.configReloadInterval = d
	}
}

// WithLeaseDuration sets the lease expiration requested on each lock
// acquisition (default: the schedule interval, capped at 1h).
func WithLeaseDuration(d time.Duration) Option {
	return func(s *Schedule) {
		s.leaseDuration = d
	}
}

// New creates a Schedule. Call Start to begin ticking.
func New(ctx context.Context, name string, instanceID string, interval time.Duration, locker Locker, opts ...Option) *Schedule {
	s := &Schedule{
		ctx:                  ctx,
		name:                 name,
		instanceID:           instanceID,
		logger:               kitlog.NewNopLogger(),
		clock:                clock.C,
		locker:               locker,
		interval:             interval,
		configReloadInterval: 1 * time.Hour,
		done:                 make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.leaseDuration == 0 {
		s.leaseDuration = s.getInterval()
		if s.leaseDuration > 1*time.Hour {
			s.leaseDuration = 1 * time.Hour
		}
	}
	return s
}

// Start begins the schedule's tick loop in its own goroutine. The first tick
// happens after a short initial wait so all instances race for the lock on
// roughly the same cadence regardless of start order.
func (s *Schedule) Start() {
	initialWait := 10 * time.Second
	if intv := s.getInterval(); intv < initialWait {
		initialWait = intv
	}
	schedTicker := time.NewTicker(initialWait)

	go func() {
		defer close(s.done)
		defer schedTicker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				level.Debug(s.logger).Log("msg", "done")
				return

			case <-schedTicker.C:
				schedTicker.Reset(s.getInterval())

				if s.preflightCheck != nil && !s.preflightCheck(s.ctx) {
					level.Debug(s.logger).Log("msg", "preflight check failed, skipping")
					continue
				}

				locked, err := s.locker.Lock(s.ctx, s.name, s.instanceID, s.leaseDuration)
				if err != nil {
					level.Error(s.logger).Log("msg", "lock failed", "err", err)
					continue
				}
				if !locked {
					level.Debug(s.logger).Log("msg", "not the lock leader, skipping")
					continue
				}

				s.runWithLease()
			}
		}
	}()

	if s.configCheck != nil {
		go s.runConfigCheck()
	}
}

// runWithLease executes all jobs sequentially under a freshly acquired lease,
// then releases it.
func (s *Schedule) runWithLease() {
	lease := newLease(s.ctx, s.locker, s.name, s.instanceID, s.leaseDuration, s.clock)
	defer func() {
		// release with a context that survives shutdown
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := lease.Unlock(ctx); err != nil {
			level.Error(s.logger).Log("msg", "release lease", "err", err)
		}
	}()

	for _, j := range s.jobs {
		select {
		case <-lease.Done():
			level.Info(s.logger).Log("msg", "lease lost, aborting remaining jobs", "job", j.id)
			return
		default:
		}

		level.Debug(s.logger).Log("msg", "starting job", "job", j.id)
		if err := j.fn(s.ctx, lease); err != nil {
			level.Error(s.logger).Log("msg", "job failed", "job", j.id, "err", err)
		}
	}
}

func (s *Schedule) runConfigCheck() {
	configTicker := time.NewTicker(s.configReloadInterval)
	defer configTicker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-configTicker.C:
			newInterval, err := s.configCheck(s.ctx)
			if err != nil {
				level.Error(s.logger).Log("msg", "could not check interval config", "err", err)
				continue
			}
			if newInterval > 0 && newInterval != s.getInterval() {
				s.setInterval(newInterval)
				level.Info(s.logger).Log("msg", "new schedule interval", "interval", newInterval)
			}
		}
	}
}

// Done returns a channel closed once the schedule has fully stopped after its
// context is cancelled.
func (s *Schedule) Done() <-chan struct{} {
	return s.done
}

// Name returns the schedule's lock name.
func (s *Schedule) Name() string {
	return s.name
}

func (s *Schedule) getInterval() time.Duration {
	s.muInterval.Lock()
	defer s.muInterval.Unlock()
	return s.interval
}

func (s *Schedule) setInterval(d time.Duration) {
	s.muInterval.Lock()
	defer s.muInterval.Unlock()
	s.interval = d
}
