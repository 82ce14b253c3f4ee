// Package service implements the application services of the
// background-processing subsystem: background-task creation behind the
// authorization gate, and the wiring glue between the gate, the task factory,
// the audit stream and the store.
package service

import (
	"github.com/WatchBeam/clock"
	kitlog "github.com/go-kit/log"
	"github.com/loomhq/loom/server/authz"
	"github.com/loomhq/loom/server/loom"
	"github.com/loomhq/loom/server/search"
)

// Service composes the task subsystem's collaborators.
type Service struct {
	ds      loom.Datastore
	gate    *authz.Gate
	adapter *search.Adapter
	logger  kitlog.Logger
	clock   clock.Clock
}

// Option customizes a Service.
type Option func(*Service)

// WithClock sets the clock used for record timestamps.
func WithClock(c clock.Clock) Option {
	return func(svc *Service) { svc.clock = c }
}

// NewService builds a Service.
func NewService(ds loom.Datastore, gate *authz.Gate, adapter *search.Adapter, logger kitlog.Logger, opts ...Option) *Service {
	svc := &Service{
		ds:      ds,
		gate:    gate,
		adapter: adapter,
		logger:  logger,
		clock:   clock.C,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}
