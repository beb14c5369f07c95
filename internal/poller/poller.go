// Package poller drives the two feed adapters on independent timers and
// pushes fresh snapshots into the engine.
package poller

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/forewarned/forewarned/internal/observability"
)

// errorRetryDelay caps the wait after a failed poll so a transient source
// outage is retried sooner than the regular interval.
const errorRetryDelay = time.Minute

// Poller runs one poll function on a fixed interval until its context is
// cancelled. A poll error is logged and counted, never fatal: the engine
// simply keeps operating on the last snapshot it received.
type Poller struct {
	name     string
	interval time.Duration
	poll     func(ctx context.Context) error
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// New creates a Poller. name labels logs and metrics ("weather" or "eoc").
func New(name string, interval time.Duration, poll func(ctx context.Context) error, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Poller {
	return &Poller{
		name:     name,
		interval: interval,
		poll:     poll,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run polls immediately, then on every interval, until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poller started", "source", p.name, "interval", p.interval)

	delay := p.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopping", "source", p.name, "reason", ctx.Err())
			return nil
		case <-p.clock.After(delay):
			delay = p.pollOnce(ctx)
		}
	}
}

// pollOnce runs one poll and returns the delay until the next one.
func (p *Poller) pollOnce(ctx context.Context) time.Duration {
	if err := p.poll(ctx); err != nil {
		if ctx.Err() != nil {
			return p.interval
		}
		p.metrics.PollErrors.WithLabelValues(p.name).Inc()
		p.logger.Error("poll failed", "source", p.name, "error", err)
		if errorRetryDelay < p.interval {
			return errorRetryDelay
		}
	}
	return p.interval
}
