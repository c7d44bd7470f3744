package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for permit handling.
var (
	permitsGrantedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qatouch_rate_limit_permits_total",
		Help: "Total number of rate limit permits granted",
	})

	permitWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qatouch_rate_limit_waits_total",
		Help: "Total number of permit requests that had to wait for the window",
	})

	permitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "qatouch_rate_limit_wait_seconds",
		Help:    "Time spent waiting for a permit",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
	})
)

// Clock abstracts time for the limiter.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces the wall clock (for testing).
func WithClock(clock Clock) Option {
	return func(l *Limiter) {
		l.clock = clock
	}
}

// Limiter hands out permits from a Window, suspending callers while the
// window is exhausted. A single Limiter is shared by every request of one
// client.
type Limiter struct {
	window Window
	clock  Clock
	logger zerolog.Logger
}

// NewLimiter creates a limiter over the given window.
func NewLimiter(window Window, logger zerolog.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		window: window,
		clock:  realClock{},
		logger: logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire blocks until a permit is granted or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	start := l.clock.Now()
	waited := false

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		wait, err := l.window.Reserve(ctx, l.clock.Now())
		if err != nil {
			return fmt.Errorf("reserve permit: %w", err)
		}

		if wait <= 0 {
			permitsGrantedTotal.Inc()
			if waited {
				elapsed := l.clock.Now().Sub(start)
				permitWaitSeconds.Observe(elapsed.Seconds())
				l.logger.Debug().Dur("waited", elapsed).Msg("Permit granted after wait")
			}
			return nil
		}

		if !waited {
			permitWaitsTotal.Inc()
			l.logger.Debug().Dur("wait", wait).Msg("Rate window exhausted, waiting for permit")
		}
		waited = true

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.clock.After(wait):
		}
	}
}
