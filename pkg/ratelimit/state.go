// Package ratelimit enforces the QA Touch request quota.
// Every outbound request consumes one permit; at most Max permits are
// granted inside any rolling window of Duration.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Quota defaults. QA Touch documents 50 requests per minute per account;
// 45 keeps a margin for other tools sharing the same token.
const (
	DefaultPermits = 45
	DefaultWindow  = 60 * time.Second
)

// RedisKeyPrefix is prepended to the scope of a shared Redis window.
const RedisKeyPrefix = "qatouch:rate_limit:"

// Window holds the grant history of one quota.
type Window interface {
	// Reserve grants a permit at now and returns 0, or returns how long the
	// caller must wait before asking again.
	Reserve(ctx context.Context, now time.Time) (time.Duration, error)
}

// WindowState is a point-in-time snapshot of a window.
type WindowState struct {
	// Granted is the number of permits issued within the current window.
	Granted int `json:"granted"`

	// Max is the configured number of permits per window.
	Max int `json:"max"`

	// ResetAt is when the oldest grant ages out. Zero when nothing is granted.
	ResetAt time.Time `json:"reset_at"`
}

// IsExhausted returns true if the next Reserve would have to wait.
func (s WindowState) IsExhausted() bool {
	return s.Granted >= s.Max
}

// TimeUntilReset returns the duration until a permit frees up.
// Returns 0 if the window has capacity.
func (s WindowState) TimeUntilReset(now time.Time) time.Duration {
	if !s.IsExhausted() {
		return 0
	}
	d := s.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// MemoryWindow is an in-process sliding-window log.
type MemoryWindow struct {
	mu       sync.Mutex
	max      int
	duration time.Duration
	grants   []time.Time
}

// NewMemoryWindow creates a window granting max permits per duration.
func NewMemoryWindow(max int, duration time.Duration) *MemoryWindow {
	return &MemoryWindow{
		max:      max,
		duration: duration,
		grants:   make([]time.Time, 0, max),
	}
}

// Reserve implements Window.
func (w *MemoryWindow) Reserve(_ context.Context, now time.Time) (time.Duration, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Callers read the clock before taking the lock; keep the log ordered.
	if n := len(w.grants); n > 0 && now.Before(w.grants[n-1]) {
		now = w.grants[n-1]
	}

	w.prune(now)
	if len(w.grants) < w.max {
		w.grants = append(w.grants, now)
		return 0, nil
	}

	wait := w.grants[0].Add(w.duration).Sub(now)
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait, nil
}

// State returns a snapshot of the window at now.
func (w *MemoryWindow) State(now time.Time) WindowState {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(now)
	state := WindowState{Granted: len(w.grants), Max: w.max}
	if len(w.grants) > 0 {
		state.ResetAt = w.grants[0].Add(w.duration)
	}
	return state
}

// prune drops grants that no longer fall inside (now-duration, now].
func (w *MemoryWindow) prune(now time.Time) {
	cutoff := now.Add(-w.duration)
	i := 0
	for i < len(w.grants) && !w.grants[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.grants = append(w.grants[:0], w.grants[i:]...)
	}
}
