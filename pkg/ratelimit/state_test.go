package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryWindow_Reserve(t *testing.T) {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		max      int
		grants   []time.Duration // offsets from base that were granted
		at       time.Duration
		wantWait time.Duration
	}{
		{
			name:     "empty window grants",
			max:      3,
			at:       0,
			wantWait: 0,
		},
		{
			name:     "below max grants",
			max:      3,
			grants:   []time.Duration{0, time.Second},
			at:       2 * time.Second,
			wantWait: 0,
		},
		{
			name:     "exhausted waits for oldest grant",
			max:      2,
			grants:   []time.Duration{0, 10 * time.Second},
			at:       20 * time.Second,
			wantWait: 40 * time.Second,
		},
		{
			name:     "oldest grant aged out exactly",
			max:      2,
			grants:   []time.Duration{0, 10 * time.Second},
			at:       60 * time.Second,
			wantWait: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewMemoryWindow(tt.max, time.Minute)
			ctx := context.Background()
			for _, offset := range tt.grants {
				wait, err := w.Reserve(ctx, base.Add(offset))
				if err != nil || wait != 0 {
					t.Fatalf("seed Reserve() = %v, %v; want 0, nil", wait, err)
				}
			}

			wait, err := w.Reserve(ctx, base.Add(tt.at))
			if err != nil {
				t.Fatalf("Reserve() error = %v", err)
			}
			if wait != tt.wantWait {
				t.Errorf("Reserve() wait = %v, want %v", wait, tt.wantWait)
			}
		})
	}
}

func TestMemoryWindow_ReserveStaleClock(t *testing.T) {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	w := NewMemoryWindow(1, time.Minute)
	ctx := context.Background()

	if wait, _ := w.Reserve(ctx, base.Add(30*time.Second)); wait != 0 {
		t.Fatalf("first Reserve() wait = %v, want 0", wait)
	}

	// A caller that read the clock earlier must not slip into the window.
	wait, err := w.Reserve(ctx, base)
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	if wait != time.Minute {
		t.Errorf("Reserve() wait = %v, want %v", wait, time.Minute)
	}
}

func TestMemoryWindow_State(t *testing.T) {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	w := NewMemoryWindow(2, time.Minute)
	ctx := context.Background()

	state := w.State(base)
	if state.Granted != 0 || state.IsExhausted() {
		t.Errorf("empty State() = %+v, want no grants", state)
	}
	if got := state.TimeUntilReset(base); got != 0 {
		t.Errorf("TimeUntilReset() = %v, want 0", got)
	}

	w.Reserve(ctx, base)
	w.Reserve(ctx, base.Add(15*time.Second))

	state = w.State(base.Add(20 * time.Second))
	if !state.IsExhausted() {
		t.Error("State() should be exhausted after max grants")
	}
	if !state.ResetAt.Equal(base.Add(time.Minute)) {
		t.Errorf("ResetAt = %v, want %v", state.ResetAt, base.Add(time.Minute))
	}
	if got := state.TimeUntilReset(base.Add(20 * time.Second)); got != 40*time.Second {
		t.Errorf("TimeUntilReset() = %v, want 40s", got)
	}

	state = w.State(base.Add(61 * time.Second))
	if state.Granted != 1 {
		t.Errorf("Granted after first grant aged out = %d, want 1", state.Granted)
	}
}

func TestDefaults(t *testing.T) {
	if DefaultPermits >= 50 {
		t.Errorf("DefaultPermits = %d, must stay below the documented 50/min", DefaultPermits)
	}
	if DefaultWindow != time.Minute {
		t.Errorf("DefaultWindow = %v, want 1m", DefaultWindow)
	}
}
