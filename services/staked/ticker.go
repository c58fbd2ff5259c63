package staked

import (
	"context"
	"sync/atomic"
	"time"
)

// Ticker supplies the tick operations execute at. Implementations must be
// monotonic.
type Ticker interface {
	Height() uint64
}

// ClockTicker advances one tick per interval while Run is active.
type ClockTicker struct {
	height   atomic.Uint64
	interval time.Duration
	onTick   func(uint64)
}

// NewClockTicker starts counting from start.
func NewClockTicker(start uint64, interval time.Duration) *ClockTicker {
	t := &ClockTicker{interval: interval}
	t.height.Store(start)
	return t
}

// OnTick registers a callback invoked after each advance.
func (t *ClockTicker) OnTick(fn func(uint64)) { t.onTick = fn }

// Height returns the current tick.
func (t *ClockTicker) Height() uint64 { return t.height.Load() }

// Run advances the tick until ctx is cancelled.
func (t *ClockTicker) Run(ctx context.Context) {
	if t.interval <= 0 {
		return
	}
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			height := t.height.Add(1)
			if t.onTick != nil {
				t.onTick(height)
			}
		}
	}
}

// ManualTicker only moves when told to.
type ManualTicker struct {
	height atomic.Uint64
}

// NewManualTicker starts at start.
func NewManualTicker(start uint64) *ManualTicker {
	t := &ManualTicker{}
	t.height.Store(start)
	return t
}

// Height returns the current tick.
func (t *ManualTicker) Height() uint64 { return t.height.Load() }

// Advance moves the tick forward by n and returns the new height.
func (t *ManualTicker) Advance(n uint64) uint64 { return t.height.Add(n) }

// Set moves the tick to height. Lower values are ignored.
func (t *ManualTicker) Set(height uint64) {
	for {
		current := t.height.Load()
		if height <= current || t.height.CompareAndSwap(current, height) {
			return
		}
	}
}
