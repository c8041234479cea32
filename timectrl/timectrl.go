// Package timectrl drives the atmospherics clock: every tick advances
// simulated time by a fixed step and notifies listeners, either paced by the
// wall clock or as fast as the listeners allow.
package timectrl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrUnknownMode is returned by ParseMode for an unrecognised mode name.
var ErrUnknownMode = errors.New("unknown time mode")

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime waits one Tick of wall-clock time between steps.
	RealTime Mode = iota
	// Accelerated steps back to back without waiting.
	Accelerated
)

func (m Mode) String() string {
	switch m {
	case RealTime:
		return "realtime"
	case Accelerated:
		return "accelerated"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode resolves "realtime" or "accelerated".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "realtime", "real-time", "":
		return RealTime, nil
	case "accelerated", "fast":
		return Accelerated, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Clock reads simulated time.
type Clock interface {
	Now() time.Time
}

// TimeController drives simulation time and notifies registered listeners.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	currentTime time.Time
	ticks       int

	listeners []func(time.Time)
}

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the current simulation time.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// Ticks returns how many ticks have run.
func (tc *TimeController) Ticks() int {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.ticks
}

// SetTime moves the clock without notifying listeners.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.currentTime = t
}

// AddListener registers a callback invoked on every tick with the new time.
// Listeners run on the controller's goroutine, one after another.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

// Step advances one tick and runs the listeners synchronously.
func (tc *TimeController) Step() time.Time {
	tc.mu.Lock()
	tc.currentTime = tc.currentTime.Add(tc.Tick)
	tc.ticks++
	now := tc.currentTime
	listeners := append([]func(time.Time){}, tc.listeners...)
	tc.mu.Unlock()

	for _, fn := range listeners {
		fn(now)
	}
	return now
}

// Start runs ticks steps (forever when ticks <= 0) on a new goroutine until
// ctx is cancelled. The returned channel is closed when the loop exits.
func (tc *TimeController) Start(ctx context.Context, ticks int) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		var pace <-chan time.Time
		if tc.Mode == RealTime {
			ticker := time.NewTicker(tc.Tick)
			defer ticker.Stop()
			pace = ticker.C
		}

		for n := 0; ticks <= 0 || n < ticks; n++ {
			if pace != nil {
				select {
				case <-ctx.Done():
					return
				case <-pace:
				}
			} else if ctx.Err() != nil {
				return
			}
			tc.Step()
		}
	}()
	return done
}
