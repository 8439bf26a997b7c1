// Package timectrl paces simulation rounds.
package timectrl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrStop may be returned by a listener to end the run without error.
var ErrStop = errors.New("stop round clock")

// Mode describes how the RoundClock advances rounds.
type Mode int

const (
	// RealTime waits Interval of wall-clock time between rounds.
	RealTime Mode = iota
	// Accelerated runs rounds back to back.
	Accelerated
)

// String returns the mode's configuration name.
func (m Mode) String() string {
	if m == RealTime {
		return "realtime"
	}
	return "accelerated"
}

// ParseMode accepts "realtime" or "accelerated", case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "realtime", "real-time", "real_time":
		return RealTime, nil
	case "", "accelerated":
		return Accelerated, nil
	default:
		return 0, fmt.Errorf("unknown clock mode %q", s)
	}
}

// Listener is invoked once per round with the 0-based round index.
type Listener func(ctx context.Context, round int) error

// RoundClock drives rounds and notifies registered listeners in
// registration order.
type RoundClock struct {
	mu       sync.RWMutex
	Interval time.Duration
	Mode     Mode

	// round counts the rounds whose listeners all returned.
	round int

	listeners []Listener
}

// NewRoundClock constructs a clock. Interval is only used in RealTime mode.
func NewRoundClock(interval time.Duration, mode Mode) *RoundClock {
	return &RoundClock{
		Interval: interval,
		Mode:     mode,
	}
}

// Round returns the number of completed rounds.
func (c *RoundClock) Round() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.round
}

// AddListener registers a callback invoked on every round. It must be
// called before Start.
func (c *RoundClock) AddListener(fn Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Start runs up to maxRounds rounds in a separate goroutine; maxRounds <= 0
// runs until ctx is cancelled or a listener stops the clock. The returned
// channel yields the terminal error (nil on a clean finish) and is then
// closed.
func (c *RoundClock) Start(ctx context.Context, maxRounds int) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- c.run(ctx, maxRounds)
	}()
	return done
}

func (c *RoundClock) run(ctx context.Context, maxRounds int) error {
	c.mu.RLock()
	listeners := append([]Listener(nil), c.listeners...)
	c.mu.RUnlock()

	var tick <-chan time.Time
	if c.Mode == RealTime && c.Interval > 0 {
		ticker := time.NewTicker(c.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for i := 0; maxRounds <= 0 || i < maxRounds; i++ {
		if tick != nil && i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		for _, fn := range listeners {
			if err := fn(ctx, i); err != nil {
				if errors.Is(err, ErrStop) {
					c.complete()
					return nil
				}
				return fmt.Errorf("round %d: %w", i, err)
			}
		}
		c.complete()
	}
	return nil
}

func (c *RoundClock) complete() {
	c.mu.Lock()
	c.round++
	c.mu.Unlock()
}
