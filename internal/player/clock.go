package player

import (
	"context"
	"sync"
	"time"
)

// PlaybackState is the transport state of the player.
type PlaybackState string

const (
	StatePlay  PlaybackState = "PLAY"
	StatePause PlaybackState = "PAUSE"
	StateStop  PlaybackState = "STOP"
)

const defaultTickInterval = 250 * time.Millisecond

// Clock is a headless play cursor. While playing it advances with wall time
// scaled by the playback rate.
type Clock struct {
	interval time.Duration
	rate     float64
	now      func() time.Time

	mu       sync.Mutex
	state    PlaybackState
	pos      float64
	duration float64
	since    time.Time
}

// NewClock returns a stopped clock. Non-positive arguments select a 250ms
// tick and real-time rate.
func NewClock(interval time.Duration, rate float64) *Clock {
	if interval <= 0 {
		interval = defaultTickInterval
	}
	if rate <= 0 {
		rate = 1
	}
	return &Clock{interval: interval, rate: rate, now: time.Now, state: StateStop}
}

// advance must be called with c.mu held.
func (c *Clock) advance() {
	now := c.now()
	if c.state == StatePlay {
		c.pos += now.Sub(c.since).Seconds() * c.rate
		if c.duration > 0 && c.pos > c.duration {
			c.pos = c.duration
		}
	}
	c.since = now
}

func (c *Clock) set(state PlaybackState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advance()
	c.state = state
	if state == StateStop {
		c.pos = 0
	}
}

func (c *Clock) Play()  { c.set(StatePlay) }
func (c *Clock) Pause() { c.set(StatePause) }

// Stop pauses and rewinds to zero.
func (c *Clock) Stop() { c.set(StateStop) }

// Seek moves the cursor to t seconds without changing the state.
func (c *Clock) Seek(t float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advance()
	c.pos = t
	if c.duration > 0 && c.pos > c.duration {
		c.pos = c.duration
	}
}

// SetDuration bounds the cursor. Zero means unbounded.
func (c *Clock) SetDuration(d float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advance()
	c.duration = d
}

// Position returns the cursor in seconds.
func (c *Clock) Position() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advance()
	return c.pos
}

func (c *Clock) State() PlaybackState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run calls onTick with the cursor on every tick while playing, until ctx is
// done.
func (c *Clock) Run(ctx context.Context, onTick func(t float64)) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if c.State() == StatePlay {
				onTick(c.Position())
			}
		}
	}
}
