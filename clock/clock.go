// Package clock provides the elapsed-seconds source for a recording session.
package clock

import (
	"sync"
	"time"
)

// Source yields elapsed recording seconds. Values never decrease while the
// source is running.
type Source interface {
	Elapsed() int
}

// Controller is a Source whose lifecycle follows the recording session.
type Controller interface {
	Source
	Start()
	Freeze()
	Thaw()
	Stop()
}

// Wall derives elapsed seconds from a wall-clock reading. Frozen intervals
// are excluded from the elapsed value.
type Wall struct {
	mu        sync.Mutex
	now       func() time.Time
	startedAt time.Time
	frozenAt  time.Time
	frozenFor time.Duration
	started   bool
	frozen    bool
	stopped   bool
}

var _ Controller = (*Wall)(nil)

// NewWall returns a clock reading now; nil means time.Now.
func NewWall(now func() time.Time) *Wall {
	if now == nil {
		now = time.Now
	}
	return &Wall{now: now}
}

// Start resets the clock to zero and starts counting.
func (c *Wall) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startedAt = c.now()
	c.frozenFor = 0
	c.started = true
	c.frozen = false
	c.stopped = false
}

func (c *Wall) Freeze() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started || c.frozen {
		return
	}
	c.frozen = true
	c.frozenAt = c.now()
}

func (c *Wall) Thaw() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.frozen || c.stopped {
		return
	}
	c.frozenFor += c.now().Sub(c.frozenAt)
	c.frozen = false
}

// Stop freezes the clock permanently until the next Start.
func (c *Wall) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started || c.stopped {
		return
	}
	if !c.frozen {
		c.frozen = true
		c.frozenAt = c.now()
	}
	c.stopped = true
}

func (c *Wall) Elapsed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return 0
	}
	at := c.now()
	if c.frozen {
		at = c.frozenAt
	}
	d := at.Sub(c.startedAt) - c.frozenFor
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}

// Manual is a Controller driven explicitly by the caller, used by the
// console and by tests.
type Manual struct {
	mu     sync.Mutex
	value  int
	frozen bool
}

var _ Controller = (*Manual)(nil)

func (m *Manual) Start() {
	m.mu.Lock()
	m.value = 0
	m.frozen = false
	m.mu.Unlock()
}

func (m *Manual) Freeze() { m.setFrozen(true) }
func (m *Manual) Thaw()   { m.setFrozen(false) }
func (m *Manual) Stop()   { m.setFrozen(true) }

func (m *Manual) setFrozen(v bool) {
	m.mu.Lock()
	m.frozen = v
	m.mu.Unlock()
}

// Advance moves the clock forward by d seconds unless it is frozen.
func (m *Manual) Advance(d int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frozen || d < 0 {
		return
	}
	m.value += d
}

// Set jumps to v if v is ahead of the current value.
func (m *Manual) Set(v int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frozen || v < m.value {
		return
	}
	m.value = v
}

func (m *Manual) Elapsed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value
}
