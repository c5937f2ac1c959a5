package core

import "time"

// Clock measures wall time across frames. Start it once, then call Update
// just before reading Elapsed.
type Clock struct {
	started time.Time
	elapsed time.Duration
}

func NewClock() *Clock {
	return &Clock{}
}

// Start begins timing and clears any previous elapsed reading.
func (c *Clock) Start() {
	c.started = time.Now()
	c.elapsed = 0
}

// Update refreshes the elapsed reading. A stopped clock is left untouched.
func (c *Clock) Update() {
	if !c.started.IsZero() {
		c.elapsed = time.Since(c.started)
	}
}

// Stop halts the clock. The last elapsed reading stays available.
func (c *Clock) Stop() {
	c.started = time.Time{}
}

// Elapsed returns the time measured by the most recent Update.
func (c *Clock) Elapsed() time.Duration {
	return c.elapsed
}
