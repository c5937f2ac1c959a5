package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClockMeasuresElapsedTime(t *testing.T) {
	c := NewClock()
	c.Start()
	time.Sleep(5 * time.Millisecond)
	c.Update()

	assert.GreaterOrEqual(t, c.Elapsed(), 5*time.Millisecond)
}

func TestClockStartResetsElapsed(t *testing.T) {
	c := NewClock()
	c.Start()
	time.Sleep(time.Millisecond)
	c.Update()
	assert.NotZero(t, c.Elapsed())

	c.Start()
	assert.Zero(t, c.Elapsed())
}

func TestStoppedClockKeepsLastReading(t *testing.T) {
	c := NewClock()
	c.Start()
	time.Sleep(time.Millisecond)
	c.Update()
	reading := c.Elapsed()

	c.Stop()
	c.Update()
	assert.Equal(t, reading, c.Elapsed())
}

func TestUnstartedClockDoesNotAdvance(t *testing.T) {
	c := NewClock()
	c.Update()
	assert.Zero(t, c.Elapsed())
}
