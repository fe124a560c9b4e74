package clock

import (
	"time"

	benbclock "github.com/benbjohnson/clock"
)

// Clock is the wall clock a Counter is derived from; tests use a Mock.
type Clock = benbclock.Clock
type Mock = benbclock.Mock

var wallClock Clock = benbclock.New()

// Get returns the real wall clock.
func Get() Clock {
	return wallClock
}

// NewMock returns a manually advanced clock.
func NewMock() *Mock {
	return benbclock.NewMock()
}

// Counter is a monotonic tick counter derived from a Clock.
//
// Readings are relative to the moment the Counter was created, so
// readings of different Counters are not comparable.
type Counter struct {
	Clock     Clock
	Frequency Frequency
	epoch     time.Time
}

func NewCounter(clk Clock, freq Frequency) *Counter {
	if clk == nil {
		clk = Get()
	}
	if freq <= 0 {
		freq = DefaultFrequency
	}
	return &Counter{
		Clock:     clk,
		Frequency: freq,
		epoch:     clk.Now(),
	}
}

func (c *Counter) Now() Ticks {
	return c.At(c.Clock.Now())
}

// At converts a wall time taken from the same Clock into a counter reading.
func (c *Counter) At(t time.Time) Ticks {
	return FromDuration(t.Sub(c.epoch), c.Frequency)
}

// Time converts a counter reading back to a time.Time.
func (c *Counter) Time(t Ticks) time.Time {
	return c.epoch.Add(t.Duration(c.Frequency))
}
