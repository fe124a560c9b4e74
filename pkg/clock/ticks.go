package clock

import (
	"fmt"
	"math/bits"
	"time"
)

// Ticks is a reading (or a span) of a monotonic counter running at some
// Frequency.
type Ticks int64

// Frequency is the amount of Ticks per second.
type Frequency int64

const (
	// FrequencyHNS is the frequency of 100-nanosecond units.
	FrequencyHNS Frequency = 10_000_000

	// DefaultFrequency is the session counter frequency used unless
	// configured otherwise.
	DefaultFrequency = FrequencyHNS
)

func (f Frequency) String() string {
	return fmt.Sprintf("%dHz", int64(f))
}

// Period returns the duration of one tick.
func (f Frequency) Period() time.Duration {
	return time.Duration(MulDiv(1, int64(time.Second), int64(f)))
}

// MulDiv returns a*b/c rounded towards zero without overflowing the
// intermediate product.
func MulDiv(a, b, c int64) int64 {
	return mulDiv(a, b, c, false)
}

// MulDivRoundUp returns a*b/c rounded away from zero without overflowing
// the intermediate product.
func MulDivRoundUp(a, b, c int64) int64 {
	return mulDiv(a, b, c, true)
}

func mulDiv(a, b, c int64, roundUp bool) int64 {
	if c == 0 {
		panic("MulDiv: division by zero")
	}
	negative := false
	ua, ub, uc := abs(a, &negative), abs(b, &negative), abs(c, &negative)

	hi, lo := bits.Mul64(ua, ub)
	if hi >= uc {
		if negative {
			return minInt64
		}
		return maxInt64
	}
	q, r := bits.Div64(hi, lo, uc)
	if roundUp && r != 0 {
		q++
	}
	if q > maxInt64 {
		if negative {
			return minInt64
		}
		return maxInt64
	}
	if negative {
		return -int64(q)
	}
	return int64(q)
}

const (
	maxInt64 = 1<<63 - 1
	minInt64 = -1 << 63
)

func abs(v int64, negative *bool) uint64 {
	if v >= 0 {
		return uint64(v)
	}
	*negative = !*negative
	return uint64(-v)
}

// Convert rescales t from one frequency to another.
func (t Ticks) Convert(from, to Frequency) Ticks {
	if from == to {
		return t
	}
	return Ticks(MulDiv(int64(t), int64(to), int64(from)))
}

// Duration interprets t as a span of a counter running at freq.
func (t Ticks) Duration(freq Frequency) time.Duration {
	return time.Duration(MulDiv(int64(t), int64(time.Second), int64(freq)))
}

// FromDuration returns the amount of ticks of freq covering d.
func FromDuration(d time.Duration, freq Frequency) Ticks {
	return Ticks(MulDiv(int64(d), int64(freq), int64(time.Second)))
}
