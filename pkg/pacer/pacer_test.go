package pacer

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/screenrec/pkg/clock"
)

const freq = clock.FrequencyHNS

func TestPacerValidation(t *testing.T) {
	_, err := New(0, freq)
	require.Error(t, err)
	_, err = New(30, 0)
	require.Error(t, err)
}

func TestPacerFirstFrameAlwaysAccepted(t *testing.T) {
	p, err := New(30, freq)
	require.NoError(t, err)
	require.True(t, p.Accept(123456))
	require.False(t, p.Accept(123457))

	p.Reset()
	require.True(t, p.Accept(123458))
}

func TestPacerDecimation(t *testing.T) {
	// 144Hz source into 60 fps
	p, err := New(60, freq)
	require.NoError(t, err)

	accepted := 0
	for i := int64(0); i < 144*10; i++ {
		if p.Accept(clock.Ticks(i * int64(freq) / 144)) {
			accepted++
		}
	}
	require.InDelta(t, 600, accepted, 1)
}

func TestPacerSourceSlowerThanTarget(t *testing.T) {
	p, err := New(60, freq)
	require.NoError(t, err)
	for i := int64(0); i < 100; i++ {
		require.True(t, p.Accept(clock.Ticks(i*int64(freq)/30)), i)
	}
}

func TestPacerSpacing(t *testing.T) {
	const frameRate = 60
	period := clock.Ticks(int64(freq) / frameRate)
	epsilon := period / 4

	p, err := New(frameRate, freq, OptionMaxLateness(epsilon))
	require.NoError(t, err)

	// jittery timestamps, strictly increasing
	var (
		ts       clock.Ticks
		last     clock.Ticks
		haveLast bool
	)
	steps := []clock.Ticks{period / 3, period / 7, period / 2, period * 3, 11, period - 1, period / 5}
	for i := 0; i < 10000; i++ {
		ts += steps[i%len(steps)]
		if !p.Accept(ts) {
			continue
		}
		if haveLast {
			require.GreaterOrEqual(t, ts-last, period-epsilon, "frame #%d", i)
		}
		last, haveLast = ts, true
	}
}

func TestPacerNoCatchUpBurstAfterStall(t *testing.T) {
	p, err := New(10, freq)
	require.NoError(t, err)
	period := p.Period()

	require.True(t, p.Accept(0))
	require.True(t, p.Accept(period))

	// nothing for five seconds, then a 100Hz source again
	ts := clock.Ticks(5 * int64(freq))
	require.True(t, p.Accept(ts))
	accepted := 0
	for i := 1; i <= 100; i++ {
		if p.Accept(ts + clock.Ticks(i)*period/10) {
			accepted++
		}
	}
	require.Equal(t, 10, accepted)
}
