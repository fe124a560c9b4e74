package audiosync

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/screenrec/pkg/audio/types"
	"github.com/xaionaro-go/screenrec/pkg/clock"
)

func TestAlignPassThrough(t *testing.T) {
	in := types.Block{Data: make([]byte, 480*4), Frames: 480, Time: ms(2000)}
	out, outcome := Align(in, ms(2000), 48000, 4, freq)
	require.Equal(t, OutcomePassThrough, outcome)
	require.Equal(t, in, out)
}

func TestAlignTrim(t *testing.T) {
	data := make([]byte, 480*4)
	for i := range data {
		data[i] = byte(i)
	}
	start := ms(2000)
	in := types.Block{Data: data, Frames: 480, Time: start - ms(5), Position: 1000}

	out, outcome := Align(in, start, 48000, 4, freq)
	require.Equal(t, OutcomeTrimmed, outcome)
	require.Equal(t, uint32(240), out.Frames)
	require.Equal(t, uint64(1240), out.Position)
	require.Equal(t, start, out.Time)
	require.Equal(t, data[240*4:], out.Data)
}

func TestAlignTrimRoundsUp(t *testing.T) {
	start := ms(1000)
	in := types.Block{Frames: 100, Time: start - 1, Silent: true}
	out, outcome := Align(in, start, 44100, 4, freq)
	require.Equal(t, OutcomeTrimmed, outcome)
	require.Equal(t, uint32(99), out.Frames)
	require.Nil(t, out.Data)
	require.GreaterOrEqual(t, out.Time, start)
}

func TestAlignDiscard(t *testing.T) {
	start := ms(2000)
	for _, early := range []clock.Ticks{ms(10), ms(20), ms(10000)} {
		_, outcome := Align(types.Block{Data: make([]byte, 480*4), Frames: 480, Time: start - early}, start, 48000, 4, freq)
		require.Equal(t, OutcomeDiscarded, outcome, early)
	}
}

func TestAlignNeverEmitsBeforeStart(t *testing.T) {
	start := ms(7000)
	for early := clock.Ticks(0); early < ms(20); early += 997 {
		out, outcome := Align(types.Block{Frames: 480, Time: start - early}, start, 48000, 4, freq)
		if outcome == OutcomeDiscarded {
			continue
		}
		require.GreaterOrEqual(t, out.Time, start)
		// frames are skipped only as much as needed
		require.Less(t, uint32(480)-out.Frames, uint32(clock.MulDiv(int64(early), 48000, int64(freq)))+2)
	}
}
