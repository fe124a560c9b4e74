package resampler

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/screenrec/pkg/audio/types"
	"github.com/xaionaro-go/screenrec/pkg/clock"
)

func stereoS16(rate types.SampleRate) types.Format {
	return types.Format{SampleRate: rate, Channels: 2, PCMFormat: types.PCMFormatS16LE}
}

func s16Block(t clock.Ticks, frames int, channels int, sample func(frameIdx, ch int) int16) types.Block {
	data := make([]byte, frames*channels*2)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			binary.LittleEndian.PutUint16(data[(i*channels+ch)*2:], uint16(sample(i, ch)))
		}
	}
	return types.Block{Data: data, Frames: uint32(frames), Time: t}
}

func TestResamplerIdentity(t *testing.T) {
	r, err := New(Config{Input: stereoS16(48000), Output: stereoS16(48000), ChunkFrames: 480})
	require.NoError(t, err)

	in := s16Block(1000, 960, 2, func(i, ch int) int16 { return int16(i*37 - ch*1000 - 16000) })
	require.NoError(t, r.Push(in))

	buf := make([]byte, r.ChunkSize())
	var out []byte
	for _, expectedTime := range []clock.Ticks{1000, 1000 + 100_000} {
		frames, ts, err := r.Pull(buf)
		require.NoError(t, err)
		require.Equal(t, uint32(480), frames)
		require.Equal(t, expectedTime, ts)
		out = append(out, buf...)
	}
	_, _, err = r.Pull(buf)
	require.ErrorIs(t, err, ErrNeedMoreInput)
	require.Equal(t, in.Data, out)
}

func TestResamplerRateConversion(t *testing.T) {
	in := types.Format{SampleRate: 48000, Channels: 2, PCMFormat: types.PCMFormatFloat32LE}
	r, err := New(Config{Input: in, Output: stereoS16(44100), ChunkFrames: 441})
	require.NoError(t, err)

	// one second of a 1kHz sine, pushed in 10ms blocks
	const blockFrames = 480
	data := make([]byte, blockFrames*int(in.BytesPerFrame()))
	buf := make([]byte, r.ChunkSize())
	var (
		total    int
		lastTime clock.Ticks = -1
	)
	for blockIdx := 0; blockIdx < 100; blockIdx++ {
		for i := 0; i < blockFrames; i++ {
			v := float32(math.Sin(2 * math.Pi * 1000 * float64(blockIdx*blockFrames+i) / 48000))
			binary.LittleEndian.PutUint32(data[i*8:], math.Float32bits(v))
			binary.LittleEndian.PutUint32(data[i*8+4:], math.Float32bits(-v))
		}
		require.NoError(t, r.Push(types.Block{
			Data:   data,
			Frames: blockFrames,
			Time:   clock.Ticks(blockIdx) * 100_000,
		}))
		for {
			frames, ts, err := r.Pull(buf)
			if err == ErrNeedMoreInput {
				break
			}
			require.NoError(t, err)
			require.Equal(t, uint32(441), frames)
			require.Greater(t, ts, lastTime)
			if lastTime >= 0 {
				require.InDelta(t, 100_000, int64(ts-lastTime), 1)
			}
			lastTime = ts
			total += int(frames)

			l := int16(binary.LittleEndian.Uint16(buf[0:]))
			rr := int16(binary.LittleEndian.Uint16(buf[2:]))
			require.InDelta(t, -int(l), int(rr), 1)
		}
	}

	r.Drain()
	for {
		frames, _, err := r.Pull(buf)
		if err == ErrNeedMoreInput {
			break
		}
		require.NoError(t, err)
		total += int(frames)
	}
	require.InDelta(t, 44100, total, 2)
	require.Error(t, r.Push(types.Block{Frames: 1, Silent: true}))
}

func TestResamplerChannels(t *testing.T) {
	mono := types.Format{SampleRate: 8000, Channels: 1, PCMFormat: types.PCMFormatS16LE}

	r, err := New(Config{Input: mono, Output: stereoS16(8000), ChunkFrames: 4})
	require.NoError(t, err)
	require.NoError(t, r.Push(s16Block(0, 4, 1, func(i, ch int) int16 { return int16(100 * (i + 1)) })))
	buf := make([]byte, r.ChunkSize())
	frames, _, err := r.Pull(buf)
	require.NoError(t, err)
	require.Equal(t, uint32(4), frames)
	for i := 0; i < 4; i++ {
		require.Equal(t, int16(100*(i+1)), int16(binary.LittleEndian.Uint16(buf[i*4:])))
		require.Equal(t, int16(100*(i+1)), int16(binary.LittleEndian.Uint16(buf[i*4+2:])))
	}

	r, err = New(Config{Input: stereoS16(8000), Output: mono, ChunkFrames: 2})
	require.NoError(t, err)
	require.NoError(t, r.Push(s16Block(0, 2, 2, func(i, ch int) int16 { return int16(1000 * ch) })))
	buf = make([]byte, r.ChunkSize())
	_, _, err = r.Pull(buf)
	require.NoError(t, err)
	require.Equal(t, int16(500), int16(binary.LittleEndian.Uint16(buf[0:])))

	_, err = New(Config{
		Input:  types.Format{SampleRate: 8000, Channels: 2, PCMFormat: types.PCMFormatS16LE},
		Output: types.Format{SampleRate: 8000, Channels: 6, PCMFormat: types.PCMFormatS16LE},
	})
	require.Error(t, err)
}

func TestResamplerSilenceAndGaps(t *testing.T) {
	r, err := New(Config{Input: stereoS16(48000), Output: stereoS16(48000), ChunkFrames: 480})
	require.NoError(t, err)

	require.NoError(t, r.Push(types.Block{Frames: 480, Time: 0, Silent: true}))
	// 50ms later than the end of the previous block
	require.NoError(t, r.Push(s16Block(100_000+500_000, 480, 2, func(i, ch int) int16 { return 1 })))
	require.Equal(t, uint64(2400), r.GapFrames())

	buf := make([]byte, r.ChunkSize())
	var (
		out      []byte
		lastTime clock.Ticks
	)
	for {
		_, ts, err := r.Pull(buf)
		if err == ErrNeedMoreInput {
			break
		}
		require.NoError(t, err)
		out = append(out, buf...)
		lastTime = ts
	}
	require.Len(t, out, (480+2400+480)*4)
	require.Equal(t, make([]byte, (480+2400)*4), out[:(480+2400)*4])
	require.Equal(t, clock.Ticks(600_000), lastTime)

	// the block is shorter than declared
	require.Error(t, r.Push(types.Block{Frames: 10, Data: make([]byte, 4)}))
}

func TestResamplerBufferTooSmall(t *testing.T) {
	r, err := New(Config{Input: stereoS16(48000), Output: stereoS16(48000), ChunkFrames: 480})
	require.NoError(t, err)
	_, _, err = r.Pull(make([]byte, 10))
	require.Error(t, err)
}

func TestResamplerLongGapRestartsTimeline(t *testing.T) {
	r, err := New(Config{Input: stereoS16(48000), Output: stereoS16(48000), ChunkFrames: 480})
	require.NoError(t, err)
	buf := make([]byte, r.ChunkSize())
	one := func(i, ch int) int16 { return 1 }

	// nothing pending: restarts immediately
	require.NoError(t, r.Push(s16Block(0, 480, 2, one)))
	_, ts, err := r.Pull(buf)
	require.NoError(t, err)
	require.Equal(t, clock.Ticks(0), ts)
	require.NoError(t, r.Push(s16Block(30_000_000, 480, 2, one)))
	frames, ts, err := r.Pull(buf)
	require.NoError(t, err)
	require.Equal(t, uint32(480), frames)
	require.Equal(t, clock.Ticks(30_000_000), ts)

	// a partial chunk is pending: it is flushed first
	require.NoError(t, r.Push(s16Block(30_100_000, 240, 2, one)))
	require.False(t, r.Ready())
	_, _, err = r.Pull(buf)
	require.ErrorIs(t, err, ErrNeedMoreInput)
	require.NoError(t, r.Push(s16Block(80_150_000, 480, 2, one)))
	require.True(t, r.Ready())

	frames, ts, err = r.Pull(buf)
	require.NoError(t, err)
	require.Equal(t, uint32(240), frames)
	require.Equal(t, clock.Ticks(30_100_000), ts)

	frames, ts, err = r.Pull(buf)
	require.NoError(t, err)
	require.Equal(t, uint32(480), frames)
	require.Equal(t, clock.Ticks(80_150_000), ts)

	require.False(t, r.Ready())
	_, _, err = r.Pull(buf)
	require.ErrorIs(t, err, ErrNeedMoreInput)
	require.Zero(t, r.GapFrames())
}
