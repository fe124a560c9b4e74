package recorder

import (
	"context"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/screenrec/pkg/audio/types"
	"github.com/xaionaro-go/screenrec/pkg/audiosync"
	"github.com/xaionaro-go/screenrec/pkg/clock"
)

type fakeVideoSource struct {
	locker   sync.Mutex
	callback func(context.Context, VideoFrame)
	stopped  bool
}

func (v *fakeVideoSource) Start(_ context.Context, callback func(context.Context, VideoFrame)) error {
	v.locker.Lock()
	defer v.locker.Unlock()
	v.callback = callback
	return nil
}

func (v *fakeVideoSource) Stop(context.Context) error {
	v.locker.Lock()
	defer v.locker.Unlock()
	v.stopped = true
	return nil
}

func (v *fakeVideoSource) getCallback() func(context.Context, VideoFrame) {
	v.locker.Lock()
	defer v.locker.Unlock()
	return v.callback
}

type fakeAudioSource struct {
	locker    sync.Mutex
	format    types.Format
	startedAt clock.Ticks
	blocks    []AudioBlock
	released int
	started  bool
	flushed  bool
	closed   bool
}

func (a *fakeAudioSource) Format() types.Format { return a.format }

func (a *fakeAudioSource) Start(context.Context) error {
	a.locker.Lock()
	defer a.locker.Unlock()
	a.started = true
	return nil
}

func (a *fakeAudioSource) StartedAt() clock.Ticks { return a.startedAt }

func (a *fakeAudioSource) GetNextBlock(context.Context) (AudioBlock, bool) {
	a.locker.Lock()
	defer a.locker.Unlock()
	if len(a.blocks) == 0 {
		return AudioBlock{}, false
	}
	block := a.blocks[0]
	a.blocks = a.blocks[1:]
	return block, true
}

func (a *fakeAudioSource) ReleaseBlock(AudioBlock) {
	a.locker.Lock()
	defer a.locker.Unlock()
	a.released++
}

func (a *fakeAudioSource) Flush(context.Context) error {
	a.locker.Lock()
	defer a.locker.Unlock()
	a.flushed = true
	return nil
}

func (a *fakeAudioSource) Close() error {
	a.locker.Lock()
	defer a.locker.Unlock()
	a.closed = true
	return nil
}

func (a *fakeAudioSource) push(block AudioBlock) {
	a.locker.Lock()
	defer a.locker.Unlock()
	a.blocks = append(a.blocks, block)
}

func TestRunner(t *testing.T) {
	ctx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()

	mock := clock.NewMock()
	counter := clock.NewCounter(mock, clock.FrequencyHNS)
	enc := &fakeEncoder{AutoReclaimVideo: true, AutoReclaimAudio: true}
	video := &fakeVideoSource{}
	audio := &fakeAudioSource{format: stereoS16At48k}

	r := NewRunner(RunnerConfig{
		Session: Config{
			OutputPath: "/dev/null",
			FrameRate:  testFrameRate,
			VideoSize:  image.Point{X: 8, Y: 4},
		},
	}, &fakeEncoderFactory{Encoder: enc}, video, audio, counter)

	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return video.getCallback() != nil
	}, 5*time.Second, time.Millisecond)
	session := r.Session()
	require.NotNil(t, session)
	require.Equal(t, stereoS16At48k, enc.Config.Audio.Format)

	video.getCallback()(ctx, testFrame(counter.Now()))
	audio.push(s16Block(0, 0, 1440))

	// audio is polled and the stalled video timeline gets ticks
	require.Eventually(t, func() bool {
		mock.Add(100 * time.Millisecond)
		_, a, ticks := enc.snapshot()
		return len(a) == 1 && len(ticks) > 0
	}, 5*time.Second, 10*time.Millisecond)

	cancelFn()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}

	video.locker.Lock()
	require.True(t, video.stopped)
	video.locker.Unlock()
	audio.locker.Lock()
	require.True(t, audio.started)
	require.True(t, audio.flushed)
	require.True(t, audio.closed)
	require.Equal(t, 1, audio.released)
	audio.locker.Unlock()

	_, a, _ := enc.snapshot()
	require.Len(t, a, 2)
	require.Equal(t, uint32(960), a[0].Frames)
	require.Equal(t, uint32(480), a[1].Frames)
	require.True(t, enc.Drained)
	require.Equal(t, StateClosed, session.State(context.Background()))
}

func TestRunnerSynthesizesAudioClockFromCaptureStart(t *testing.T) {
	ctx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()

	mock := clock.NewMock()
	counter := clock.NewCounter(mock, clock.FrequencyHNS)
	enc := &fakeEncoder{AutoReclaimVideo: true, AutoReclaimAudio: true}
	video := &fakeVideoSource{}
	audio := &fakeAudioSource{format: stereoS16At48k, startedAt: counter.Now()}

	r := NewRunner(RunnerConfig{
		Session: Config{
			OutputPath: "/dev/null",
			FrameRate:  testFrameRate,
			VideoSize:  image.Point{X: 8, Y: 4},
		},
	}, &fakeEncoderFactory{Encoder: enc}, video, audio, counter)

	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Run(ctx)
	}()
	require.Eventually(t, func() bool {
		return video.getCallback() != nil
	}, 5*time.Second, time.Millisecond)

	// the first frame comes 3 seconds after the audio capture started,
	// and the audio device clock is 2 seconds behind
	mock.Add(3 * time.Second)
	start := counter.Now()
	video.getCallback()(ctx, testFrame(start))
	audio.push(s16Block(start-ms(2000), 3*48000, 960))
	audio.push(s16Block(start-ms(1980), 3*48000+960, 960))

	require.Eventually(t, func() bool {
		mock.Add(100 * time.Millisecond)
		_, a, _ := enc.snapshot()
		return len(a) == 2
	}, 5*time.Second, 10*time.Millisecond)

	cancelFn()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}

	_, a, _ := enc.snapshot()
	require.Len(t, a, 2)
	require.Equal(t, time.Duration(0), a[0].Timestamp)
	require.Equal(t, 20*time.Millisecond, a[1].Timestamp)
	stats := r.Session().Stats(context.Background())
	require.Equal(t, audiosync.ClockSourceSynthesized, stats.ClockSource)
	require.Zero(t, stats.AudioBlocksDiscarded)
}
