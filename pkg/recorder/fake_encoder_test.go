package recorder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xaionaro-go/screenrec/pkg/encoder"
)

type fakeEncoder struct {
	locker    sync.Mutex
	Config    encoder.Config
	Callbacks encoder.Callbacks

	AutoReclaimVideo bool
	AutoReclaimAudio bool

	Video   []encoder.VideoSample
	Audio   []encoder.AudioSample
	Ticks   []time.Duration
	Drained bool
	Closed  bool
}

var _ encoder.Encoder = (*fakeEncoder)(nil)

func (e *fakeEncoder) SubmitVideo(_ context.Context, sample encoder.VideoSample) error {
	e.locker.Lock()
	if e.Drained || e.Closed {
		e.locker.Unlock()
		return fmt.Errorf("closed")
	}
	e.Video = append(e.Video, sample)
	autoReclaim := e.AutoReclaimVideo
	e.locker.Unlock()
	if autoReclaim {
		e.Callbacks.OnVideoDone(sample.SlotIndex)
	}
	return nil
}

func (e *fakeEncoder) SubmitAudio(_ context.Context, sample encoder.AudioSample) error {
	e.locker.Lock()
	if e.Drained || e.Closed {
		e.locker.Unlock()
		return fmt.Errorf("closed")
	}
	sample.Data = append([]byte{}, sample.Data...)
	e.Audio = append(e.Audio, sample)
	autoReclaim := e.AutoReclaimAudio
	e.locker.Unlock()
	if autoReclaim {
		e.Callbacks.OnAudioDone(sample.SlotIndex)
	}
	return nil
}

func (e *fakeEncoder) SendTimelineTick(_ context.Context, ts time.Duration) error {
	e.locker.Lock()
	defer e.locker.Unlock()
	e.Ticks = append(e.Ticks, ts)
	return nil
}

func (e *fakeEncoder) Drain(context.Context) error {
	e.locker.Lock()
	defer e.locker.Unlock()
	e.Drained = true
	return nil
}

func (e *fakeEncoder) Close() error {
	e.locker.Lock()
	defer e.locker.Unlock()
	e.Closed = true
	return nil
}

func (e *fakeEncoder) GetStats(context.Context) (*encoder.Stats, error) {
	e.locker.Lock()
	defer e.locker.Unlock()
	return &encoder.Stats{
		VideoFramesWrote: uint64(len(e.Video)),
		TimelineTicks:    uint64(len(e.Ticks)),
	}, nil
}

// ReclaimVideo returns the slot of the idx-th submitted frame.
func (e *fakeEncoder) ReclaimVideo(idx int) {
	e.locker.Lock()
	slotIdx := e.Video[idx].SlotIndex
	e.locker.Unlock()
	e.Callbacks.OnVideoDone(slotIdx)
}

func (e *fakeEncoder) snapshot() ([]encoder.VideoSample, []encoder.AudioSample, []time.Duration) {
	e.locker.Lock()
	defer e.locker.Unlock()
	return append([]encoder.VideoSample{}, e.Video...),
		append([]encoder.AudioSample{}, e.Audio...),
		append([]time.Duration{}, e.Ticks...)
}

type fakeEncoderFactory struct {
	Encoder *fakeEncoder
	Err     error
}

func (f *fakeEncoderFactory) New(
	_ context.Context,
	cfg encoder.Config,
	callbacks encoder.Callbacks,
) (encoder.Encoder, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	f.Encoder.Config = cfg
	f.Encoder.Callbacks = callbacks
	return f.Encoder, nil
}
