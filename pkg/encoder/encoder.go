package encoder

import (
	"context"
	"image"
	"io"
	"time"
)

// VideoSample is a video frame stored in a pool slot. The encoder owns
// Image until it calls Callbacks.OnVideoDone with SlotIndex.
type VideoSample struct {
	SlotIndex     int
	Image         *image.RGBA
	Timestamp     time.Duration
	Duration      time.Duration
	Discontinuity bool
}

// AudioSample is a chunk of PCM audio stored in a pool slot. The encoder
// owns Data until it calls Callbacks.OnAudioDone with SlotIndex.
type AudioSample struct {
	SlotIndex int
	Data      []byte
	Frames    uint32
	Timestamp time.Duration
	Duration  time.Duration
}

// Encoder is an asynchronous encoder and container writer.
//
// Submitted samples of each stream are processed in the FIFO order.
// Submit methods never wait for the encoding itself.
type Encoder interface {
	io.Closer

	SubmitVideo(context.Context, VideoSample) error
	SubmitAudio(context.Context, AudioSample) error

	// SendTimelineTick tells the container that the video stream is
	// intentionally empty up to the given timestamp.
	SendTimelineTick(context.Context, time.Duration) error

	// Drain waits until all the submitted samples are processed and
	// finalizes the container. Close after Drain only releases resources;
	// Close without Drain aborts the output.
	Drain(context.Context) error

	GetStats(context.Context) (*Stats, error)
}

// Callbacks are called by the encoder from its own goroutines, possibly
// out of order across streams.
type Callbacks struct {
	OnVideoDone func(slotIdx int)
	OnAudioDone func(slotIdx int)
}

type Factory interface {
	New(context.Context, Config, Callbacks) (Encoder, error)
}
