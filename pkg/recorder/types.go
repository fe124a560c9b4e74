package recorder

import (
	"context"
	"image"

	"github.com/xaionaro-go/screenrec/pkg/audio/types"
	"github.com/xaionaro-go/screenrec/pkg/clock"
)

// VideoFrame is a captured frame; Image is borrowed only for the duration
// of the NewFrame call.
type VideoFrame struct {
	Image image.Image

	// Region is the part of Image to record; empty means the whole image.
	Region image.Rectangle

	// Time is the capture instant in the session clock domain.
	Time clock.Ticks
}

type AudioBlock = types.Block

type VideoSource interface {
	Start(ctx context.Context, callback func(context.Context, VideoFrame)) error
	Stop(ctx context.Context) error
}

type AudioSource interface {
	Format() types.Format
	Start(ctx context.Context) error

	// StartedAt returns the session counter reading at the moment the
	// capture started; it corresponds to the stream position zero.
	StartedAt() clock.Ticks

	// GetNextBlock returns the oldest captured block, if any. The block is
	// valid until ReleaseBlock.
	GetNextBlock(ctx context.Context) (AudioBlock, bool)
	ReleaseBlock(AudioBlock)

	// Flush stops the capture; the already captured blocks are still
	// available through GetNextBlock.
	Flush(ctx context.Context) error
	Close() error
}
