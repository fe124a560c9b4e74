package resampler

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/xaionaro-go/screenrec/pkg/audio/types"
	"github.com/xaionaro-go/screenrec/pkg/clock"
)

var (
	ErrNeedMoreInput = errors.New("need more input")
)

const (
	DefaultGapTolerance = 20 * time.Millisecond
	DefaultMaxGapFill   = time.Second
)

type Config struct {
	Input     types.Format
	Output    types.Format
	Frequency clock.Frequency

	// ChunkFrames is the amount of output frames returned by a Pull
	// (except the last one while draining).
	ChunkFrames uint32

	// If a pushed block starts later than the end of the previous one by
	// more than GapTolerance, the gap is filled with silence. Gaps longer
	// than MaxGapFill are not filled; the output timeline restarts at the
	// block's time instead.
	GapTolerance time.Duration
	MaxGapFill   time.Duration
}

type sampleDecoder func(src []byte) float32
type sampleEncoder func(dst []byte, v float32)

var pcmDecoders = [types.EndOfPCMFormat]sampleDecoder{
	types.PCMFormatS16LE: func(src []byte) float32 {
		return float32(int16(binary.LittleEndian.Uint16(src))) / 0x8000
	},
	types.PCMFormatFloat32LE: func(src []byte) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(src))
	},
}

var pcmEncoders = [types.EndOfPCMFormat]sampleEncoder{
	types.PCMFormatS16LE: func(dst []byte, v float32) {
		s := math.Round(float64(v) * 0x8000)
		switch {
		case s > math.MaxInt16:
			s = math.MaxInt16
		case s < math.MinInt16:
			s = math.MinInt16
		}
		binary.LittleEndian.PutUint16(dst, uint16(int16(s)))
	},
	types.PCMFormatFloat32LE: func(dst []byte, v float32) {
		binary.LittleEndian.PutUint32(dst, math.Float32bits(v))
	},
}

// Resampler converts PCM audio between formats (sample rate, amount of
// channels and sample format) using linear interpolation.
//
// Input is pushed block by block, output is pulled in fixed-size chunks
// together with the capture time of the first frame of each chunk.
//
// Resampler is not thread-safe.
type Resampler struct {
	config        Config
	inSampleSize  uint32
	outSampleSize uint32
	decode        sampleDecoder
	encode        sampleEncoder
	mixChannels   func(dst []float32, src []byte)

	// pending contains not yet consumed input frames, already converted
	// to the output channel layout.
	pending       []float32
	baseTime      clock.Ticks
	baseDropped   uint64
	baseSet       bool
	phase         uint64
	draining      bool
	gapFramesUsed uint64

	// next collects input received after a gap too long to be filled;
	// it becomes pending (with baseTime = rebaseTime) once the frames
	// preceding the gap are pulled.
	next          []float32
	rebaseTime    clock.Ticks
	rebasePending bool
}

func New(cfg Config) (*Resampler, error) {
	if err := cfg.Input.Validate(); err != nil {
		return nil, fmt.Errorf("invalid input format %s: %w", cfg.Input, err)
	}
	if err := cfg.Output.Validate(); err != nil {
		return nil, fmt.Errorf("invalid output format %s: %w", cfg.Output, err)
	}
	if cfg.Frequency <= 0 {
		cfg.Frequency = clock.DefaultFrequency
	}
	if cfg.ChunkFrames == 0 {
		cfg.ChunkFrames = uint32(cfg.Output.SampleRate / 50)
	}
	if cfg.GapTolerance == 0 {
		cfg.GapTolerance = DefaultGapTolerance
	}
	if cfg.MaxGapFill == 0 {
		cfg.MaxGapFill = DefaultMaxGapFill
	}

	r := &Resampler{
		config:        cfg,
		inSampleSize:  cfg.Input.PCMFormat.Size(),
		outSampleSize: cfg.Output.PCMFormat.Size(),
		decode:        pcmDecoders[cfg.Input.PCMFormat],
		encode:        pcmEncoders[cfg.Output.PCMFormat],
	}
	if err := r.initChannelMixer(); err != nil {
		return nil, fmt.Errorf("unable to initialize a resampler from %s to %s: %w", cfg.Input, cfg.Output, err)
	}
	return r, nil
}

func (r *Resampler) initChannelMixer() error {
	inCh := int(r.config.Input.Channels)
	outCh := int(r.config.Output.Channels)
	sampleSize := int(r.inSampleSize)
	switch {
	case inCh == outCh:
		r.mixChannels = func(dst []float32, src []byte) {
			for ch := range dst {
				dst[ch] = r.decode(src[ch*sampleSize:])
			}
		}
	case inCh == 1:
		r.mixChannels = func(dst []float32, src []byte) {
			v := r.decode(src)
			for ch := range dst {
				dst[ch] = v
			}
		}
	case outCh == 1:
		r.mixChannels = func(dst []float32, src []byte) {
			var sum float32
			for ch := 0; ch < inCh; ch++ {
				sum += r.decode(src[ch*sampleSize:])
			}
			dst[0] = sum / float32(inCh)
		}
	case inCh > outCh:
		r.mixChannels = func(dst []float32, src []byte) {
			for ch := range dst {
				dst[ch] = r.decode(src[ch*sampleSize:])
			}
		}
	default:
		return fmt.Errorf("do not know how to convert %d channels to %d", inCh, outCh)
	}
	return nil
}

func (r *Resampler) InputFormat() types.Format {
	return r.config.Input
}

func (r *Resampler) OutputFormat() types.Format {
	return r.config.Output
}

func (r *Resampler) ChunkFrames() uint32 {
	return r.config.ChunkFrames
}

// ChunkSize returns the size (in bytes) of the buffer sufficient for any Pull.
func (r *Resampler) ChunkSize() uint32 {
	return r.config.ChunkFrames * r.config.Output.BytesPerFrame()
}

func (r *Resampler) pendingFrames() uint64 {
	return uint64(len(r.pending)) / uint64(r.config.Output.Channels)
}

func (r *Resampler) pendingEndTime() clock.Ticks {
	return r.inputFrameTime(r.baseDropped + r.pendingFrames())
}

func (r *Resampler) inputFrameTime(framesSinceBase uint64) clock.Ticks {
	return r.baseTime + clock.Ticks(clock.MulDiv(
		int64(framesSinceBase),
		int64(r.config.Frequency),
		int64(r.config.Input.SampleRate),
	))
}

// Push adds input audio. The block's Time must be in the session clock
// domain. A Silent block is treated as zeros.
func (r *Resampler) Push(block types.Block) error {
	if r.draining {
		return fmt.Errorf("the resampler is draining")
	}
	if block.Frames == 0 {
		return nil
	}
	inFrameSize := r.config.Input.BytesPerFrame()
	if !block.Silent && uint64(len(block.Data)) < uint64(block.Frames)*uint64(inFrameSize) {
		return fmt.Errorf("the block is expected to contain %d frames (%d bytes), but contains only %d bytes", block.Frames, uint64(block.Frames)*uint64(inFrameSize), len(block.Data))
	}

	outCh := int(r.config.Output.Channels)
	target := &r.pending
	switch {
	case !r.baseSet:
		r.baseTime = block.Time
		r.baseSet = true
	case r.rebasePending:
		nextEnd := r.rebaseTime + r.framesDuration(uint64(len(r.next)/outCh))
		if !r.fillGap(&r.next, nextEnd, block.Time) {
			// only one restart is queued at a time
			r.fillGap(&r.next, nextEnd, nextEnd+clock.FromDuration(r.config.MaxGapFill, r.config.Frequency))
		}
		target = &r.next
	case !r.fillGap(&r.pending, r.pendingEndTime(), block.Time):
		if r.pendingFrames() == 0 {
			r.rebase(block.Time, nil)
			break
		}
		r.rebaseTime = block.Time
		r.rebasePending = true
		target = &r.next
	}

	offset := len(*target)
	*target = append(*target, make([]float32, int(block.Frames)*outCh)...)
	if block.Silent {
		return nil
	}
	buf := *target
	for frameIdx := 0; frameIdx < int(block.Frames); frameIdx++ {
		dst := buf[offset+frameIdx*outCh : offset+(frameIdx+1)*outCh]
		r.mixChannels(dst, block.Data[frameIdx*int(inFrameSize):])
	}
	return nil
}

func (r *Resampler) framesDuration(frames uint64) clock.Ticks {
	return clock.Ticks(clock.MulDiv(
		int64(frames),
		int64(r.config.Frequency),
		int64(r.config.Input.SampleRate),
	))
}

// fillGap appends silence to dst if blockTime is later than endTime by
// more than GapTolerance. It returns false (and appends nothing) if the
// gap is longer than MaxGapFill.
func (r *Resampler) fillGap(dst *[]float32, endTime, blockTime clock.Ticks) bool {
	gap := blockTime - endTime
	if gap <= clock.FromDuration(r.config.GapTolerance, r.config.Frequency) {
		return true
	}
	if gap > clock.FromDuration(r.config.MaxGapFill, r.config.Frequency) {
		return false
	}
	frames := clock.MulDiv(int64(gap), int64(r.config.Input.SampleRate), int64(r.config.Frequency))
	*dst = append(*dst, make([]float32, int(frames)*int(r.config.Output.Channels))...)
	r.gapFramesUsed += uint64(frames)
	return true
}

// rebase restarts the timeline at t, dropping whatever is left pending.
func (r *Resampler) rebase(t clock.Ticks, pending []float32) {
	r.pending = append(r.pending[:0], pending...)
	r.baseTime = t
	r.baseDropped = 0
	r.phase = 0
	r.next = nil
	r.rebasePending = false
}

// GapFrames returns the amount of silent input frames inserted to fill
// timestamp gaps.
func (r *Resampler) GapFrames() uint64 {
	return r.gapFramesUsed
}

// Drain makes the following Pull calls return the remaining audio, even
// if it does not fill a complete chunk. After the remaining audio is
// consumed Pull returns ErrNeedMoreInput.
func (r *Resampler) Drain() {
	r.draining = true
}

// Ready reports whether Pull would return audio.
func (r *Resampler) Ready() bool {
	if r.rebasePending && r.readyFrames() == 0 {
		r.rebase(r.rebaseTime, r.next)
	}
	return r.readyFrames() > 0
}

// readyFrames returns the amount of output frames the next Pull would
// produce.
func (r *Resampler) readyFrames() uint32 {
	maxFrames := r.config.ChunkFrames
	inRate := uint64(r.config.Input.SampleRate)
	outRate := uint64(r.config.Output.SampleRate)
	available := r.pendingFrames()
	flushing := r.draining || r.rebasePending

	var frames uint32
	for frames < maxFrames {
		pos := r.phase + uint64(frames)*inRate
		idx, frac := pos/outRate, pos%outRate
		needed := idx + 1
		if frac != 0 && !flushing {
			needed++
		}
		if needed > available {
			break
		}
		frames++
	}
	if frames < maxFrames && !flushing {
		return 0
	}
	return frames
}

// Pull writes the next chunk of output audio into dst and returns the
// amount of frames written and the time of the first of them.
func (r *Resampler) Pull(dst []byte) (uint32, clock.Ticks, error) {
	outFrameSize := r.config.Output.BytesPerFrame()
	maxFrames := r.config.ChunkFrames
	if uint32(len(dst))/outFrameSize < maxFrames {
		return 0, 0, fmt.Errorf("the buffer is too small: %d < %d", len(dst), maxFrames*outFrameSize)
	}

	if !r.Ready() {
		return 0, 0, ErrNeedMoreInput
	}
	frames := r.readyFrames()
	inRate := uint64(r.config.Input.SampleRate)
	outRate := uint64(r.config.Output.SampleRate)
	available := r.pendingFrames()

	ts := r.inputFrameTime(r.baseDropped) + clock.Ticks(clock.MulDiv(
		int64(r.phase),
		int64(r.config.Frequency),
		int64(inRate*outRate),
	))

	outCh := int(r.config.Output.Channels)
	sampleSize := int(r.outSampleSize)
	for frameIdx := 0; frameIdx < int(frames); frameIdx++ {
		pos := r.phase + uint64(frameIdx)*inRate
		idx, frac := pos/outRate, pos%outRate
		weight := float32(frac) / float32(outRate)
		next := idx + 1
		if next >= available {
			next = idx
		}
		for ch := 0; ch < outCh; ch++ {
			a := r.pending[int(idx)*outCh+ch]
			b := r.pending[int(next)*outCh+ch]
			r.encode(dst[(frameIdx*outCh+ch)*sampleSize:], a+(b-a)*weight)
		}
	}

	r.phase += uint64(frames) * inRate
	consumed := r.phase / outRate
	if consumed > available {
		consumed = available
	}
	r.phase -= consumed * outRate
	r.pending = r.pending[:copy(r.pending, r.pending[int(consumed)*outCh:])]
	r.baseDropped += consumed
	if r.rebasePending && frames < maxFrames {
		r.rebase(r.rebaseTime, r.next)
	}
	return frames, ts, nil
}
