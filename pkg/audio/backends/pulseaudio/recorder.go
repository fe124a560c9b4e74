// Package pulseaudio captures the audio that is being played (the monitor
// of the default sink) through PulseAudio.
package pulseaudio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
	"github.com/xaionaro-go/screenrec/pkg/audio/types"
	"github.com/xaionaro-go/screenrec/pkg/clock"
	"github.com/xaionaro-go/screenrec/pkg/recorder"
	"github.com/xaionaro-go/screenrec/pkg/ringbuffer"
	"github.com/xaionaro-go/xsync"
)

const (
	DefaultSampleRate = 44100
	DefaultChannels   = 2
	DefaultBuffer     = time.Second
	DefaultLatency    = 20 * time.Millisecond

	applicationName = "screenrec"
)

type Config struct {
	SampleRate types.SampleRate
	Channels   types.Channel

	// Buffer is how much captured audio is kept until it is polled; the
	// oldest audio is lost on overflow.
	Buffer time.Duration

	Latency time.Duration
}

func (cfg Config) withDefaults() Config {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.Channels == 0 {
		cfg.Channels = DefaultChannels
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultBuffer
	}
	if cfg.Latency <= 0 {
		cfg.Latency = DefaultLatency
	}
	return cfg
}

// Recorder is a loopback capture of the default output device.
type Recorder struct {
	locker  xsync.Mutex
	Config  Config
	Counter *clock.Counter

	client *pulse.Client
	stream *pulse.RecordStream
	buffer *ringbuffer.RingBuffer[types.Block]
	writer *captureWriter
}

var _ recorder.AudioSource = (*Recorder)(nil)

func New(cfg Config, counter *clock.Counter) *Recorder {
	if counter == nil {
		counter = clock.NewCounter(nil, 0)
	}
	return &Recorder{
		Config:  cfg.withDefaults(),
		Counter: counter,
	}
}

func (r *Recorder) Format() types.Format {
	return types.Format{
		SampleRate: r.Config.SampleRate,
		Channels:   r.Config.Channels,
		PCMFormat:  types.PCMFormatS16LE,
	}
}

func (r *Recorder) Start(ctx context.Context) error {
	return xsync.DoA1R1(ctx, &r.locker, r.startLocked, ctx)
}

func (r *Recorder) startLocked(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Start")
	defer func() { logger.Debugf(ctx, "/Start: %v", _err) }()
	if r.stream != nil {
		return fmt.Errorf("already started")
	}

	var channelOpt pulse.RecordOption
	switch r.Config.Channels {
	case 1:
		channelOpt = pulse.RecordMono
	case 2:
		channelOpt = pulse.RecordStereo
	default:
		return fmt.Errorf("unsupported amount of channels: %d", r.Config.Channels)
	}

	c, err := pulse.NewClient(pulse.ClientApplicationName(applicationName))
	if err != nil {
		return fmt.Errorf("unable to open a client to Pulse: %w", err)
	}
	defer func() {
		if _err != nil {
			c.Close()
		}
	}()

	sink, err := c.DefaultSink()
	if err != nil {
		return fmt.Errorf("unable to get the default sink: %w", err)
	}
	logger.Debugf(ctx, "capturing the monitor of sink '%s'", sink.Name())

	r.buffer = ringbuffer.New[types.Block](r.blocksCapacity())
	r.writer = newCaptureWriter(ctx, r.Format(), r.Counter, r.buffer)
	stream, err := c.NewRecord(
		r.writer,
		pulse.RecordMonitor(sink),
		pulse.RecordSampleRate(int(r.Config.SampleRate)),
		channelOpt,
		pulse.RecordLatency(r.Config.Latency.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("unable to initialize a record stream: %w", err)
	}

	r.writer.Reset(r.Counter.Now())
	stream.Start()
	r.client = c
	r.stream = stream
	return nil
}

// blocksCapacity estimates how many blocks fit into the configured buffer
// given that Pulse delivers roughly one block per latency period.
func (r *Recorder) blocksCapacity() uint {
	blocks := uint(r.Config.Buffer / r.Config.Latency)
	if blocks < 4 {
		blocks = 4
	}
	return blocks
}

func (r *Recorder) StartedAt() clock.Ticks {
	return xsync.DoR1(context.Background(), &r.locker, func() clock.Ticks {
		if r.writer == nil {
			return 0
		}
		return r.writer.StartedAt()
	})
}

func (r *Recorder) GetNextBlock(ctx context.Context) (types.Block, bool) {
	buffer := xsync.DoR1(xsync.WithNoLogging(ctx, true), &r.locker, func() *ringbuffer.RingBuffer[types.Block] {
		return r.buffer
	})
	if buffer == nil {
		return types.Block{}, false
	}
	return buffer.Pop(ctx)
}

func (r *Recorder) ReleaseBlock(block types.Block) {
	r.locker.Do(xsync.WithNoLogging(context.Background(), true), func() {
		if r.writer != nil {
			r.writer.Recycle(block.Data)
		}
	})
}

// Flush stops the capture; the captured audio remains available.
func (r *Recorder) Flush(ctx context.Context) error {
	return xsync.DoR1(ctx, &r.locker, func() error {
		if r.stream == nil {
			return nil
		}
		r.stream.Stop()
		if err := r.stream.Error(); err != nil {
			return fmt.Errorf("an error occurred during capture: %w", err)
		}
		return nil
	})
}

func (r *Recorder) Close() error {
	return xsync.DoR1(context.Background(), &r.locker, func() error {
		var result *multierror.Error
		if r.stream != nil {
			result = multierror.Append(result, closeStream(r.stream))
			r.stream = nil
		}
		if r.client != nil {
			r.client.Close()
			r.client = nil
		}
		return result.ErrorOrNil()
	})
}

func closeStream(stream *pulse.RecordStream) (err error) {
	defer func() {
		r := recover()
		if r != nil {
			err = fmt.Errorf("got a panic: %v", r)
		}
	}()
	stream.Close()
	return
}

// captureWriter receives the captured audio from Pulse and turns it into
// blocks.
type captureWriter struct {
	ctx     context.Context
	format  types.Format
	counter *clock.Counter
	buffer  *ringbuffer.RingBuffer[types.Block]
	buffers sync.Pool

	locker    sync.Mutex
	startedAt clock.Ticks
	position  uint64
	partial   []byte
	lost      uint64
}

var _ pulse.Writer = (*captureWriter)(nil)

func newCaptureWriter(
	ctx context.Context,
	format types.Format,
	counter *clock.Counter,
	buffer *ringbuffer.RingBuffer[types.Block],
) *captureWriter {
	return &captureWriter{
		ctx:     ctx,
		format:  format,
		counter: counter,
		buffer:  buffer,
	}
}

func (w *captureWriter) Format() byte {
	return proto.FormatInt16LE
}

func (w *captureWriter) Reset(now clock.Ticks) {
	w.locker.Lock()
	defer w.locker.Unlock()
	w.startedAt = now
	w.position = 0
	w.partial = w.partial[:0]
}

func (w *captureWriter) StartedAt() clock.Ticks {
	w.locker.Lock()
	defer w.locker.Unlock()
	return w.startedAt
}

func (w *captureWriter) Write(p []byte) (int, error) {
	w.WriteAt(p, w.counter.Now())
	return len(p), nil
}

// WriteAt turns p into a block; now is the moment the last frame of p
// was captured.
func (w *captureWriter) WriteAt(p []byte, now clock.Ticks) {
	w.locker.Lock()
	defer w.locker.Unlock()

	frameSize := int(w.format.BytesPerFrame())
	data := w.getBuffer(len(w.partial) + len(p))
	data = append(data, w.partial...)
	data = append(data, p...)
	complete := len(data) / frameSize * frameSize
	w.partial = append(w.partial[:0], data[complete:]...)
	data = data[:complete]
	if len(data) == 0 {
		w.Recycle(data)
		return
	}

	frames := uint32(len(data) / frameSize)
	duration := clock.Ticks(clock.MulDiv(int64(frames), int64(w.counter.Frequency), int64(w.format.SampleRate)))
	block := types.Block{
		Data:     data,
		Frames:   frames,
		Time:     (now - duration).Convert(w.counter.Frequency, clock.FrequencyHNS),
		Position: w.position,
	}
	w.position += uint64(frames)

	if dropped, ok := w.buffer.Push(w.ctx, block); ok {
		w.lost += uint64(dropped.Frames)
		logger.Warnf(w.ctx, "the audio buffer overflowed, lost %d frames (%d total)", dropped.Frames, w.lost)
		w.Recycle(dropped.Data)
		w.buffer.Peek(w.ctx, func(head *types.Block) {
			head.TimestampError = true
		})
	}
}

func (w *captureWriter) getBuffer(size int) []byte {
	if buf, ok := w.buffers.Get().([]byte); ok && cap(buf) >= size {
		return buf[:0]
	}
	return make([]byte, 0, size)
}

// Recycle returns the block data for reuse.
func (w *captureWriter) Recycle(data []byte) {
	if cap(data) == 0 {
		return
	}
	w.buffers.Put(data[:0]) //nolint:staticcheck
}
