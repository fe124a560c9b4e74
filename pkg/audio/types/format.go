package types

import (
	"fmt"
	"math"
)

type PCMFormat uint

const (
	PCMFormatUndefined = PCMFormat(iota)
	PCMFormatS16LE
	PCMFormatFloat32LE
	EndOfPCMFormat
)

// Size returns the size of one sample in bytes.
func (f PCMFormat) Size() uint32 {
	switch f {
	case PCMFormatS16LE:
		return 2
	case PCMFormatFloat32LE:
		return 4
	default:
		return math.MaxUint32
	}
}

func (f PCMFormat) String() string {
	switch f {
	case PCMFormatUndefined:
		return "<undefined>"
	case PCMFormatS16LE:
		return "s16le"
	case PCMFormatFloat32LE:
		return "f32le"
	default:
		return fmt.Sprintf("<unexpected_value_%d>", f)
	}
}

func (f PCMFormat) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *PCMFormat) UnmarshalText(b []byte) error {
	for candidate := PCMFormatUndefined + 1; candidate < EndOfPCMFormat; candidate++ {
		if candidate.String() == string(b) {
			*f = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown PCM format '%s'", b)
}

type Channel uint16
type SampleRate uint32

// Format describes interleaved PCM audio.
type Format struct {
	SampleRate SampleRate `yaml:"sample_rate"`
	Channels   Channel    `yaml:"channels"`
	PCMFormat  PCMFormat  `yaml:"pcm_format"`
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%s", f.SampleRate, f.Channels, f.PCMFormat)
}

// BytesPerFrame returns the size of one sample of all the channels.
func (f Format) BytesPerFrame() uint32 {
	return uint32(f.Channels) * f.PCMFormat.Size()
}

func (f Format) Validate() error {
	if f.SampleRate == 0 {
		return fmt.Errorf("sample rate is not set")
	}
	if f.Channels == 0 {
		return fmt.Errorf("the amount of channels is not set")
	}
	if f.PCMFormat == PCMFormatUndefined || f.PCMFormat >= EndOfPCMFormat {
		return fmt.Errorf("invalid PCM format: %s", f.PCMFormat)
	}
	return nil
}
