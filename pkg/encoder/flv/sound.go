package flv

import (
	"fmt"

	"github.com/xaionaro-go/screenrec/pkg/audio/types"
	flvtag "github.com/yutopp/go-flv/tag"
)

// AudioFormat returns the highest quality PCM format FLV can carry.
func AudioFormat(channels types.Channel) types.Format {
	return types.Format{
		SampleRate: 44100,
		Channels:   channels,
		PCMFormat:  types.PCMFormatS16LE,
	}
}

type soundParams struct {
	Format flvtag.SoundFormat
	Rate   flvtag.SoundRate
	Size   flvtag.SoundSize
	Type   flvtag.SoundType
}

// soundParamsFor returns the FLV audio tag parameters for the PCM format;
// only the formats representable as FLV uncompressed audio are supported.
func soundParamsFor(f types.Format) (soundParams, error) {
	p := soundParams{
		Format: flvtag.SoundFormatLinearPCMLittleEndian,
	}

	switch f.SampleRate {
	case 5512:
		p.Rate = flvtag.SoundRate5_5kHz
	case 11025:
		p.Rate = flvtag.SoundRate11kHz
	case 22050:
		p.Rate = flvtag.SoundRate22kHz
	case 44100:
		p.Rate = flvtag.SoundRate44kHz
	default:
		return soundParams{}, fmt.Errorf("FLV does not support sample rate %d", f.SampleRate)
	}

	switch f.PCMFormat {
	case types.PCMFormatS16LE:
		p.Size = flvtag.SoundSize16Bit
	default:
		return soundParams{}, fmt.Errorf("FLV does not support PCM format %s", f.PCMFormat)
	}

	switch f.Channels {
	case 1:
		p.Type = flvtag.SoundTypeMono
	case 2:
		p.Type = flvtag.SoundTypeStereo
	default:
		return soundParams{}, fmt.Errorf("FLV does not support %d channels", f.Channels)
	}
	return p, nil
}
