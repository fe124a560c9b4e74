package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	f := Format{SampleRate: 48000, Channels: 2, PCMFormat: PCMFormatS16LE}
	require.NoError(t, f.Validate())
	require.Equal(t, uint32(4), f.BytesPerFrame())
	require.Equal(t, "48000Hz/2ch/s16le", f.String())

	require.Error(t, Format{SampleRate: 48000, Channels: 2}.Validate())
	require.Error(t, Format{Channels: 2, PCMFormat: PCMFormatFloat32LE}.Validate())
}

func TestPCMFormatText(t *testing.T) {
	for f := PCMFormatS16LE; f < EndOfPCMFormat; f++ {
		b, err := f.MarshalText()
		require.NoError(t, err)
		var parsed PCMFormat
		require.NoError(t, parsed.UnmarshalText(b))
		require.Equal(t, f, parsed)
	}

	var parsed PCMFormat
	require.Error(t, parsed.UnmarshalText([]byte("u8")))
}
