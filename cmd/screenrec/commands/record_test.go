package commands

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/screenrec/pkg/config"
)

func TestApplyRecordFlags(t *testing.T) {
	ctx := context.Background()
	flags := Record.Flags()
	require.NoError(t, flags.Parse([]string{"--fps=24", "--no-audio", "--display=2", "--output-dir=/tmp/rec"}))

	cfg := config.Default()
	applyRecordFlags(ctx, flags, &cfg)
	require.Equal(t, uint32(24), cfg.Video.FrameRate)
	require.False(t, cfg.Audio.Enabled)
	require.Equal(t, uint(2), cfg.Video.Screen.DisplayID)
	require.Equal(t, "/tmp/rec", cfg.OutputDir)
	require.Equal(t, config.Default().MetricsListenAddr, cfg.MetricsListenAddr)
}
