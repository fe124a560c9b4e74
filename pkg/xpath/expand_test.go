package xpath

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExpand(t *testing.T) {
	t.Setenv("HOME", "/home/someone")

	for raw, expected := range map[string]string{
		"~":               "/home/someone",
		"~/Videos":        "/home/someone/Videos",
		"/var/lib/videos": "/var/lib/videos",
		"~someone/Videos": "~someone/Videos",
		"videos":          "videos",
	} {
		p, err := Expand(raw)
		require.NoError(t, err)
		require.Equal(t, filepath.FromSlash(expected), p, raw)
	}
}
