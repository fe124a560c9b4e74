package buildvars

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	Version, GitCommit, BuildDate = "", "", nil
	require.Equal(t, "devel", String())

	Version, GitCommit = "v0.1.0", "abcdef0"
	BuildDate = ptr(time.Date(2024, 3, 9, 17, 4, 5, 0, time.UTC))
	require.Equal(t, "v0.1.0 (commit abcdef0), built at 2024-03-09T17:04:05Z", String())
}
