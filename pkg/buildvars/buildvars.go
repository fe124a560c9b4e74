package buildvars

import (
	"fmt"
	"strconv"
	"time"
)

// Set with -ldflags "-X github.com/xaionaro-go/screenrec/pkg/buildvars.Version=..."
var (
	GitCommit       string
	Version         string
	BuildDateString string
	BuildDate       *time.Time
)

func init() {
	unixTS, err := strconv.ParseInt(BuildDateString, 10, 64)
	if err == nil {
		BuildDate = ptr(time.Unix(unixTS, 0))
	}
}

func ptr[T any](v T) *T {
	return &v
}

func String() string {
	version := Version
	if version == "" {
		version = "devel"
	}
	s := version
	if GitCommit != "" {
		s += fmt.Sprintf(" (commit %s)", GitCommit)
	}
	if BuildDate != nil {
		s += fmt.Sprintf(", built at %s", BuildDate.UTC().Format(time.RFC3339))
	}
	return s
}
