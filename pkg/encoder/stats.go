package encoder

type Stats struct {
	BytesCountWrote  uint64
	VideoFramesWrote uint64
	AudioFramesWrote uint64
	TimelineTicks    uint64
	Discontinuities  uint64
}
