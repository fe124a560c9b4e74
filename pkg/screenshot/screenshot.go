package screenshot

import (
	"fmt"
	"image"

	"github.com/kbinani/screenshot"
)

func Screenshot(cfg Config) (*image.RGBA, error) {
	bounds, err := cfg.Bounds()
	if err != nil {
		return nil, err
	}

	rgbaFull, err := screenshot.Capture(
		bounds.Min.X,
		bounds.Min.Y,
		bounds.Dx(),
		bounds.Dy(),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to screenshot bounds %v: %w", bounds, err)
	}

	return rgbaFull, nil
}

func NumActiveDisplays() uint {
	return uint(screenshot.NumActiveDisplays())
}

func DisplayBounds(displayID uint) image.Rectangle {
	return screenshot.GetDisplayBounds(int(displayID))
}
