package screenshot

import (
	"fmt"
	"image"
)

type Config struct {
	DisplayID uint `yaml:"display"`

	// Region is the captured area relative to the display's top-left
	// corner. An empty Region means the whole display.
	Region image.Rectangle `yaml:"region,omitempty"`
}

// Bounds returns the captured area in the virtual screen coordinates.
func (cfg Config) Bounds() (image.Rectangle, error) {
	if n := NumActiveDisplays(); cfg.DisplayID >= n {
		return image.Rectangle{}, fmt.Errorf("display #%d does not exist, there are %d active displays", cfg.DisplayID, n)
	}
	return cfg.boundsWithin(DisplayBounds(cfg.DisplayID))
}

func (cfg Config) boundsWithin(display image.Rectangle) (image.Rectangle, error) {
	if cfg.Region.Empty() {
		return display, nil
	}
	r := cfg.Region.Add(display.Min)
	if !r.In(display) {
		return image.Rectangle{}, fmt.Errorf("region %v is out of the display bounds %v", cfg.Region, display.Sub(display.Min))
	}
	return r, nil
}
