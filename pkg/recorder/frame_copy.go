package recorder

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/bamiaux/rez"
)

// copyFrame puts the frame region into dst: as is if it fits (the
// remaining area is cleared), or resized otherwise.
func copyFrame(
	dst *image.RGBA,
	frame VideoFrame,
	scratch **image.RGBA,
) error {
	if frame.Image == nil {
		return fmt.Errorf("no image")
	}
	region := frame.Image.Bounds()
	if !frame.Region.Empty() {
		region = frame.Region.Intersect(region)
	}
	if region.Empty() {
		return fmt.Errorf("the region %v is out of the image bounds %v", frame.Region, frame.Image.Bounds())
	}

	dstSize := dst.Bounds().Size()
	regionSize := region.Size()
	if fitsWithEvenPadding(regionSize, dstSize) {
		if regionSize != dstSize {
			draw.Draw(dst, dst.Bounds(), image.Black, image.Point{}, draw.Src)
		}
		draw.Draw(dst, image.Rectangle{Max: regionSize}.Add(dst.Bounds().Min), frame.Image, region.Min, draw.Src)
		return nil
	}

	if *scratch == nil || (*scratch).Bounds().Size() != regionSize {
		*scratch = image.NewRGBA(image.Rectangle{Max: regionSize})
	}
	draw.Draw(*scratch, (*scratch).Bounds(), frame.Image, region.Min, draw.Src)
	if err := rez.Convert(dst, *scratch, rez.NewLanczosFilter(3)); err != nil {
		return fmt.Errorf("unable to resize %v to %v: %w", regionSize, dstSize, err)
	}
	return nil
}

func fitsWithEvenPadding(src, dst image.Point) bool {
	dx, dy := dst.X-src.X, dst.Y-src.Y
	return dx >= 0 && dx <= 1 && dy >= 0 && dy <= 1
}
