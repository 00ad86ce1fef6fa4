package pipeline

import (
	"context"
	"image"
	"image/draw"
	"math"
)

type cropStage struct {
	region CropRegion
}

func (cropStage) Name() string { return "crop" }

// Apply replaces the canvas with the region's pixel block.
func (s cropStage) Apply(_ context.Context, canvas *image.NRGBA) (*image.NRGBA, error) {
	if canvas.Bounds().Empty() {
		return canvas, nil
	}
	rect := s.region.Rect(canvas.Bounds().Dx(), canvas.Bounds().Dy())
	out := image.NewNRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(out, out.Bounds(), canvas, rect.Min, draw.Src)
	return out, nil
}

// Rect converts the percentages to a pixel rectangle on a w x h canvas,
// clamped to the canvas and never smaller than 1x1.
func (c CropRegion) Rect(w, h int) image.Rectangle {
	x0 := clampInt(int(math.Floor(c.X/100*float64(w))), 0, w-1)
	y0 := clampInt(int(math.Floor(c.Y/100*float64(h))), 0, h-1)
	cw := clampInt(int(math.Floor(c.Width/100*float64(w))), 1, w-x0)
	ch := clampInt(int(math.Floor(c.Height/100*float64(h))), 1, h-y0)
	return image.Rect(x0, y0, x0+cw, y0+ch)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
