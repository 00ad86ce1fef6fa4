package pipeline

import (
	"context"
	"image"
	"math"
)

type adjustStage struct {
	adj Adjustment
}

func (adjustStage) Name() string { return "adjust" }

// Apply runs brightness then contrast over every colour channel. Alpha is untouched.
func (s adjustStage) Apply(_ context.Context, canvas *image.NRGBA) (*image.NRGBA, error) {
	if s.adj.IsNeutral() {
		return canvas, nil
	}

	lut := adjustmentTable(s.adj)
	pix := canvas.Pix
	for i := 0; i+3 < len(pix); i += 4 {
		pix[i] = lut[pix[i]]
		pix[i+1] = lut[pix[i+1]]
		pix[i+2] = lut[pix[i+2]]
	}
	return canvas, nil
}

// adjustmentTable maps every 8-bit channel value through
// v = clamp(v*b); v = clamp((v-0.5)*c + 0.5) on the unit interval.
func adjustmentTable(a Adjustment) [256]uint8 {
	b := a.Brightness / 100
	c := a.Contrast / 100

	var lut [256]uint8
	for i := range lut {
		v := float64(i) / 255
		v = clamp01(v * b)
		v = clamp01((v-0.5)*c + 0.5)
		lut[i] = uint8(math.Round(v * 255))
	}
	return lut
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
