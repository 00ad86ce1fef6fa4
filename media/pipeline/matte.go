package pipeline

import (
	"context"
	"image"
)

// DefaultKeyThreshold is the channel value every one of R, G and B must exceed
// for NearWhiteKey to clear a pixel.
const DefaultKeyThreshold uint8 = 240

// Matte decides which pixels of a canvas become transparent.
type Matte interface {
	Apply(ctx context.Context, canvas *image.NRGBA) error
}

// NearWhiteKey clears pixels whose R, G and B all exceed Threshold.
// The zero value uses DefaultKeyThreshold.
type NearWhiteKey struct {
	Threshold uint8
}

func (k NearWhiteKey) Apply(ctx context.Context, canvas *image.NRGBA) error {
	t := k.Threshold
	if t == 0 {
		t = DefaultKeyThreshold
	}

	b := canvas.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		if y%64 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		row := canvas.Pix[(y-b.Min.Y)*canvas.Stride:]
		for x := 0; x < b.Dx(); x++ {
			px := row[x*4 : x*4+4]
			if px[0] > t && px[1] > t && px[2] > t {
				px[3] = 0
			}
		}
	}
	return nil
}

// RemoveBackground decodes the current bitmap, applies matte and re-encodes it.
// A nil matte means NearWhiteKey.
func RemoveBackground(ctx context.Context, current []byte, matte Matte, opts ...Option) (*Result, error) {
	if matte == nil {
		matte = NearWhiteKey{}
	}
	canvas, err := Decode(ctx, current, opts...)
	if err != nil {
		return nil, err
	}
	if err := matte.Apply(ctx, canvas); err != nil {
		return nil, err
	}
	return Encode(canvas)
}
