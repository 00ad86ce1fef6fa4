package pipeline

import (
	"bytes"
	"image"
	"image/draw"
	"image/jpeg"

	"github.com/nfnt/resize"

	apperrors "github.com/leeforge/mediaedit/errors"
)

// ThumbnailQuality is the JPEG quality used for gallery previews.
const ThumbnailQuality = 80

// Thumbnail fits src inside maxSize x maxSize with Lanczos3 resampling and
// returns a JPEG. Transparent areas are flattened onto white.
func Thumbnail(src []byte, maxSize uint, opts ...Option) ([]byte, error) {
	if err := checkHeader(src, newOptions(opts)); err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, apperrors.NewDecode(err)
	}

	thumb := resize.Thumbnail(maxSize, maxSize, img, resize.Lanczos3)

	b := thumb.Bounds()
	flat := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(flat, flat.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(flat, flat.Bounds(), thumb, b.Min, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: ThumbnailQuality}); err != nil {
		return nil, apperrors.WrapWithType(err, apperrors.ErrorTypeInternal, "failed to encode thumbnail")
	}
	return buf.Bytes(), nil
}

// Dimensions reads the size and format without decoding pixel data.
func Dimensions(src []byte) (width, height int, format string, err error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(src))
	if err != nil {
		return 0, 0, "", apperrors.NewDecode(err)
	}
	return cfg.Width, cfg.Height, format, nil
}
