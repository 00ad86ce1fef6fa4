package pipeline

import (
	"bytes"
	"image"

	apperrors "github.com/leeforge/mediaedit/errors"
)

// DefaultMaxPixels bounds width*height of any bitmap the pipeline will decode.
const DefaultMaxPixels int64 = 50_000_000

type Option func(*options)

type options struct {
	maxPixels int64
}

// WithMaxPixels overrides DefaultMaxPixels. Values <= 0 keep the default.
func WithMaxPixels(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxPixels = n
		}
	}
}

func newOptions(opts []Option) options {
	o := options{maxPixels: DefaultMaxPixels}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// CheckPixels fails with a too-large error when width*height exceeds limit.
func CheckPixels(width, height int, limit int64) error {
	if int64(width)*int64(height) > limit {
		return apperrors.NewTooManyPixels(width, height, limit)
	}
	return nil
}

// checkHeader reads only the image header, so an oversized bitmap is refused
// before any pixel memory is allocated.
func checkHeader(data []byte, o options) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return apperrors.NewDecode(err)
	}
	return CheckPixels(cfg.Width, cfg.Height, o.maxPixels)
}
