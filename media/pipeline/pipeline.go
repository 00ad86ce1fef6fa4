// Package pipeline renders the cumulative edit state of an image onto a fresh
// canvas decoded from the original upload.
//
// A render always runs the same stages in the same order:
//
//	decode -> brightness/contrast -> text -> crop -> encode
//
// so the output depends only on the original bytes and the Params.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	apperrors "github.com/leeforge/mediaedit/errors"
)

// Stage transforms the working canvas in place or returns a replacement.
type Stage interface {
	Name() string
	Apply(ctx context.Context, canvas *image.NRGBA) (*image.NRGBA, error)
}

// Stages returns the stages Params expands to, in render order.
func Stages(params Params) ([]Stage, error) {
	stages := []Stage{adjustStage{params.Adjustment}}

	if params.hasText() {
		st, err := newTextStage(*params.Text)
		if err != nil {
			return nil, err
		}
		stages = append(stages, st)
	}

	if params.hasCrop() {
		stages = append(stages, cropStage{*params.Crop})
	}

	return stages, nil
}

// Render decodes original and replays params onto it.
func Render(ctx context.Context, original []byte, params Params, opts ...Option) (*Result, error) {
	if len(original) == 0 {
		return nil, ErrNoSource
	}
	if err := validateParams(params); err != nil {
		return nil, err
	}

	stages, err := Stages(params)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	canvas, err := Decode(ctx, original, opts...)
	if err != nil {
		return nil, err
	}

	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		canvas, err = stage.Apply(ctx, canvas)
		if err != nil {
			return nil, fmt.Errorf("stage %s failed: %w", stage.Name(), err)
		}
	}

	return Encode(canvas)
}

// Decode reads any registered format into a non-premultiplied canvas anchored
// at the origin. Bitmaps over the pixel limit are refused from their header.
// It returns when ctx is done even if the decoder has not.
func Decode(ctx context.Context, data []byte, opts ...Option) (*image.NRGBA, error) {
	if len(data) == 0 {
		return nil, ErrNoSource
	}
	if err := checkHeader(data, newOptions(opts)); err != nil {
		return nil, err
	}

	type decoded struct {
		img image.Image
		err error
	}
	done := make(chan decoded, 1)
	go func() {
		img, _, err := image.Decode(bytes.NewReader(data))
		done <- decoded{img: img, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case d := <-done:
		if d.err != nil {
			return nil, apperrors.NewDecode(d.err)
		}
		return toNRGBA(d.img), nil
	}
}

// Encode writes canvas as PNG.
func Encode(canvas *image.NRGBA) (*Result, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, apperrors.WrapWithType(err, apperrors.ErrorTypeInternal, "failed to encode bitmap")
	}
	b := canvas.Bounds()
	return &Result{
		Data:        buf.Bytes(),
		Width:       b.Dx(),
		Height:      b.Dy(),
		ContentType: ContentType,
	}, nil
}

func toNRGBA(src image.Image) *image.NRGBA {
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

func validateParams(p Params) error {
	a := p.Adjustment
	if a.Brightness < 0 || a.Contrast < 0 {
		return apperrors.NewValidation("brightness and contrast must not be negative").
			WithDetail("brightness", a.Brightness).
			WithDetail("contrast", a.Contrast)
	}
	if p.hasText() && p.Text.FontSize <= 0 {
		return apperrors.NewValidation("font size must be positive").
			WithDetail("font_size", p.Text.FontSize)
	}
	if c := p.Crop; c != nil && (c.Width <= 0 || c.Height <= 0) {
		return apperrors.NewValidation("crop width and height must be positive").
			WithDetail("width", c.Width).
			WithDetail("height", c.Height)
	}
	return nil
}
