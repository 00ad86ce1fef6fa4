package pipeline

import (
	"encoding/base64"
	"net/http"

	apperrors "github.com/leeforge/mediaedit/errors"
)

const (
	DefaultFontSize   = 24
	DefaultFontFamily = "Arial"
	DefaultTextColor  = "#ffffff"
	MinFontSize       = 12
	MaxFontSize       = 72

	// ContentType is the MIME type of every rendered bitmap.
	ContentType = "image/png"
)

var (
	ErrNoSource      = apperrors.New(apperrors.ErrorTypeSurface, "no source bitmap").WithHTTPStatus(http.StatusUnprocessableEntity)
	ErrInvalidParams = apperrors.New(apperrors.ErrorTypeValidation, "invalid render parameters").WithHTTPStatus(http.StatusBadRequest)
)

// Adjustment holds brightness and contrast as percentages. 100 is neutral.
type Adjustment struct {
	Brightness float64 `json:"brightness"`
	Contrast   float64 `json:"contrast"`
}

func NeutralAdjustment() Adjustment {
	return Adjustment{Brightness: 100, Contrast: 100}
}

func (a Adjustment) IsNeutral() bool {
	return a.Brightness == 100 && a.Contrast == 100
}

// Position is a point expressed as percentages of the canvas size.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// TextOverlay is a single line of text stamped onto the canvas with its
// baseline at Position.
type TextOverlay struct {
	Content    string   `json:"content"`
	Position   Position `json:"position"`
	FontSize   float64  `json:"font_size"`
	FontFamily string   `json:"font_family"`
	Color      string   `json:"color"`
}

// DefaultTextOverlay returns an empty overlay with the editor's starting style.
func DefaultTextOverlay() TextOverlay {
	return TextOverlay{
		Position:   Position{X: 50, Y: 50},
		FontSize:   DefaultFontSize,
		FontFamily: DefaultFontFamily,
		Color:      DefaultTextColor,
	}
}

// CropRegion is a rectangle in percentages of the canvas it is applied to.
type CropRegion struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func FullCrop() CropRegion {
	return CropRegion{Width: 100, Height: 100}
}

// IsFull reports whether the region covers the whole canvas, making the crop a no-op.
func (c CropRegion) IsFull() bool {
	return c.Width >= 100 && c.Height >= 100
}

// Params is the cumulative edit state applied on every render.
type Params struct {
	Adjustment Adjustment   `json:"adjustment"`
	Text       *TextOverlay `json:"text,omitempty"`
	Crop       *CropRegion  `json:"crop,omitempty"`
}

func DefaultParams() Params {
	return Params{Adjustment: NeutralAdjustment()}
}

// Clone returns a deep copy.
func (p Params) Clone() Params {
	out := Params{Adjustment: p.Adjustment}
	if p.Text != nil {
		t := *p.Text
		out.Text = &t
	}
	if p.Crop != nil {
		c := *p.Crop
		out.Crop = &c
	}
	return out
}

func (p Params) hasText() bool {
	return p.Text != nil && p.Text.Content != ""
}

func (p Params) hasCrop() bool {
	return p.Crop != nil && !p.Crop.IsFull()
}

// Result is an encoded bitmap.
type Result struct {
	Data        []byte
	Width       int
	Height      int
	ContentType string
}

// DataURI returns the bitmap as a base64 data URI.
func (r *Result) DataURI() string {
	return "data:" + r.ContentType + ";base64," + base64.StdEncoding.EncodeToString(r.Data)
}
