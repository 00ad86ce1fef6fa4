package api

import (
	"github.com/leeforge/mediaedit/media/library"
	"github.com/leeforge/mediaedit/media/pipeline"
)

type adjustRequest struct {
	Brightness float64 `json:"brightness" default:"100" validate:"gte=0,lte=200"`
	Contrast   float64 `json:"contrast" default:"100" validate:"gte=0,lte=200"`
}

func (r adjustRequest) adjustment() pipeline.Adjustment {
	return pipeline.Adjustment{Brightness: r.Brightness, Contrast: r.Contrast}
}

// textRequest positions are percentages of the canvas. An empty content
// removes the overlay.
type textRequest struct {
	Content    string  `json:"content" validate:"max=500"`
	X          float64 `json:"x" default:"50" validate:"gte=0,lte=100"`
	Y          float64 `json:"y" default:"50" validate:"gte=0,lte=100"`
	FontSize   float64 `json:"font_size" default:"24" validate:"gte=12,lte=72"`
	FontFamily string  `json:"font_family" default:"Arial" validate:"max=200"`
	Color      string  `json:"color" default:"#ffffff" validate:"max=64"`
}

func (r textRequest) overlay() pipeline.TextOverlay {
	return pipeline.TextOverlay{
		Content:    r.Content,
		Position:   pipeline.Position{X: r.X, Y: r.Y},
		FontSize:   r.FontSize,
		FontFamily: r.FontFamily,
		Color:      r.Color,
	}
}

type cropRequest struct {
	X      float64 `json:"x" validate:"gte=0,lte=100"`
	Y      float64 `json:"y" validate:"gte=0,lte=100"`
	Width  float64 `json:"width" default:"100" validate:"gt=0,lte=100"`
	Height float64 `json:"height" default:"100" validate:"gt=0,lte=100"`
}

func (r cropRequest) region() pipeline.CropRegion {
	return pipeline.CropRegion{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}
}

// trimRequest values are seconds and are clamped to the video, not rejected.
// A missing end means the end of the video.
type trimRequest struct {
	Start float64  `json:"start"`
	End   *float64 `json:"end"`
}

type editResponse struct {
	Item    *library.MediaItem `json:"item"`
	Width   int                `json:"width"`
	Height  int                `json:"height"`
	Size    int                `json:"size"`
	DataURI string             `json:"data_uri,omitempty"`
}

type trimResponse struct {
	ID   string            `json:"id"`
	Trim library.TrimMarks `json:"trim"`
}

type healthResponse struct {
	Status string      `json:"status"`
	Media  int         `json:"media"`
	Cache  any         `json:"cache"`
	Queue  *queueStats `json:"queue,omitempty"`
}

type queueStats struct {
	Pending   int   `json:"pending"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}
