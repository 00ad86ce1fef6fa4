package library

import (
	"strings"
	"time"

	"github.com/leeforge/mediaedit/media/pipeline"
)

type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// KindOf classifies a MIME type. ok is false for anything that is neither an
// image nor a video.
func KindOf(contentType string) (kind Kind, ok bool) {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return KindImage, true
	case strings.HasPrefix(contentType, "video/"):
		return KindVideo, true
	default:
		return "", false
	}
}

// TrimMarks are the recorded in and out points of a video, in seconds.
type TrimMarks struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Clamp puts start into [0, duration] and end into [start, duration].
func Clamp(start, end, duration float64) TrimMarks {
	if duration < 0 {
		duration = 0
	}
	start = clampFloat(start, 0, duration)
	end = clampFloat(end, start, duration)
	return TrimMarks{Start: start, End: end}
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// MediaItem is one uploaded file and its edit state. Original and Modified
// are blob keys.
type MediaItem struct {
	ID          string          `json:"id"`
	Kind        Kind            `json:"kind"`
	Name        string          `json:"name"`
	ContentType string          `json:"content_type"`
	Size        int64           `json:"size"`
	Original    string          `json:"original"`
	Modified    string          `json:"modified"`
	Width       int             `json:"width,omitempty"`
	Height      int             `json:"height,omitempty"`
	Duration    float64         `json:"duration,omitempty"`
	Trim        *TrimMarks      `json:"trim,omitempty"`
	Params      pipeline.Params `json:"params"`
	Generation  uint64          `json:"generation"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (m *MediaItem) IsImage() bool { return m.Kind == KindImage }
func (m *MediaItem) IsVideo() bool { return m.Kind == KindVideo }

// DownloadName is the filename offered for the edited bitmap.
func (m *MediaItem) DownloadName() string {
	return "edited_" + m.Name
}

func (m *MediaItem) clone() *MediaItem {
	out := *m
	out.Params = m.Params.Clone()
	if m.Trim != nil {
		t := *m.Trim
		out.Trim = &t
	}
	return &out
}
