package editor

import (
	"context"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	apperrors "github.com/leeforge/mediaedit/errors"
	"github.com/leeforge/mediaedit/events"
	"github.com/leeforge/mediaedit/logging"
	"github.com/leeforge/mediaedit/media/library"
	"github.com/leeforge/mediaedit/media/pipeline"
)

type UploadInput struct {
	Name string
	Data []byte
	// Duration in seconds, reported by the client for videos.
	Duration float64
}

// DetectContentType sniffs data and returns the bare MIME type.
func DetectContentType(data []byte) string {
	ct := mimetype.Detect(data).String()
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(ct)
}

// Upload stores a new image or video and makes it the active item. The upload
// is both the original and the first modified bitmap.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*library.MediaItem, error) {
	size := int64(len(in.Data))
	if size == 0 {
		return nil, apperrors.NewValidation("file is empty")
	}
	if size > s.opts.MaxUploadBytes {
		return nil, apperrors.NewTooLarge(size, s.opts.MaxUploadBytes)
	}
	if in.Duration < 0 {
		return nil, apperrors.NewInvalid("duration", in.Duration, "must not be negative")
	}

	contentType := DetectContentType(in.Data)
	kind, ok := library.KindOf(contentType)
	if !ok {
		return nil, apperrors.NewUnsupportedMedia(contentType)
	}

	item := &library.MediaItem{
		Kind:        kind,
		Name:        uploadName(in.Name, contentType),
		ContentType: contentType,
		Size:        size,
	}
	if kind == library.KindImage {
		w, h, _, err := pipeline.Dimensions(in.Data)
		if err != nil {
			return nil, err
		}
		if err := pipeline.CheckPixels(w, h, s.opts.MaxPixels); err != nil {
			return nil, err
		}
		item.Width, item.Height = w, h
	} else {
		item.Duration = in.Duration
	}

	key, err := s.blobs.Put(ctx, in.Data, contentType)
	if err != nil {
		return nil, err
	}
	item.Original, item.Modified = key, key

	stored, err := s.library.Add(item)
	if err != nil {
		_ = s.blobs.Delete(ctx, key)
		return nil, err
	}

	s.log(ctx).Info("media uploaded",
		logging.MediaID(stored.ID),
		zap.String("kind", string(stored.Kind)),
		zap.String("content_type", contentType),
		zap.Int64("size", size))
	s.publish(ctx, events.TopicUploaded, stored.ID, map[string]any{
		"kind":         stored.Kind,
		"name":         stored.Name,
		"content_type": contentType,
		"size":         size,
	})
	return stored, nil
}

func uploadName(name, contentType string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if name != "" {
		return name
	}
	ext := mimetype.Lookup(contentType)
	if ext == nil {
		return "upload"
	}
	return "upload" + ext.Extension()
}
