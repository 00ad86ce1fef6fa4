package editor

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	apperrors "github.com/leeforge/mediaedit/errors"
	"github.com/leeforge/mediaedit/events"
	"github.com/leeforge/mediaedit/logging"
	"github.com/leeforge/mediaedit/media/library"
	"github.com/leeforge/mediaedit/media/pipeline"
	"github.com/leeforge/mediaedit/media/storage"
)

// File is a downloadable blob with the name to offer it under.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

type ExportResult struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Provider string `json:"provider"`
}

// Trim records clamped in and out points on a video.
func (s *Service) Trim(ctx context.Context, id string, start, end float64) (library.TrimMarks, error) {
	marks, err := s.library.Trim(id, start, end)
	if err != nil {
		return library.TrimMarks{}, err
	}

	s.log(ctx).Info("video trimmed",
		logging.MediaID(id),
		zap.Float64("start", marks.Start),
		zap.Float64("end", marks.End))
	s.publish(ctx, events.TopicTrimmed, id, marks)
	return marks, nil
}

// Delete removes the item and releases its blobs.
func (s *Service) Delete(ctx context.Context, id string) error {
	item, err := s.library.Delete(id)
	if err != nil {
		return err
	}

	_ = s.blobs.Delete(ctx, item.Original)
	if item.Modified != item.Original {
		_ = s.blobs.Delete(ctx, item.Modified)
	}

	s.log(ctx).Info("media deleted", logging.MediaID(id))
	s.publish(ctx, events.TopicDeleted, id, map[string]any{"name": item.Name})
	return nil
}

// modifiedBlobAttempts bounds how often a lookup follows commits that
// release the bitmap it was about to read.
const modifiedBlobAttempts = 3

// modifiedBlob returns the item together with its current modified bitmap.
// A commit releases the replaced bitmap, so a key that vanished between the
// two reads is resolved again against the refreshed item.
func (s *Service) modifiedBlob(ctx context.Context, id string) (*library.MediaItem, *storage.Blob, error) {
	var (
		lastKey string
		lastErr error
	)
	for attempt := 0; attempt < modifiedBlobAttempts; attempt++ {
		item, err := s.library.Get(id)
		if err != nil {
			return nil, nil, err
		}
		if lastErr != nil && item.Modified == lastKey {
			return nil, nil, lastErr
		}

		blob, err := s.blobs.Get(ctx, item.Modified)
		if err == nil {
			return item, blob, nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, err
		}
		lastKey, lastErr = item.Modified, err
	}
	return nil, nil, lastErr
}

// Download returns the current modified bitmap named edited_<name>.
func (s *Service) Download(ctx context.Context, id string) (*File, error) {
	item, blob, err := s.modifiedBlob(ctx, id)
	if err != nil {
		return nil, err
	}
	return &File{Name: item.DownloadName(), ContentType: blob.ContentType, Data: blob.Data}, nil
}

// Original returns the upload as received.
func (s *Service) Original(ctx context.Context, id string) (*File, error) {
	item, err := s.library.Get(id)
	if err != nil {
		return nil, err
	}
	blob, err := s.blobs.Get(ctx, item.Original)
	if err != nil {
		return nil, err
	}
	return &File{Name: item.Name, ContentType: blob.ContentType, Data: blob.Data}, nil
}

// Thumbnail returns a JPEG gallery preview of the current modified bitmap.
func (s *Service) Thumbnail(ctx context.Context, id string) (*File, error) {
	item, err := s.library.Get(id)
	if err != nil {
		return nil, err
	}
	if !item.IsImage() {
		return nil, apperrors.NewSurfaceUnavailable(id, "thumbnails require an image")
	}

	item, blob, err := s.modifiedBlob(ctx, id)
	if err != nil {
		return nil, err
	}

	name := "thumb_" + item.Name + ".jpg"
	key := s.strategy.Key("thumbnail", item.Modified, strconv.FormatUint(uint64(s.opts.ThumbnailSize), 10))
	if s.cache != nil {
		if v, err := s.cache.Get(key); err == nil {
			if data, ok := v.([]byte); ok {
				s.monitor.RecordHit()
				return &File{Name: name, ContentType: "image/jpeg", Data: data}, nil
			}
		}
		s.monitor.RecordMiss()
	}

	data, err := pipeline.Thumbnail(blob.Data, s.opts.ThumbnailSize, s.pipelineOpts()...)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(key, data, s.strategy.GetTTL("thumbnail")); err == nil {
			s.monitor.RecordSet()
		}
	}
	return &File{Name: name, ContentType: "image/jpeg", Data: data}, nil
}

// Export uploads the current modified bitmap to the configured sink under
// <id>/edited_<name>.
func (s *Service) Export(ctx context.Context, id string) (*ExportResult, error) {
	if s.export == nil {
		return nil, apperrors.NewSurfaceUnavailable(id, "export is not configured")
	}

	file, err := s.Download(ctx, id)
	if err != nil {
		return nil, err
	}

	out, err := s.export.Upload(ctx, storage.UploadInput{
		File:        bytes.NewReader(file.Data),
		Filename:    file.Name,
		Folder:      id,
		ContentType: file.ContentType,
		Size:        int64(len(file.Data)),
	})
	if err != nil {
		return nil, apperrors.WrapWithType(err, apperrors.ErrorTypeExternal, "export failed").
			WithHTTPStatus(http.StatusBadGateway)
	}

	s.log(ctx).Info("media exported",
		logging.MediaID(id),
		zap.String("provider", s.export.Name()),
		zap.String("url", out.URL))
	return &ExportResult{
		URL:      out.URL,
		Filename: out.Filename,
		Size:     out.Size,
		Provider: s.export.Name(),
	}, nil
}
