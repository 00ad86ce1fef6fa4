package editor

import (
	"context"

	"go.uber.org/zap"

	apperrors "github.com/leeforge/mediaedit/errors"
	"github.com/leeforge/mediaedit/events"
	"github.com/leeforge/mediaedit/logging"
	"github.com/leeforge/mediaedit/media/library"
	"github.com/leeforge/mediaedit/media/pipeline"
	"github.com/leeforge/mediaedit/media/queue"
)

// EditResult is the committed item together with the bitmap it now points at.
type EditResult struct {
	Item   *library.MediaItem
	Result *pipeline.Result
}

// Adjust sets brightness and contrast and re-renders from the original.
func (s *Service) Adjust(ctx context.Context, id string, adj pipeline.Adjustment) (*EditResult, error) {
	return s.rerender(ctx, id, func(p *pipeline.Params) {
		p.Adjustment = adj
	})
}

// AddText replaces the text overlay. An empty Content removes it.
func (s *Service) AddText(ctx context.Context, id string, overlay pipeline.TextOverlay) (*EditResult, error) {
	return s.rerender(ctx, id, func(p *pipeline.Params) {
		if overlay.Content == "" {
			p.Text = nil
			return
		}
		p.Text = &overlay
	})
}

// Crop replaces the crop region. A full region removes it.
func (s *Service) Crop(ctx context.Context, id string, region pipeline.CropRegion) (*EditResult, error) {
	return s.rerender(ctx, id, func(p *pipeline.Params) {
		if region.IsFull() {
			p.Crop = nil
			return
		}
		p.Crop = &region
	})
}

// RemoveBackground keys the current modified bitmap. The params are not
// changed, so the next re-render from the original drops the keying.
// A generation is claimed only once the bitmap is in hand.
func (s *Service) RemoveBackground(ctx context.Context, id string) (*EditResult, error) {
	item, err := s.library.Get(id)
	if err != nil {
		return nil, err
	}
	if !item.IsImage() {
		return nil, apperrors.NewSurfaceUnavailable(id, "pixel edits require an image")
	}

	item, current, err := s.modifiedBlob(ctx, id)
	if err != nil {
		return nil, err
	}

	ticket, err := s.library.BeginOn(id, item.Modified)
	if err != nil {
		return nil, err
	}

	res, err := s.queue.Do(ctx, queue.Job{
		MediaID:    id,
		Generation: ticket.Generation,
		Render: func(ctx context.Context) (*pipeline.Result, error) {
			return pipeline.RemoveBackground(ctx, current.Data, s.matte, s.pipelineOpts()...)
		},
	})
	if err != nil {
		s.renderFailed(ctx, ticket, "background", err)
		return nil, err
	}
	return s.commit(ctx, ticket, res, "background")
}

// rerender records the new cumulative params and renders them onto a fresh
// decode of the original. On failure the params are rolled back unless a
// newer edit has already started.
func (s *Service) rerender(ctx context.Context, id string, mutate func(*pipeline.Params)) (*EditResult, error) {
	ticket, err := s.library.Begin(id, mutate)
	if err != nil {
		return nil, err
	}

	res, err := s.render(ctx, ticket)
	if err != nil {
		s.library.Rollback(ticket)
		s.renderFailed(ctx, ticket, "render", err)
		return nil, err
	}
	return s.commit(ctx, ticket, res, "render")
}

func (s *Service) render(ctx context.Context, ticket library.Ticket) (*pipeline.Result, error) {
	// Blobs are immutable, so the original's key identifies its bytes.
	key, keyErr := s.strategy.ValueKey("render", ticket.Params, ticket.Original)
	if keyErr == nil {
		if res, ok := s.cached(key); ok {
			return res, nil
		}
	}

	original, err := s.blobs.Get(ctx, ticket.Original)
	if err != nil {
		return nil, err
	}

	params := ticket.Params
	res, err := s.queue.Do(ctx, queue.Job{
		MediaID:    ticket.ID,
		Generation: ticket.Generation,
		Render: func(ctx context.Context) (*pipeline.Result, error) {
			return pipeline.Render(ctx, original.Data, params, s.pipelineOpts()...)
		},
	})
	if err != nil {
		return nil, err
	}

	if keyErr == nil {
		s.store(key, "render", res)
	}
	return res, nil
}

// commit stores the bitmap and points the item at it if the ticket is still
// current. The replaced bitmap is released unless it is the original.
func (s *Service) commit(ctx context.Context, ticket library.Ticket, res *pipeline.Result, op string) (*EditResult, error) {
	key, err := s.blobs.Put(ctx, res.Data, res.ContentType)
	if err != nil {
		return nil, err
	}

	item, err := s.library.Commit(ticket, key, res.Width, res.Height)
	if err != nil {
		_ = s.blobs.Delete(ctx, key)
		s.log(ctx).Info("edit discarded",
			logging.MediaID(ticket.ID),
			logging.Generation(ticket.Generation),
			zap.String("op", op),
			zap.Error(err))
		return nil, err
	}

	if ticket.Modified != "" && ticket.Modified != ticket.Original {
		_ = s.blobs.Delete(ctx, ticket.Modified)
	}

	s.log(ctx).Info("edit committed",
		logging.MediaID(item.ID),
		logging.Generation(item.Generation),
		zap.String("op", op),
		zap.Int("width", item.Width),
		zap.Int("height", item.Height))
	s.publish(ctx, events.TopicRendered, item.ID, map[string]any{
		"op":         op,
		"generation": item.Generation,
		"width":      item.Width,
		"height":     item.Height,
	})
	return &EditResult{Item: item, Result: res}, nil
}

func (s *Service) renderFailed(ctx context.Context, ticket library.Ticket, op string, err error) {
	s.log(ctx).Warn("edit failed",
		logging.MediaID(ticket.ID),
		logging.Generation(ticket.Generation),
		zap.String("op", op),
		zap.Error(err))
	s.publish(ctx, events.TopicRenderFailed, ticket.ID, map[string]any{
		"op":         op,
		"generation": ticket.Generation,
		"error":      err.Error(),
	})
}

func (s *Service) cached(key string) (*pipeline.Result, bool) {
	if s.cache == nil {
		return nil, false
	}
	v, err := s.cache.Get(key)
	if err != nil {
		s.monitor.RecordMiss()
		return nil, false
	}
	res, ok := v.(*pipeline.Result)
	if !ok {
		s.monitor.RecordMiss()
		return nil, false
	}
	s.monitor.RecordHit()
	return res, true
}

func (s *Service) store(key, cacheType string, res *pipeline.Result) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(key, res, s.strategy.GetTTL(cacheType)); err == nil {
		s.monitor.RecordSet()
	}
}
