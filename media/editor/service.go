// Package editor orchestrates uploads and edits: it keeps the library, the
// blob store and the render queue consistent and announces every change on
// the event bus.
package editor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/leeforge/mediaedit/cache"
	"github.com/leeforge/mediaedit/events"
	"github.com/leeforge/mediaedit/logging"
	"github.com/leeforge/mediaedit/media/library"
	"github.com/leeforge/mediaedit/media/pipeline"
	"github.com/leeforge/mediaedit/media/queue"
	"github.com/leeforge/mediaedit/media/storage"
)

const eventSource = "editor"

// RenderQueue runs a render job and waits for it.
type RenderQueue interface {
	Do(ctx context.Context, job queue.Job) (*pipeline.Result, error)
}

// Options tune a Service. MaxPixels bounds width*height of accepted images.
type Options struct {
	MaxUploadBytes int64
	MaxPixels      int64
	ThumbnailSize  uint
	CacheTTL       time.Duration
}

// Deps are the collaborators a Service is built from. Cache, Bus, Export and
// Matte are optional.
type Deps struct {
	Library *library.Library
	Blobs   storage.BlobStore
	Queue   RenderQueue
	Cache   cache.CacheAdapter
	Bus     events.EventBus
	Export  storage.StorageProvider
	Matte   pipeline.Matte
	Logger  logging.Logger
}

type Service struct {
	library  *library.Library
	blobs    storage.BlobStore
	queue    RenderQueue
	cache    cache.CacheAdapter
	strategy *cache.CacheStrategy
	monitor  *cache.CacheMonitor
	bus      events.EventBus
	export   storage.StorageProvider
	matte    pipeline.Matte
	logger   logging.Logger
	opts     Options
}

func NewService(deps Deps, opts Options) *Service {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = pipeline.DefaultMaxPixels
	}
	if opts.ThumbnailSize == 0 {
		opts.ThumbnailSize = 245
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	matte := deps.Matte
	if matte == nil {
		matte = pipeline.NearWhiteKey{}
	}

	return &Service{
		library: deps.Library,
		blobs:   deps.Blobs,
		queue:   deps.Queue,
		cache:   deps.Cache,
		strategy: cache.NewCacheStrategy(cache.CacheConfig{
			Prefix: "mediaedit:",
			TTL: map[string]time.Duration{
				"render":    opts.CacheTTL,
				"thumbnail": opts.CacheTTL,
			},
		}),
		monitor: cache.NewCacheMonitor(),
		bus:     deps.Bus,
		export:  deps.Export,
		matte:   matte,
		logger:  logger.Named("editor"),
		opts:    opts,
	}
}

func (s *Service) List(ctx context.Context) []*library.MediaItem {
	return s.library.List()
}

func (s *Service) Get(ctx context.Context, id string) (*library.MediaItem, error) {
	return s.library.Get(id)
}

// Active returns the newest item, the one the editor works on by default.
func (s *Service) Active(ctx context.Context) (*library.MediaItem, error) {
	return s.library.Active()
}

// CacheStats reports render and thumbnail cache effectiveness.
func (s *Service) CacheStats() cache.CacheStats {
	return s.monitor.GetStats()
}

func (s *Service) pipelineOpts() []pipeline.Option {
	return []pipeline.Option{pipeline.WithMaxPixels(s.opts.MaxPixels)}
}

func (s *Service) log(ctx context.Context) logging.Logger {
	return logging.WithContext(s.logger, ctx)
}

func (s *Service) publish(ctx context.Context, topic, mediaID string, data any) {
	if s.bus == nil {
		return
	}
	err := s.bus.Publish(ctx, events.Event{
		Name:    topic,
		MediaID: mediaID,
		Data:    data,
		Source:  eventSource,
	})
	if err != nil {
		s.log(ctx).Warn("event publish failed",
			zap.String("event", topic),
			logging.MediaID(mediaID),
			zap.Error(err))
	}
}
