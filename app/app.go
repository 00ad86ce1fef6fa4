// Package app assembles the service from configuration and owns its
// lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/leeforge/mediaedit/api"
	"github.com/leeforge/mediaedit/cache"
	"github.com/leeforge/mediaedit/config"
	"github.com/leeforge/mediaedit/events"
	"github.com/leeforge/mediaedit/logging"
	"github.com/leeforge/mediaedit/media/editor"
	"github.com/leeforge/mediaedit/media/library"
	"github.com/leeforge/mediaedit/media/queue"
	"github.com/leeforge/mediaedit/media/storage"
	"github.com/leeforge/mediaedit/redis_client"
)

const eventBuffer = 1024

type closer struct {
	name  string
	close func(context.Context) error
}

// App holds every long-lived component. Components are closed in reverse
// start order.
type App struct {
	cfg     *config.AppConfig
	logger  logging.Logger
	router  chi.Router
	editor  *editor.Service
	queue   *queue.AsyncProcessor
	bus     *events.Bus
	redis   *redis.Client
	export  storage.StorageProvider
	closers []closer
}

// New builds the service. Redis and the export sink are optional: when they
// cannot be set up the service starts without them and logs a warning.
func New(ctx context.Context, cfg *config.AppConfig, logger logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	startTime := time.Now()
	a := &App{cfg: cfg, logger: logger}

	if cfg.Redis.Enabled {
		if err := a.startRedis(ctx); err != nil {
			logger.Warn("redis unavailable, events stay in process", zap.Error(err))
		}
	}

	// The bus closes before redis so queued events are still forwarded.
	a.bus = events.NewBus(eventBuffer, logger)
	a.onClose("events", func(context.Context) error {
		return a.bus.Close()
	})
	if a.redis != nil {
		events.NewRedisForwarder(a.redis, cfg.Redis.Channel, logger).Attach(a.bus)
	}

	adapter := cache.NewSimpleAdapter(time.Minute)
	a.onClose("cache", func(context.Context) error {
		adapter.Close()
		return nil
	})

	a.queue = queue.NewAsyncProcessor(queue.Options{
		Workers:   cfg.Pipeline.Workers,
		QueueSize: cfg.Pipeline.QueueSize,
		Timeout:   cfg.Pipeline.RenderTimeout,
	}, logger)
	a.queue.Start()
	a.onClose("queue", func(ctx context.Context) error {
		return a.queue.Stop(remaining(ctx))
	})

	if cfg.Export.Type != "" {
		provider, err := storage.NewProviderFactory().CreateFromConfig(storage.ProviderConfig{
			Type:     cfg.Export.Type,
			Settings: cfg.Export.Settings,
		})
		if err != nil {
			logger.Warn("export sink unavailable", zap.String("type", cfg.Export.Type), zap.Error(err))
		} else {
			a.export = provider
		}
	}

	a.editor = editor.NewService(editor.Deps{
		Library: library.New(),
		Blobs:   storage.NewMemoryBlobStore(),
		Queue:   a.queue,
		Cache:   adapter,
		Bus:     a.bus,
		Export:  a.export,
		Logger:  logger,
	}, editor.Options{
		MaxUploadBytes: cfg.Pipeline.MaxUploadBytes,
		MaxPixels:      cfg.Pipeline.MaxPixels,
		ThumbnailSize:  cfg.Pipeline.ThumbnailSize,
		CacheTTL:       cfg.Pipeline.CacheTTL,
	})

	a.router = api.NewRouter(api.NewHandler(api.Config{
		Editor:         a.editor,
		Queue:          a.queue,
		Logger:         logger,
		MaxUploadBytes: cfg.Pipeline.MaxUploadBytes,
	}), logger, api.RouterOptions{CORSOrigins: cfg.Server.CORSOrigins})
	if err := api.LogRoutes(a.router, logger); err != nil {
		logger.Warn("route listing failed", zap.Error(err))
	}

	logger.Info("bootstrap completed",
		zap.Duration("duration", time.Since(startTime)),
		zap.Bool("redis", a.redis != nil),
		zap.Bool("export", a.export != nil))
	return a, nil
}

func (a *App) startRedis(ctx context.Context) error {
	client, err := redis_client.NewRedis(ctx, a.cfg.Redis, a.logger)
	if err != nil {
		return err
	}
	a.redis = client
	a.onClose("redis", func(context.Context) error {
		return client.Close()
	})
	return nil
}

func (a *App) onClose(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, closer{name: name, close: fn})
}

func (a *App) Handler() http.Handler {
	return a.router
}

func (a *App) Editor() *editor.Service {
	return a.editor
}

// Serve accepts connections on ln until ctx is done, then shuts down.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.router,
		ReadTimeout:       a.cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      a.cfg.Server.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		return errors.Join(err, a.Shutdown(context.Background()))
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	srvErr := srv.Shutdown(shutdownCtx)
	if srvErr != nil {
		srvErr = fmt.Errorf("http shutdown: %w", srvErr)
	}
	return errors.Join(srvErr, a.Shutdown(shutdownCtx))
}

// ListenAndServe serves on the configured address until ctx is done.
func (a *App) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.cfg.Server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Shutdown closes components in reverse start order. It is safe to call
// more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(ctx); err != nil {
			a.logger.Error("component shutdown failed", zap.String("component", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	a.closers = nil

	a.logger.Info("shutdown completed")
	return errors.Join(errs...)
}

func remaining(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d > 0 {
			return d
		}
		return 0
	}
	return 30 * time.Second
}
