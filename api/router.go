// Package api exposes the editor over HTTP.
package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/leeforge/mediaedit/http/middleware"
	"github.com/leeforge/mediaedit/http/responder"
	"github.com/leeforge/mediaedit/logging"
)

type RouterOptions struct {
	// CORSOrigins lists browser origins allowed to call the API. "*" allows
	// any origin; empty disables CORS.
	CORSOrigins []string
}

// NewRouter mounts the media routes under /api/v1 plus /healthz.
func NewRouter(h *Handler, logger logging.Logger, opts RouterOptions) chi.Router {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.Named("http")

	r := chi.NewRouter()
	r.Use(middleware.TraceIDMiddleware())
	r.Use(middleware.TimingMiddleware())
	r.Use(logging.HTTPMiddleware(logger))
	r.Use(logging.RecoveryMiddleware(logger))
	r.Use(middleware.CORSMiddleware(middleware.DefaultCORSConfig(opts.CORSOrigins...)))
	r.Use(middleware.NoSniffMiddleware)
	r.NotFound(responder.RouteNotFound)
	r.MethodNotAllowed(responder.MethodNotAllowed)

	r.Get("/healthz", h.Health)

	r.Route("/api/v1/media", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Upload)
		r.Get("/active", h.Active)

		r.Route("/{id}", func(r chi.Router) {
			r.Use(middleware.MediaIDMiddleware(mediaID))

			r.Get("/", h.Get)
			r.Delete("/", h.Delete)
			r.Get("/original", h.Original)
			r.Get("/modified", h.Download)
			r.Get("/thumbnail", h.Thumbnail)
			r.Post("/adjust", h.Adjust)
			r.Post("/text", h.Text)
			r.Post("/crop", h.Crop)
			r.Post("/background", h.Background)
			r.Post("/trim", h.Trim)
			r.Post("/export", h.Export)
		})
	})

	return r
}

func mediaID(r *http.Request) string {
	return chi.URLParam(r, "id")
}

// LogRoutes writes every registered route to logger at debug level.
func LogRoutes(r chi.Routes, logger logging.Logger) error {
	return chi.Walk(r, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		logger.Debug("route registered",
			zap.String("method", method),
			zap.String("route", strings.ReplaceAll(route, "/*/", "/")))
		return nil
	})
}
