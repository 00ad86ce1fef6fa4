package responder

import (
	"net/http"

	"github.com/leeforge/mediaedit/http/middleware"
	"github.com/leeforge/mediaedit/logging"
)

func WithTraceID(id string) Option {
	return func(m *Meta) {
		m.TraceId = id
	}
}

func WithTook(ms int64) Option {
	return func(m *Meta) {
		m.Took = ms
	}
}

func NewMeta(opts ...Option) *Meta {
	meta := Meta{}
	for _, opt := range opts {
		opt(&meta)
	}
	return &meta
}

// requestMeta fills trace id and timing from the request context. Explicit
// options passed by the caller win.
func requestMeta(r *http.Request, opts []Option) *Meta {
	if r == nil {
		return NewMeta(opts...)
	}
	base := []Option{
		WithTraceID(logging.GetTraceID(r.Context())),
		WithTook(middleware.GetRequestDuration(r.Context())),
	}
	return NewMeta(append(base, opts...)...)
}
