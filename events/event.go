// Package events fans edit notifications out to in-process subscribers.
package events

import (
	"context"
	"errors"
	"time"
)

const (
	TopicUploaded     = "media.uploaded"
	TopicRendered     = "media.rendered"
	TopicTrimmed      = "media.trimmed"
	TopicDeleted      = "media.deleted"
	TopicRenderFailed = "media.render_failed"
)

// Topics lists every topic the editor publishes.
var Topics = []string{
	TopicUploaded,
	TopicRendered,
	TopicTrimmed,
	TopicDeleted,
	TopicRenderFailed,
}

var (
	ErrBusClosed      = errors.New("event bus is closed")
	ErrPublishTimeout = errors.New("event publish timeout: buffer full")
)

type Event struct {
	Name      string    `json:"name"`
	MediaID   string    `json:"media_id"`
	Data      any       `json:"data,omitempty"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

type Handler func(ctx context.Context, event Event) error

type Subscription interface {
	Unsubscribe()
}

type EventBus interface {
	// Publish blocks while the buffer is full, until ctx ends.
	Publish(ctx context.Context, event Event) error
	Subscribe(topic string, handler Handler) Subscription
	// Close drains pending events and waits for running handlers.
	Close() error
}
