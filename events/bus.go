package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/leeforge/mediaedit/logging"
)

// Bus is a buffered EventBus. Handlers run on their own goroutines, so a slow
// subscriber never blocks the editor. Publish holds sendMu shared across the
// closed check and the send, and Close holds it exclusively, so no event is
// queued after dispatch has drained.
type Bus struct {
	subscribers map[string][]subscriberEntry
	mu          sync.RWMutex
	ch          chan envelope
	wg          sync.WaitGroup
	sendMu      sync.RWMutex
	closed      bool
	logger      logging.Logger
	nextID      atomic.Uint64
	done        chan struct{}
	stopped     chan struct{}
}

type envelope struct {
	ctx   context.Context
	event Event
}

type subscriberEntry struct {
	id      uint64
	handler Handler
}

type subscription struct {
	bus   *Bus
	topic string
	id    uint64
}

func (s *subscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	subs := s.bus.subscribers[s.topic]
	for i, entry := range subs {
		if entry.id == s.id {
			s.bus.subscribers[s.topic] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

func NewBus(bufferSize int, logger logging.Logger) *Bus {
	if logger == nil {
		logger = logging.NewNop()
	}
	bus := &Bus{
		subscribers: make(map[string][]subscriberEntry),
		ch:          make(chan envelope, bufferSize),
		logger:      logger.Named("events"),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}

	go bus.dispatch()
	return bus
}

func (b *Bus) dispatch() {
	defer close(b.stopped)

	for {
		select {
		case env := <-b.ch:
			b.fanOut(env)
		case <-b.done:
			for {
				select {
				case env := <-b.ch:
					b.fanOut(env)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) fanOut(env envelope) {
	b.mu.RLock()
	subs := append([]subscriberEntry{}, b.subscribers[env.event.Name]...)
	b.mu.RUnlock()

	for _, entry := range subs {
		b.wg.Add(1)
		go func(h Handler) {
			defer b.wg.Done()
			if err := h(env.ctx, env.event); err != nil {
				b.logger.Warn("event handler error",
					zap.String("event", env.event.Name),
					logging.MediaID(env.event.MediaID),
					zap.Error(err))
			}
		}(entry.handler)
	}
}

// Publish queues event. The ctx handed to handlers is detached from the
// caller's cancellation so a finished request does not abort delivery.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	b.sendMu.RLock()
	defer b.sendMu.RUnlock()

	if b.closed {
		return ErrBusClosed
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	env := envelope{ctx: context.WithoutCancel(ctx), event: event}

	select {
	case b.ch <- env:
		return nil
	default:
		select {
		case b.ch <- env:
			return nil
		case <-ctx.Done():
			return ErrPublishTimeout
		}
	}
}

func (b *Bus) Subscribe(topic string, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID.Add(1)
	b.subscribers[topic] = append(b.subscribers[topic], subscriberEntry{
		id:      id,
		handler: handler,
	})
	return &subscription{bus: b, topic: topic, id: id}
}

// SubscribeAll registers handler on every editor topic.
func (b *Bus) SubscribeAll(handler Handler) []Subscription {
	subs := make([]Subscription, 0, len(Topics))
	for _, topic := range Topics {
		subs = append(subs, b.Subscribe(topic, handler))
	}
	return subs
}

func (b *Bus) Close() error {
	b.sendMu.Lock()
	if b.closed {
		b.sendMu.Unlock()
		return nil
	}
	b.closed = true
	b.sendMu.Unlock()

	close(b.done)
	<-b.stopped
	b.wg.Wait()
	return nil
}
