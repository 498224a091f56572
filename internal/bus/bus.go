// Package bus implements the in-process publish/subscribe backbone that
// connects the pipeline components. Delivery is asynchronous, at-most-once
// per subscriber per publish, with no durability or replay. Each subscriber
// owns a bounded queue drained by a single worker, so one subscriber sees
// events in publish order and a slow subscriber only ever drops its own
// events.
package bus

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Handler consumes one event. The context is the bus lifecycle context; it is
// cancelled when Stop gives up on draining in-flight handlers.
type Handler func(ctx context.Context, topic string, event any)

const (
	defaultDrainTimeout = 5 * time.Second
	defaultQueueSize    = 256
)

type delivery struct {
	topic string
	event any
}

type subscription struct {
	id      uint64
	pattern string
	name    string
	handler Handler

	// queue is allocated when the worker starts and closed exactly once,
	// both under the bus write lock.
	queue  chan delivery
	closed bool
}

// Bus routes events from publishers to pattern-matched subscribers. A pattern
// is either an exact topic or a prefix ending in "*" (trailing wildcard only).
type Bus struct {
	log          zerolog.Logger
	drainTimeout time.Duration
	queueSize    int

	mu      sync.RWMutex
	subs    map[uint64]*subscription
	nextID  uint64
	running bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures Bus construction parameters.
type Option func(*Bus)

// WithDrainTimeout overrides how long Stop waits for in-flight handlers.
func WithDrainTimeout(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.drainTimeout = d
		}
	}
}

// WithQueueSize overrides the per-subscriber queue capacity.
func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// New constructs a stopped bus; call Start before publishing.
func New(log zerolog.Logger, opts ...Option) *Bus {
	b := &Bus{
		log:          log,
		drainTimeout: defaultDrainTimeout,
		queueSize:    defaultQueueSize,
		subs:         make(map[uint64]*subscription),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start opens the bus for publishing and launches a worker per subscriber.
func (b *Bus) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return
	}
	b.ctx, b.cancel = context.WithCancel(context.Background())
	b.running = true
	for _, sub := range b.subs {
		b.startWorkerLocked(sub)
	}
}

// Stop closes the bus, stops accepting publishes, and waits for each worker to
// drain its queue. Handlers still running after the drain timeout are
// cancelled through their context and abandoned.
func (b *Bus) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	cancel := b.cancel
	for _, sub := range b.subs {
		b.closeQueueLocked(sub)
	}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(b.drainTimeout):
		b.log.Warn().Dur("timeout", b.drainTimeout).Msg("bus drain timed out, cancelling handlers")
	}
	cancel()
}

// Subscribe registers a handler for every topic matching pattern and returns
// a token for Unsubscribe. The name is used only in log context.
func (b *Bus) Subscribe(pattern, name string, handler Handler) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &subscription{id: b.nextID, pattern: pattern, name: name, handler: handler}
	b.subs[sub.id] = sub
	if b.running {
		b.startWorkerLocked(sub)
	}
	return sub.id
}

// Unsubscribe removes a previously registered handler. Unknown tokens are a
// no-op. Deliveries already queued for the handler are still drained.
func (b *Bus) Unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	b.closeQueueLocked(sub)
}

// Publish enqueues the event for every matching subscriber and returns
// immediately. Events published while the bus is stopped are dropped, as are
// events for a subscriber whose queue is full.
func (b *Bus) Publish(topic string, event any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.running {
		return
	}
	d := delivery{topic: topic, event: event}
	for _, sub := range b.subs {
		if !matchTopic(sub.pattern, topic) {
			continue
		}
		select {
		case sub.queue <- d:
		default:
			b.log.Warn().
				Str("topic", topic).
				Str("handler", sub.name).
				Msg("subscriber queue full, dropping event")
		}
	}
}

// startWorkerLocked allocates the subscriber queue and launches its worker.
// Caller holds the write lock.
func (b *Bus) startWorkerLocked(sub *subscription) {
	sub.queue = make(chan delivery, b.queueSize)
	sub.closed = false
	b.wg.Add(1)
	go b.run(b.ctx, sub)
}

// closeQueueLocked closes the subscriber queue exactly once. Publish sends
// under the read lock, so closing under the write lock cannot race a send.
func (b *Bus) closeQueueLocked(sub *subscription) {
	if sub.closed || sub.queue == nil {
		return
	}
	sub.closed = true
	close(sub.queue)
}

// run drains one subscriber queue in order until it is closed.
func (b *Bus) run(ctx context.Context, sub *subscription) {
	defer b.wg.Done()
	for d := range sub.queue {
		b.invoke(ctx, sub, d.topic, d.event)
	}
}

// invoke isolates one handler call: a panic is logged with full context and
// never reaches the publisher or other subscribers.
func (b *Bus) invoke(ctx context.Context, sub *subscription, topic string, event any) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Str("topic", topic).
				Str("handler", sub.name).
				Str("event", fmt.Sprintf("%+v", event)).
				Interface("panic", r).
				Msg("bus handler panicked")
		}
	}()
	sub.handler(ctx, topic, event)
}

func matchTopic(pattern, topic string) bool {
	if pattern == topic {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(topic, pattern[:len(pattern)-1])
	}
	return false
}
