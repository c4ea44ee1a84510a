// Package broadcast implements the shared fan-out point through which all
// real-time events reach currently open, authorized connections.
package broadcast

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Event is a published message: a flat mapping of named fields carrying at
// least a "method" tag. Events are fire-and-forget and never persisted.
type Event map[string]any

// Method returns the event's method tag, or "" if absent.
func (e Event) Method() string {
	m, _ := e["method"].(string)
	return m
}

// Agent returns the target agent identifier ("cc_agent"), or "" if absent.
func (e Event) Agent() string {
	a, _ := e["cc_agent"].(string)
	return a
}

// FilterFunc decides whether an event is visible to one subscriber. It is
// re-evaluated per event at delivery time; it must read live subscriber
// state rather than a snapshot.
type FilterFunc func(Event) bool

// DeliverFunc sends an event to one subscriber. Errors are logged and
// isolated to that subscriber.
type DeliverFunc func(Event) error

// subscriberQueueLen bounds the per-subscription backlog. A subscriber that
// cannot drain this many events loses the overflow rather than stalling the
// publisher or its peers.
const subscriberQueueLen = 64

type subscription struct {
	id      string
	filter  FilterFunc
	deliver DeliverFunc
	queue   chan Event
	done    chan struct{}
}

// Hub is the process-wide broadcast channel. It is constructed once at
// service start and passed to every session; there is exactly one topic.
type Hub struct {
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[string]*subscription
}

// New creates a Hub.
func New(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger.With("component", "broadcast"),
		subs:   make(map[string]*subscription),
	}
}

// Subscribe registers a filtered subscription and returns its handle. The
// subscription's filter and delivery run on a goroutine of their own, fed by
// a bounded queue, so one subscriber can never stall another.
func (h *Hub) Subscribe(filter FilterFunc, deliver DeliverFunc) string {
	sub := &subscription{
		id:      uuid.New().String(),
		filter:  filter,
		deliver: deliver,
		queue:   make(chan Event, subscriberQueueLen),
		done:    make(chan struct{}),
	}
	h.mu.Lock()
	h.subs[sub.id] = sub
	h.mu.Unlock()

	go h.drain(sub)
	return sub.id
}

// Unsubscribe removes a subscription and stops its drain goroutine. Unknown
// handles are a no-op, so a subscriber racing close against publish
// deregisters safely exactly once.
func (h *Hub) Unsubscribe(handle string) {
	h.mu.Lock()
	sub, ok := h.subs[handle]
	delete(h.subs, handle)
	h.mu.Unlock()

	if ok {
		close(sub.done)
	}
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish enqueues the event for every live subscription and returns without
// waiting on any of them. A subscriber whose queue is full loses the event;
// it never delays the publisher or the other subscribers.
func (h *Hub) Publish(e Event) {
	h.mu.RLock()
	subs := make([]*subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.queue <- e:
		default:
			h.logger.Warn("subscriber queue full, dropping event",
				"subscription", sub.id, "method", e.Method())
		}
	}
}

// drain runs one subscription's filter and delivery until it unsubscribes.
// Events still queued at unsubscribe time are discarded.
func (h *Hub) drain(sub *subscription) {
	for {
		select {
		case <-sub.done:
			return
		case e := <-sub.queue:
			h.offer(sub, e)
		}
	}
}

func (h *Hub) offer(sub *subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Warn("subscriber panicked during delivery", "subscription", sub.id, "panic", r)
		}
	}()

	if !sub.filter(e) {
		return
	}
	if err := sub.deliver(e); err != nil {
		h.logger.Debug("delivery failed", "subscription", sub.id, "method", e.Method(), "error", err)
	}
}
