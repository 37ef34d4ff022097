package hub

import (
	"sync"

	"VolDesk/internal/domain/models"
	"VolDesk/internal/domain/repository"
	applogger "VolDesk/pkg/logger"
)

// Hub fans committed records out to live subscribers. Each subscriber owns a
// bounded buffer; a publisher never blocks on a slow or dead subscriber.
// When a buffer overflows, the oldest buffered events are dropped and the
// next delivered event carries Gap=true with the drop count, so consumers
// see an explicit marker instead of silent loss.
//
// Per-subscriber delivery order equals publish order. The hub does not order
// concurrent publishers; the record store serializes Publish calls in commit
// order.
type Hub struct {
	mu      sync.RWMutex
	subs    map[uint64]*Subscription
	nextID  uint64
	bufSize int
	closed  bool

	log     *applogger.Logger
	metrics repository.Metrics
}

// Subscription is one live subscriber's handle. Events() yields committed
// records from "now" onward; there is no backlog replay. Close releases the
// handle; the events channel is closed afterwards.
type Subscription struct {
	id  uint64
	ch  chan models.Event
	hub *Hub

	closeOnce sync.Once
}

// Events returns the subscriber's event channel.
func (s *Subscription) Events() <-chan models.Event { return s.ch }

// Close unsubscribes. Safe to call more than once; has no effect on other
// subscribers or on publishers.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() { s.hub.remove(s) })
}

// New creates a hub with the given per-subscriber buffer size.
func New(bufSize int, log *applogger.Logger, metrics repository.Metrics) *Hub {
	if bufSize < 1 {
		bufSize = 1
	}
	return &Hub{
		subs:    make(map[uint64]*Subscription),
		bufSize: bufSize,
		log:     log,
		metrics: metrics,
	}
}

// Subscribe registers a new live subscriber starting from "now".
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscription{
		id:  h.nextID,
		ch:  make(chan models.Event, h.bufSize),
		hub: h,
	}
	if h.closed {
		close(sub.ch)
		return sub
	}
	h.subs[sub.id] = sub
	h.metrics.SetSubscribers(len(h.subs))
	return sub
}

// Publish delivers one event to every registered subscriber without
// blocking. Subscriber buffers that are full lose their oldest entries.
func (h *Hub) Publish(ev models.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		h.deliver(sub, ev)
	}
}

// SubscriberCount returns the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close drops all subscribers and closes their channels. Subsequent
// Publish calls are no-ops; subsequent Subscribe calls return a closed
// subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
	}
	h.metrics.SetSubscribers(0)
}

func (h *Hub) deliver(sub *Subscription, ev models.Event) {
	select {
	case sub.ch <- ev:
		return
	default:
	}

	// Buffer full: drop oldest entries until the event fits, then flag the
	// delivered copy with the gap. Never blocks the publisher.
	dropped := 0
	for {
		select {
		case <-sub.ch:
			dropped++
		default:
		}

		flagged := ev
		flagged.Gap = true
		flagged.Dropped = dropped
		select {
		case sub.ch <- flagged:
			h.metrics.AddDroppedEvents(dropped)
			h.log.Warn("slow subscriber dropped events",
				applogger.Uint64("subscriber", sub.id),
				applogger.Int("dropped", dropped),
				applogger.Uint64("seq", ev.Seq))
			return
		default:
		}
	}
}

// remove is called from Subscription.Close. The write lock excludes any
// in-flight Publish, so closing the channel cannot race a send.
func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[sub.id]; !ok {
		return
	}
	delete(h.subs, sub.id)
	close(sub.ch)
	h.metrics.SetSubscribers(len(h.subs))
}
