package audit

import (
	"sync"

	"github.com/yanun0323/logs"
)

// DefaultCapacity is the default per-subscriber backlog.
const DefaultCapacity = 1024

// Lagged notifies a detached subscriber how many ticks it missed.
type Lagged struct {
	Count uint64
}

// Subscription is one consumer's view of the audit stream. Read ticks
// from C; a value on Lagged means the subscription was detached after
// falling behind and C will be closed.
type Subscription struct {
	C      <-chan Tick
	Lagged <-chan Lagged

	ch        chan Tick
	lagged    chan Lagged
	hub       *Hub
	delivered uint64
}

// Close detaches the subscription from the hub.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s, 0)
}

// Hub broadcasts audit ticks to every subscriber. Publishing never
// blocks: a subscriber whose backlog is full is detached and notified.
type Hub struct {
	mu        sync.Mutex
	subs      map[*Subscription]struct{}
	capacity  int
	published uint64
	closed    bool
}

// NewHub creates a hub with the given per-subscriber backlog.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Hub{
		subs:     make(map[*Subscription]struct{}),
		capacity: capacity,
	}
}

// Subscribe attaches a new consumer.
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub := &Subscription{
		ch:        make(chan Tick, h.capacity),
		lagged:    make(chan Lagged, 1),
		hub:       h,
		delivered: h.published,
	}
	sub.C = sub.ch
	sub.Lagged = sub.lagged
	if h.closed {
		close(sub.ch)
		return sub
	}
	h.subs[sub] = struct{}{}
	return sub
}

// Publish delivers one tick to every subscriber without blocking.
func (h *Hub) Publish(tick Tick) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.published++
	for sub := range h.subs {
		select {
		case sub.ch <- tick:
			sub.delivered++
		default:
			lag := h.published - sub.delivered
			logs.Infof("audit subscriber lagged by %d at seq %d, detaching", lag, tick.Seq)
			h.detachLocked(sub, lag)
		}
	}
}

// Close detaches every subscriber and closes their channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		close(sub.ch)
		delete(h.subs, sub)
	}
}

func (h *Hub) unsubscribe(sub *Subscription, lag uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; !ok {
		return
	}
	h.detachLocked(sub, lag)
}

func (h *Hub) detachLocked(sub *Subscription, lag uint64) {
	delete(h.subs, sub)
	if lag > 0 {
		sub.lagged <- Lagged{Count: lag}
	}
	close(sub.ch)
}
