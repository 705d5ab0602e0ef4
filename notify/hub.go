package notify

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pressograph/prefsync"
)

// DefaultSubscriberBuffer is the channel capacity handed to each subscriber.
const DefaultSubscriberBuffer = 16

// Hub is an in-process Notifier. It remembers the latest change per user and
// kind and forwards every change to that user's subscribers. Delivery never
// blocks the writer: a subscriber whose buffer is full misses the change.
type Hub struct {
	mu      sync.RWMutex
	latest  map[string]prefsync.Change
	subs    map[string]map[uint64]chan prefsync.Change
	nextID  uint64
	dropped atomic.Uint64
	buffer  int
}

// NewHub returns an empty Hub. A non-positive buffer uses DefaultSubscriberBuffer.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Hub{
		latest: make(map[string]prefsync.Change),
		subs:   make(map[string]map[uint64]chan prefsync.Change),
		buffer: buffer,
	}
}

// Notify records change and forwards it to the user's subscribers.
// Anonymous changes are recorded under the empty user ID.
func (h *Hub) Notify(_ context.Context, change prefsync.Change) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.latest[prefsync.CacheKey(change.Kind, change.UserID)] = change
	// Sends happen under the lock so cancel cannot close a channel mid-send.
	for _, ch := range h.subs[change.UserID] {
		select {
		case ch <- change:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

// Latest returns the most recent change for userID and kind.
func (h *Hub) Latest(userID, kind string) (prefsync.Change, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.latest[prefsync.CacheKey(kind, userID)]
	return c, ok
}

// Subscribe returns a channel that receives every later change for userID.
// cancel removes the subscription and closes the channel; it is safe to
// call more than once.
func (h *Hub) Subscribe(userID string) (<-chan prefsync.Change, func()) {
	ch := make(chan prefsync.Change, h.buffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[uint64]chan prefsync.Change)
	}
	h.subs[userID][id] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[userID], id)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			close(ch)
		})
	}
	return ch, cancel
}

// Subscribers reports how many subscriptions userID has.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// Dropped reports how many deliveries were skipped because a subscriber
// was not keeping up.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}
