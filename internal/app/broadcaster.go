package app

import (
	"sync"

	"github.com/MrWong99/dramaturg/internal/engine"
)

// subscriberBuffer is the per-subscriber channel capacity. A subscriber that
// falls this far behind starts losing intermediate snapshots.
const subscriberBuffer = 8

// Broadcaster fans out status snapshots to any number of subscribers.
// Publishing never blocks: when a subscriber's buffer is full, the snapshot
// is dropped for that subscriber. All methods are safe for concurrent use.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan engine.Status
	nextID int
	closed bool
}

// NewBroadcaster returns an empty, ready-to-use [Broadcaster].
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan engine.Status)}
}

// Subscribe registers a new subscriber and returns its channel along with a
// cancel function. The channel is closed by cancel or by [Broadcaster.Close].
func (b *Broadcaster) Subscribe() (<-chan engine.Status, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan engine.Status, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

// Publish delivers st to every subscriber whose buffer has room.
func (b *Broadcaster) Publish(st engine.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- st:
		default:
		}
	}
}

// Close closes all subscriber channels. Subsequent Subscribe calls return an
// already-closed channel; subsequent Publish calls are no-ops.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
