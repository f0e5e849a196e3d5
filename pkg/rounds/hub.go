package rounds

import (
	"context"
	"sync"

	"github.com/fadedpez/wagerline/internal/metrics"
	"github.com/fadedpez/wagerline/pkg/entities"
)

// snapshotBuffer is how many snapshots a subscriber may lag behind before
// the oldest is dropped
const snapshotBuffer = 8

// Hub fans round snapshots out to subscribers
type Hub struct {
	game entities.GameKind

	mu     sync.Mutex
	subs   map[int]chan entities.RoundSnapshot
	next   int
	closed bool
}

// NewHub creates a hub for game
func NewHub(game entities.GameKind) *Hub {
	return &Hub{
		game: game,
		subs: make(map[int]chan entities.RoundSnapshot),
	}
}

// Subscribe returns a channel that starts with initial and then receives
// every published snapshot. It is closed when ctx ends or the hub closes; a
// closed hub returns an already closed channel.
func (h *Hub) Subscribe(ctx context.Context, initial entities.RoundSnapshot) <-chan entities.RoundSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan entities.RoundSnapshot, snapshotBuffer)
	ch <- initial
	if h.closed {
		close(ch)
		return ch
	}

	id := h.next
	h.next++
	h.subs[id] = ch
	metrics.RoundSubscribers.WithLabelValues(string(h.game)).Inc()

	go func() {
		<-ctx.Done()
		h.remove(id)
	}()
	return ch
}

func (h *Hub) remove(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
		metrics.RoundSubscribers.WithLabelValues(string(h.game)).Dec()
	}
}

// Publish delivers snap to every subscriber without blocking. A subscriber
// whose buffer is full loses its oldest snapshot.
func (h *Hub) Publish(snap entities.RoundSnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs {
		h.send(ch, snap)
	}
}

// send must be called with mu held
func (h *Hub) send(ch chan entities.RoundSnapshot, snap entities.RoundSnapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Close closes every subscriber channel
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
		metrics.RoundSubscribers.WithLabelValues(string(h.game)).Dec()
	}
}
