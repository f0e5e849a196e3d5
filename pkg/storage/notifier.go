package storage

import (
	"context"
	"sync"
)

// subscriberBuffer bounds how far a slow subscriber may lag before events
// are dropped for it
const subscriberBuffer = 64

type subscriber struct {
	prefix string
	ch     chan Event
}

// Notifier fans change events out to in-process subscribers. Backends
// without a native change feed use it to implement Subscribe.
type Notifier struct {
	mu     sync.RWMutex
	subs   map[int]*subscriber
	next   int
	closed bool
}

// NewNotifier creates an empty notifier
func NewNotifier() *Notifier {
	return &Notifier{
		subs: make(map[int]*subscriber),
	}
}

// Subscribe registers a subscriber for prefix. The channel is closed when
// ctx ends or the notifier is closed.
func (n *Notifier) Subscribe(ctx context.Context, prefix string) (<-chan Event, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil, ErrClosed
	}

	id := n.next
	n.next++
	sub := &subscriber{prefix: prefix, ch: make(chan Event, subscriberBuffer)}
	n.subs[id] = sub

	go func() {
		<-ctx.Done()
		n.remove(id)
	}()

	return sub.ch, nil
}

func (n *Notifier) remove(id int) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if sub, ok := n.subs[id]; ok {
		delete(n.subs, id)
		close(sub.ch)
	}
}

// Publish delivers ev to every matching subscriber without blocking
func (n *Notifier) Publish(ev Event) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for _, sub := range n.subs {
		if !Matches(sub.prefix, ev.Path) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// Close closes every subscriber channel
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.closed = true
	for id, sub := range n.subs {
		delete(n.subs, id)
		close(sub.ch)
	}
}
