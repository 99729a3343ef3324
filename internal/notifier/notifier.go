package notifier

import (
	"sync"
)

// Notifier fans a value out to every subscriber. Publish never blocks: each
// subscriber channel holds at most one pending value and a newer value
// replaces an unread older one.
type Notifier[T any] struct {
	mu          sync.RWMutex
	subscribers map[uint64]chan T
	nextID      uint64
}

// New creates an empty Notifier
func New[T any]() *Notifier[T] {
	return &Notifier[T]{
		subscribers: make(map[uint64]chan T),
	}
}

// Subscribe registers a new subscriber. The returned function removes the
// subscription and closes the channel; it is safe to call more than once.
func (n *Notifier[T]) Subscribe() (<-chan T, func()) {
	ch := make(chan T, 1)

	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subscribers[id] = ch
	n.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			delete(n.subscribers, id)
			close(ch)
		})
	}
}

// Publish delivers value to all subscribers
func (n *Notifier[T]) Publish(value T) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for _, ch := range n.subscribers {
		select {
		case ch <- value:
			continue
		default:
		}

		// Drop the stale pending value
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- value:
		default:
		}
	}
}
