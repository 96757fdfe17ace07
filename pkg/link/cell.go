package link

import (
	"sync"
)

// Cell is a single-slot latest-value holder with change notification.
// A producer calls Set from a notification handler; consumers subscribe
// and receive the value at subscription time followed by every distinct
// change (distinct-until-changed semantics).
type Cell[T comparable] struct {
	lock  sync.Mutex
	value T
	set   bool
	subs  map[chan T]struct{}
}

// NewCell creates a Cell holding an initial value.
func NewCell[T comparable](initial T) *Cell[T] {
	return &Cell[T]{
		value: initial,
		set:   true,
		subs:  make(map[chan T]struct{}),
	}
}

// Get returns the current value.
func (c *Cell[T]) Get() T {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.value
}

// Set replaces the current value. Subscribers are notified only when
// the value differs from the previous one. Notification never blocks
// the producer: a subscriber that has not drained its channel misses
// intermediate values but always observes the latest transition.
func (c *Cell[T]) Set(v T) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.set && v == c.value {
		return
	}
	c.value, c.set = v, true
	for ch := range c.subs {
		select {
		case ch <- v:
		default:
			// drop the stale value so the latest one fits
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- v:
			default:
			}
		}
	}
}

// Subscribe registers a consumer channel. The current value is
// delivered immediately. Call the returned func to unsubscribe.
func (c *Cell[T]) Subscribe(buffer int) (<-chan T, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan T, buffer)
	c.lock.Lock()
	ch <- c.value
	c.subs[ch] = struct{}{}
	c.lock.Unlock()
	return ch, func() {
		c.lock.Lock()
		delete(c.subs, ch)
		c.lock.Unlock()
	}
}
