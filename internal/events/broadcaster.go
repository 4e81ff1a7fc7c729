// Package events fans out in-process notifications to subscribers.
package events

import "sync"

const defaultBuffer = 64

// Broadcaster fans out values to all subscribers via buffered channels.
// It keeps the API intentionally small so call sites can stay straightforward.
type Broadcaster[T any] struct {
	mu     sync.RWMutex
	subs   map[chan T]struct{}
	buffer int
	latest bool
}

// NewBroadcaster creates a broadcaster with the given per-subscriber buffer.
func NewBroadcaster[T any](buffer int) *Broadcaster[T] {
	if buffer < 1 {
		buffer = defaultBuffer
	}
	return &Broadcaster[T]{
		subs:   make(map[chan T]struct{}),
		buffer: buffer,
	}
}

// NewLatestBroadcaster creates a broadcaster that holds only the newest
// value per subscriber. A slow reader skips intermediate values but always
// ends up with the last one published. Suited to state snapshots.
func NewLatestBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{
		subs:   make(map[chan T]struct{}),
		buffer: 1,
		latest: true,
	}
}

// Publish sends v to all subscribers. A plain broadcaster drops v for a
// reader whose buffer is full; a latest broadcaster replaces the pending
// value instead. Publish never blocks, so it is safe to call while holding
// other locks.
func (b *Broadcaster[T]) Publish(v T) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		if b.latest {
			replace(ch, v)
			continue
		}
		select {
		case ch <- v:
		default:
			// drop slow consumer
		}
	}
}

func replace[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		// slot is taken by a stale value, evict it
		select {
		case <-ch:
		default:
		}
	}
}

// Subscribe returns a channel that receives values until Unsubscribe is called.
func (b *Broadcaster[T]) Subscribe() chan T {
	ch := make(chan T, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the channel and closes it.
func (b *Broadcaster[T]) Unsubscribe(ch chan T) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Subscribers returns the number of active subscribers.
func (b *Broadcaster[T]) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
