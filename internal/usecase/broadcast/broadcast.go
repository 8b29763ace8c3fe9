// Package broadcast provides a one-producer, many-consumer update stream
// with a snapshot cell for late-subscriber replay.
package broadcast

import (
	"sync"

	"github.com/oklog/ulid/v2"
)

// DefaultCapacity is the per-subscriber backlog. A slow consumer loses the
// oldest buffered updates once it falls this far behind; this is acceptable
// because every update is self-describing and new subscribers are primed
// with a fresh snapshot.
const DefaultCapacity = 16

// Broadcaster fans updates out to any number of subscribers, each with an
// independent buffered receive end. It also retains the latest published
// value so late subscribers can be primed with current state.
type Broadcaster[T any] struct {
	mu        sync.Mutex
	subs      map[string]chan T
	latest    T
	hasLatest bool
	capacity  int
	closed    bool
}

// New creates a broadcaster with the default per-subscriber capacity.
func New[T any]() *Broadcaster[T] {
	return NewWithCapacity[T](DefaultCapacity)
}

// NewWithCapacity creates a broadcaster with the given backlog per
// subscriber.
func NewWithCapacity[T any](capacity int) *Broadcaster[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Broadcaster[T]{
		subs:     make(map[string]chan T),
		capacity: capacity,
	}
}

// Publish stores v as the latest value and delivers it to every subscriber,
// dropping the oldest buffered update for any subscriber whose backlog is
// full.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.latest = v
	b.hasLatest = true
	for _, ch := range b.subs {
		deliver(ch, v)
	}
}

// Subscribe returns a fresh receive end and a cancel function. The channel
// is closed on cancel and on Close.
func (b *Broadcaster[T]) Subscribe() (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subscribeLocked()
}

// SubscribeReplay is Subscribe, with the latest published value (if any)
// delivered first. Only the current value is replayed, never history.
func (b *Broadcaster[T]) SubscribeReplay() (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, cancel := b.subscribeLocked()
	if b.hasLatest && !b.closed {
		deliver(ch, b.latest)
	}
	return ch, cancel
}

// SubscribeSeeded is Subscribe, with first delivered before any live
// update. Used for per-subscriber Init snapshots that differ from the
// shared latest value.
func (b *Broadcaster[T]) SubscribeSeeded(first T) (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, cancel := b.subscribeLocked()
	if !b.closed {
		deliver(ch, first)
	}
	return ch, cancel
}

// Latest returns the most recently published value, if any.
func (b *Broadcaster[T]) Latest() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest, b.hasLatest
}

// Subscribers returns the number of attached receive ends.
func (b *Broadcaster[T]) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscriber channel and rejects further publishes.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}

func (b *Broadcaster[T]) subscribeLocked() (chan T, func()) {
	ch := make(chan T, b.capacity)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := ulid.Make().String()
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// deliver pushes v onto ch, evicting the oldest buffered element if the
// backlog is full. The caller holds the broadcaster lock, so there is no
// competing producer and the loop terminates after at most one eviction
// per competing receiver.
func deliver[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
