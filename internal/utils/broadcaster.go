package utils

import (
	"sync"
)

// Broadcaster fans out values to any number of subscribers. Slow subscribers
// whose buffers are full are dropped instead of blocking the publisher.
type Broadcaster[T any] struct {
	mu        *sync.RWMutex
	listeners map[chan T]struct{}
	closed    bool
}

func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{
		mu:        &sync.RWMutex{},
		listeners: make(map[chan T]struct{}),
	}
}

func (b *Broadcaster[T]) Subscribe(buf int) <-chan T {
	ch := make(chan T, buf)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.listeners[ch] = struct{}{}
	return ch
}

func (b *Broadcaster[T]) Unsubscribe(ch <-chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.listeners {
		if (<-chan T)(c) == ch {
			delete(b.listeners, c)
			close(c)
			break
		}
	}
}

// Publish delivers v to every subscriber and returns the number of
// subscribers dropped because their buffer was full.
func (b *Broadcaster[T]) Publish(v T) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var stale []chan T
	for ch := range b.listeners {
		select {
		case ch <- v:
		default:
			stale = append(stale, ch)
		}
	}

	if len(stale) > 0 {
		go b.remove(stale)
	}
	return len(stale)
}

func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for ch := range b.listeners {
		close(ch)
	}
	b.listeners = nil
	b.closed = true
}

func (b *Broadcaster[T]) remove(chs []chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range chs {
		if _, ok := b.listeners[ch]; ok {
			close(ch)
			delete(b.listeners, ch)
		}
	}
}
