package util

import (
	"sync"
)

// AtomicMapEvent holds the latest value per key and provides non-blocking
// updates. Readers are woken through a notification channel of capacity
// one, so a slow reader only ever sees the newest values and never blocks
// the producer.
type AtomicMapEvent[T any] struct {
	mu     sync.Mutex
	value  map[string]T
	notify chan struct{}
}

// NewAtomicMapEvent creates a new AtomicMapEvent instance.
func NewAtomicMapEvent[T any]() *AtomicMapEvent[T] {
	return &AtomicMapEvent[T]{
		notify: make(chan struct{}, 1),
		value:  make(map[string]T),
	}
}

// Send stores event as the latest value for key. It is non-blocking.
func (ae *AtomicMapEvent[T]) Send(key string, event T) {
	ae.mu.Lock()
	defer ae.mu.Unlock()

	ae.value[key] = event
	ae.signal()
}

// Delete drops key, e.g. when its source goes away.
func (ae *AtomicMapEvent[T]) Delete(key string) {
	ae.mu.Lock()
	defer ae.mu.Unlock()

	if _, ok := ae.value[key]; !ok {
		return
	}
	delete(ae.value, key)
	ae.signal()
}

// signal must be called with mu held.
func (ae *AtomicMapEvent[T]) signal() {
	select {
	case ae.notify <- struct{}{}:
	default:
		// A notification is already pending.
	}
}

// Channel returns the notification channel for use in select statements.
func (ae *AtomicMapEvent[T]) Channel() <-chan struct{} {
	return ae.notify
}

// Value returns a copy of the latest values.
func (ae *AtomicMapEvent[T]) Value() map[string]T {
	ae.mu.Lock()
	defer ae.mu.Unlock()
	ret := make(map[string]T, len(ae.value))
	for key, value := range ae.value {
		ret[key] = value
	}
	return ret
}

// Get returns the latest value for key.
func (ae *AtomicMapEvent[T]) Get(key string) (T, bool) {
	ae.mu.Lock()
	defer ae.mu.Unlock()
	v, ok := ae.value[key]
	return v, ok
}

// HasPending checks if a notification is waiting to be consumed.
// This is a non-destructive check.
func (ae *AtomicMapEvent[T]) HasPending() bool {
	return len(ae.notify) > 0
}
