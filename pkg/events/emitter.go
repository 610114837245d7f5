// Package events provides a small typed listener registry used by adapters and
// the scanner to deliver events to callbacks that can later be removed by handle.
package events

import (
	"sync"
	"sync/atomic"
)

// ListenerID identifies a registered listener. IDs are unique across every
// Emitter in the process, so a holder of several emitters can remove a
// listener without knowing which emitter it was registered on.
type ListenerID uint64

var lastID atomic.Uint64

func nextID() ListenerID {
	return ListenerID(lastID.Add(1))
}

// listener serializes deliveries to one callback. Values reaching a listener
// that is already running are queued and handed over by the goroutine that
// runs it, so a callback never runs concurrently with itself and never
// re-enters itself.
type listener[T any] struct {
	id      ListenerID
	fn      func(T)
	removed atomic.Bool

	mu    sync.Mutex
	busy  bool
	queue []T
}

func (l *listener[T]) deliver(v T) {
	l.mu.Lock()
	l.queue = append(l.queue, v)
	if l.busy {
		l.mu.Unlock()
		return
	}
	l.busy = true
	for len(l.queue) > 0 {
		next := l.queue[0]
		var zero T
		l.queue[0] = zero
		l.queue = l.queue[1:]
		l.mu.Unlock()
		if !l.removed.Load() {
			l.call(next)
		}
		l.mu.Lock()
	}
	l.busy = false
	l.mu.Unlock()
}

func (l *listener[T]) call(v T) {
	defer func() {
		if r := recover(); r != nil {
			l.mu.Lock()
			l.busy = false
			l.mu.Unlock()
			panic(r)
		}
	}()
	l.fn(v)
}

// Emitter delivers values of type T to registered listeners in registration
// order. The zero value is ready to use.
//
// Each listener sees values one at a time in the order they reached it. A
// value emitted while the listener is still handling an earlier one, from
// another goroutine or from inside the listener itself, is delivered after
// the listener returns, on the goroutine that was running it.
type Emitter[T any] struct {
	mu        sync.RWMutex
	listeners []*listener[T]
}

// On registers fn and returns the handle needed to remove it.
func (e *Emitter[T]) On(fn func(T)) ListenerID {
	id := nextID()
	if fn == nil {
		return id
	}
	e.mu.Lock()
	e.listeners = append(e.listeners, &listener[T]{id: id, fn: fn})
	e.mu.Unlock()
	return id
}

// Off removes the listener registered under id. It reports whether a listener
// was removed; removing an unknown id is a no-op. Values still queued for the
// listener are dropped.
func (e *Emitter[T]) Off(id ListenerID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, l := range e.listeners {
		if l.id != id {
			continue
		}
		l.removed.Store(true)
		next := make([]*listener[T], 0, len(e.listeners)-1)
		next = append(next, e.listeners[:i]...)
		next = append(next, e.listeners[i+1:]...)
		e.listeners = next
		return true
	}
	return false
}

// Emit hands v to every listener. Listeners run outside the emitter lock, so
// they may register or remove listeners.
func (e *Emitter[T]) Emit(v T) {
	e.mu.RLock()
	snapshot := e.listeners
	e.mu.RUnlock()
	for _, l := range snapshot {
		l.deliver(v)
	}
}

// Len returns the number of registered listeners.
func (e *Emitter[T]) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners)
}
