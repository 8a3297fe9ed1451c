package event

import (
	"slices"
	"sync"
)

// Subscription is returned by every listener registration.
type Subscription interface {
	// Unsubscribe removes the listener. Calling it more than once is a no-op.
	Unsubscribe()
}

// PanicHandler receives the value recovered from a panicking listener.
type PanicHandler func(recovered any)

// Listeners is a concurrency-safe, ordered set of callbacks of type func(T).
//
// The zero value is ready to use.
type Listeners[T any] struct {
	mu      sync.Mutex
	nextID  uint64
	entries []entry[T]
	onPanic PanicHandler
}

type entry[T any] struct {
	id uint64
	fn func(T)
}

// SetPanicHandler installs a handler for listener panics. Without one,
// panics are recovered and discarded so the remaining listeners still run.
func (l *Listeners[T]) SetPanicHandler(h PanicHandler) {
	l.mu.Lock()
	l.onPanic = h
	l.mu.Unlock()
}

// Add registers fn and returns its Subscription. A nil fn is ignored.
func (l *Listeners[T]) Add(fn func(T)) Subscription {
	if fn == nil {
		return noopSubscription{}
	}

	l.mu.Lock()
	l.nextID++
	id := l.nextID
	l.entries = append(l.entries, entry[T]{id: id, fn: fn})
	l.mu.Unlock()

	return &subscription{remove: func() { l.remove(id) }}
}

// Emit calls every listener registered before the call, in registration order.
// Listeners added or removed during dispatch do not change the current pass.
func (l *Listeners[T]) Emit(v T) {
	l.mu.Lock()
	snapshot := make([]entry[T], len(l.entries))
	copy(snapshot, l.entries)
	onPanic := l.onPanic
	l.mu.Unlock()

	for _, e := range snapshot {
		call(e.fn, v, onPanic)
	}
}

// Len returns the number of registered listeners.
func (l *Listeners[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Clear removes every listener.
func (l *Listeners[T]) Clear() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}

func (l *Listeners[T]) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, e := range l.entries {
		if e.id == id {
			l.entries = slices.Delete(l.entries, i, i+1)
			return
		}
	}
}

func call[T any](fn func(T), v T, onPanic PanicHandler) {
	defer func() {
		if r := recover(); r != nil && onPanic != nil {
			onPanic(r)
		}
	}()
	fn(v)
}

type subscription struct {
	once   sync.Once
	remove func()
}

func (s *subscription) Unsubscribe() {
	s.once.Do(s.remove)
}

type noopSubscription struct{}

func (noopSubscription) Unsubscribe() {}

// Group collects subscriptions so they can be released together.
type Group struct {
	mu   sync.Mutex
	subs []Subscription
}

// Add records s and returns it.
func (g *Group) Add(s Subscription) Subscription {
	g.mu.Lock()
	g.subs = append(g.subs, s)
	g.mu.Unlock()
	return s
}

// Unsubscribe releases every recorded subscription.
func (g *Group) Unsubscribe() {
	g.mu.Lock()
	subs := g.subs
	g.subs = nil
	g.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
}
