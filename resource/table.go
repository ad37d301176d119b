package resource

import (
	"sync"
)

// Registry maps opaque handles to values of type T.
type Registry[T any] struct {
	backend   *LocalBackend[T]
	observers []Observer
	obsMu     sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{
		backend: NewLocalBackend[T](),
	}
}

// Insert adds a value and returns its handle, or 0 if the registry is full.
func (r *Registry[T]) Insert(value T) Handle {
	handle, err := r.backend.Create(value)
	if err != nil {
		return 0
	}

	r.notify(Event{Type: EventCreated, Handle: handle})
	return handle
}

// Get retrieves a value by handle.
func (r *Registry[T]) Get(handle Handle) (T, bool) {
	return r.backend.Get(handle)
}

// Remove releases a handle and returns (value, true) if it was live. The
// caller owns any cleanup of the returned value.
func (r *Registry[T]) Remove(handle Handle) (T, bool) {
	value, ok := r.backend.Drop(handle)
	if !ok {
		return value, false
	}

	r.notify(Event{Type: EventReleased, Handle: handle})
	return value, true
}

// Subscribe adds an observer for lifecycle events.
func (r *Registry[T]) Subscribe(o Observer) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	r.observers = append(r.observers, o)
}

// Len returns the number of live handles.
func (r *Registry[T]) Len() int {
	return r.backend.Len()
}

// Each iterates over all live handles. fn must not call back into the
// registry.
func (r *Registry[T]) Each(fn func(Handle, T) bool) {
	r.backend.Each(fn)
}

func (r *Registry[T]) notify(e Event) {
	r.obsMu.RLock()
	defer r.obsMu.RUnlock()
	for _, o := range r.observers {
		o.OnResourceEvent(e)
	}
}
