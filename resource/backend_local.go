package resource

import (
	"errors"
	"math"
	"sync"
)

var ErrFull = errors.New("resource backend full")

// LocalBackend is an in-memory arena of slots addressed by generation-checked
// handles.
type LocalBackend[T any] struct {
	entries  []entry[T]
	freeList []uint32
	mu       sync.RWMutex
}

type entry[T any] struct {
	value      T
	generation uint32
	valid      bool
}

// NewLocalBackend creates a new in-memory backend.
func NewLocalBackend[T any]() *LocalBackend[T] {
	return &LocalBackend[T]{
		entries:  make([]entry[T], 0, 16),
		freeList: make([]uint32, 0, 4),
	}
}

// Create stores a value and returns a handle.
func (b *LocalBackend[T]) Create(value T) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.freeList) > 0 {
		idx := b.freeList[len(b.freeList)-1]
		b.freeList = b.freeList[:len(b.freeList)-1]
		e := &b.entries[idx]
		e.value = value
		e.valid = true
		return newHandle(idx, e.generation), nil
	}

	if len(b.entries) >= math.MaxUint32-1 {
		return 0, ErrFull
	}

	b.entries = append(b.entries, entry[T]{value: value, valid: true})
	return newHandle(uint32(len(b.entries)-1), 0), nil
}

// Get retrieves a value by handle.
func (b *LocalBackend[T]) Get(handle Handle) (T, bool) {
	var zero T

	b.mu.RLock()
	defer b.mu.RUnlock()

	e := b.lookup(handle)
	if e == nil {
		return zero, false
	}
	return e.value, true
}

// Drop invalidates the handle and returns the value it referenced.
func (b *LocalBackend[T]) Drop(handle Handle) (T, bool) {
	var zero T

	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.lookup(handle)
	if e == nil {
		return zero, false
	}

	value := e.value
	e.value = zero
	e.valid = false
	e.generation++
	idx, _ := handle.index()
	b.freeList = append(b.freeList, idx)

	return value, true
}

// lookup must be called with mu held.
func (b *LocalBackend[T]) lookup(handle Handle) *entry[T] {
	idx, ok := handle.index()
	if !ok || int(idx) >= len(b.entries) {
		return nil
	}
	e := &b.entries[idx]
	if !e.valid || e.generation != handle.generation() {
		return nil
	}
	return e
}

// Len returns the number of live values.
func (b *LocalBackend[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, e := range b.entries {
		if e.valid {
			count++
		}
	}
	return count
}

// Each iterates over all live values.
func (b *LocalBackend[T]) Each(fn func(Handle, T) bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for i, e := range b.entries {
		if e.valid {
			if !fn(newHandle(uint32(i), e.generation), e.value) {
				break
			}
		}
	}
}
