package resource

import "fmt"

// Handle is an opaque reference to a value in a Registry.
// Handle 0 is reserved and always invalid.
type Handle uint64

func newHandle(index, generation uint32) Handle {
	return Handle(uint64(generation)<<32 | uint64(index+1))
}

func (h Handle) index() (uint32, bool) {
	slot := uint32(h)
	if slot == 0 {
		return 0, false
	}
	return slot - 1, true
}

func (h Handle) generation() uint32 {
	return uint32(h >> 32)
}

// String renders the handle as index/generation for logs.
func (h Handle) String() string {
	if h == 0 {
		return "null"
	}
	idx, _ := h.index()
	return fmt.Sprintf("%d/%d", idx, h.generation())
}

// EventType identifies handle lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventReleased
)

// Event represents a handle lifecycle event.
type Event struct {
	Handle Handle
	Type   EventType
}

// Observer receives notifications about handle lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// OnResourceEvent calls f(e).
func (f ObserverFunc) OnResourceEvent(e Event) {
	f(e)
}

