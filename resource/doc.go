// Package resource provides the opaque handle registry behind the cache boundary.
//
// A Handle is an integer token that means nothing to the host. The registry
// maps it to a Go value held in an arena slot, so no address ever crosses the
// boundary.
//
// # Handle Layout
//
//	bits 0-31   slot index + 1
//	bits 32-63  slot generation
//
// Handle 0 is the null handle. Removing a value bumps its slot generation, so
// a handle that was already released never resolves again, even after the
// slot has been reused:
//
//	reg := resource.NewRegistry[*engine.Cache]()
//
//	h := reg.Insert(cache)
//	c, ok := reg.Get(h)     // ok
//	c, ok = reg.Remove(h)   // ok, slot freed
//	c, ok = reg.Get(h)      // !ok, stale generation
//
// # Observers
//
// Observers are notified after a value is inserted or released:
//
//	reg.Subscribe(observer) // OnResourceEvent(Event{Type: EventCreated, ...})
//
// # Thread Safety
//
// Registry is safe for concurrent use. Values themselves must provide their
// own synchronization if they are shared between goroutines.
package resource
