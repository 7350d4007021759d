package dispatch

import (
	"reflect"
	"sync"
)

// Handler is a callback for a named server event. The payload is the decoded
// event variant (see internal/wire).
type Handler func(payload any)

// Dispatcher maps named events to registered handlers. Multiple handlers per
// event are allowed and invoked in registration order.
//
// Removal is asymmetric on purpose: Off("evt") removes every handler for
// "evt", while Off("evt", h) removes only registrations of h. Callers that
// want to drop a single listener must pass the exact function they registered,
// otherwise they silently unhook everyone else's handlers too.
type Dispatcher struct {
	mu       sync.Mutex
	handlers map[string][]registration
	next     uint64
}

type registration struct {
	id uint64
	fn Handler
}

// New creates an empty dispatcher.
func New() *Dispatcher {
	return &Dispatcher{handlers: make(map[string][]registration)}
}

// On registers fn for the given event name. The same function may be
// registered more than once; it will then be invoked once per registration.
func (d *Dispatcher) On(event string, fn Handler) {
	if fn == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	d.handlers[event] = append(d.handlers[event], registration{id: d.next, fn: fn})
}

// Off unregisters handlers for an event. With no handler arguments every
// listener for the event is removed. With handler arguments, only
// registrations of those exact functions are removed.
func (d *Dispatcher) Off(event string, fns ...Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(fns) == 0 {
		delete(d.handlers, event)
		return
	}

	kept := d.handlers[event][:0]
	for _, reg := range d.handlers[event] {
		if !matchesAny(reg.fn, fns) {
			kept = append(kept, reg)
		}
	}
	if len(kept) == 0 {
		delete(d.handlers, event)
		return
	}
	d.handlers[event] = kept
}

// Dispatch invokes every handler registered for the event, in registration
// order. Handlers run on the caller's goroutine. The handler list is
// snapshotted first, so a handler may call On/Off without deadlocking;
// changes take effect from the next Dispatch.
func (d *Dispatcher) Dispatch(event string, payload any) {
	d.mu.Lock()
	regs := make([]registration, len(d.handlers[event]))
	copy(regs, d.handlers[event])
	d.mu.Unlock()

	for _, reg := range regs {
		reg.fn(payload)
	}
}

// HandlerCount returns the number of registrations for an event.
func (d *Dispatcher) HandlerCount(event string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handlers[event])
}

// matchesAny compares handler functions by code pointer. Two closures built
// from distinct function literals compare unequal; closures built from the
// same literal share a pointer and are removed together.
func matchesAny(fn Handler, fns []Handler) bool {
	p := reflect.ValueOf(fn).Pointer()
	for _, other := range fns {
		if other != nil && reflect.ValueOf(other).Pointer() == p {
			return true
		}
	}
	return false
}
