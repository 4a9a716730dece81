package registry

import (
	"errors"
	"sync"
)

// ErrClosed is returned when pinning into a closed arena.
var ErrClosed = errors.New("pin arena closed")

// Slot identifies a pinned engine value. Slot 0 is reserved and always
// invalid; valid slots double as integer keys in the engine registry table.
type Slot int64

// Dropper is optionally implemented by pin payloads that need cleanup when
// the pin is released or the arena closes.
type Dropper interface {
	Drop()
}

// Event describes a pin lifecycle transition.
type Event struct {
	Payload  any
	Slot     Slot
	Kind     string
	Released bool
}

// Observer receives notifications about pin lifecycle events.
type Observer interface {
	OnPinEvent(Event)
}

type entry struct {
	payload any
	kind    string
	valid   bool
}

// Arena allocates and tracks registry slot ids. Released ids are reused from
// a free list, mirroring the engine's own registry free-list behavior, so
// slot churn stays bounded under heavy pin/release cycles.
type Arena struct {
	entries   []entry
	freeList  []Slot
	observers []Observer
	mu        sync.Mutex
	closed    bool
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{
		entries:  make([]entry, 0, 64),
		freeList: make([]Slot, 0, 16),
	}
}

// Pin allocates a slot id for a newly pinned engine value. kind names the
// engine type being pinned (diagnostics only). payload optionally carries a
// host object owned by the pin; if it implements Dropper it is dropped when
// the pin is released or the arena closes.
func (a *Arena) Pin(kind string, payload any) (Slot, error) {
	a.mu.Lock()

	if a.closed {
		a.mu.Unlock()
		return 0, ErrClosed
	}

	e := entry{kind: kind, payload: payload, valid: true}

	var slot Slot
	if len(a.freeList) > 0 {
		slot = a.freeList[len(a.freeList)-1]
		a.freeList = a.freeList[:len(a.freeList)-1]
		a.entries[slot-1] = e
	} else {
		a.entries = append(a.entries, e)
		slot = Slot(len(a.entries))
	}
	a.mu.Unlock()

	a.notify(Event{Slot: slot, Kind: kind, Payload: payload})
	return slot, nil
}

// Valid reports whether slot currently names a live pin.
func (a *Arena) Valid(slot Slot) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, ok := a.lookup(slot)
	return ok
}

// Release returns the slot to the free list and hands back the payload.
// Releasing an invalid or already-released slot is a no-op returning false,
// so a double release cannot free a reused slot out from under a later pin.
func (a *Arena) Release(slot Slot) (any, bool) {
	a.mu.Lock()

	e, ok := a.lookup(slot)
	if !ok {
		a.mu.Unlock()
		return nil, false
	}

	payload, kind := e.payload, e.kind
	e.valid = false
	e.payload = nil
	a.freeList = append(a.freeList, slot)
	a.mu.Unlock()

	if d, ok := payload.(Dropper); ok {
		d.Drop()
	}

	a.notify(Event{Slot: slot, Kind: kind, Payload: payload, Released: true})
	return payload, true
}

// Len returns the number of live pins.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	count := 0
	for i := range a.entries {
		if a.entries[i].valid {
			count++
		}
	}
	return count
}

// Each iterates over live pins.
func (a *Arena) Each(fn func(Slot, string, any) bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range a.entries {
		if a.entries[i].valid {
			if !fn(Slot(i+1), a.entries[i].kind, a.entries[i].payload) {
				break
			}
		}
	}
}

// Subscribe adds an observer for pin lifecycle events.
func (a *Arena) Subscribe(o Observer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observers = append(a.observers, o)
}

// Unsubscribe removes an observer.
func (a *Arena) Unsubscribe(o Observer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, obs := range a.observers {
		if obs == o {
			a.observers = append(a.observers[:i], a.observers[i+1:]...)
			return
		}
	}
}

// Close invalidates all pins and runs outstanding payload destructors.
// Pins released after Close are no-ops.
func (a *Arena) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true

	var droppers []Dropper
	for i := range a.entries {
		if a.entries[i].valid {
			if d, ok := a.entries[i].payload.(Dropper); ok {
				droppers = append(droppers, d)
			}
			a.entries[i].valid = false
			a.entries[i].payload = nil
		}
	}
	a.entries = nil
	a.freeList = nil
	a.mu.Unlock()

	for _, d := range droppers {
		d.Drop()
	}
	return nil
}

// lookup requires a.mu held.
func (a *Arena) lookup(slot Slot) (*entry, bool) {
	if slot <= 0 || int(slot) > len(a.entries) {
		return nil, false
	}
	e := &a.entries[slot-1]
	if !e.valid {
		return nil, false
	}
	return e, true
}

func (a *Arena) notify(ev Event) {
	a.mu.Lock()
	obs := make([]Observer, len(a.observers))
	copy(obs, a.observers)
	a.mu.Unlock()

	for _, o := range obs {
		o.OnPinEvent(ev)
	}
}
