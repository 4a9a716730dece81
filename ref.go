package rlua

import (
	lua "github.com/milochristiansen/lua"
	"go.uber.org/zap"

	"github.com/fschutt/rlua/registry"
)

// ref pins one engine value into the registry table so the host can
// hold it past the current stack frame. The pin lives until release or
// until the owning context closes, whichever comes first.
//
// The arena allocates slot numbers; the engine side of the pin is the
// registry entry registry[slot] = value.
type ref struct {
	ctx  *mainState
	slot registry.Slot
}

// popRef pins the value on top of the engine stack and pops it.
func (m *mainState) popRef(kind string, payload any) *ref {
	slot, err := m.arena.Pin(kind, payload)
	if err != nil {
		// Callers check for a closed context before touching the
		// engine, so a pin failure here is state corruption.
		Logger().Fatal("registry pin failed", zap.Error(err))
	}
	m.l.Push(int64(slot))
	m.l.PushIndex(-2)
	m.l.SetTableRaw(lua.RegistryIndex)
	m.l.Pop(1)
	return &ref{ctx: m, slot: slot}
}

// pushRef pushes the pinned value onto the engine stack.
//
// A ref handed to a context other than its own is a host bug with no
// safe recovery: the slot number would silently address an unrelated
// value. The process aborts instead.
func (m *mainState) pushRef(r *ref) error {
	if r.ctx != m {
		Logger().Fatal("handle used with a foreign context",
			zap.Int64("slot", int64(r.slot)))
	}
	if r.slot == 0 || !m.arena.Valid(r.slot) {
		return ErrReleasedHandle
	}
	m.l.Push(int64(r.slot))
	m.l.GetTableRaw(lua.RegistryIndex)
	return nil
}

// release drops the pin. Safe to call more than once and after the
// context has closed.
func (r *ref) release() {
	if r.slot == 0 {
		return
	}
	slot := r.slot
	r.slot = 0
	m := r.ctx
	if m.closed {
		return
	}
	if _, ok := m.arena.Release(slot); !ok {
		return
	}
	m.stackGuard(0, func() {
		m.l.Push(int64(slot))
		m.l.Push(nil)
		m.l.SetTableRaw(lua.RegistryIndex)
	})
}

func (r *ref) valid() bool {
	return r.slot != 0 && !r.ctx.closed && r.ctx.arena.Valid(r.slot)
}
