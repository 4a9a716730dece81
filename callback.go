package rlua

import (
	lua "github.com/milochristiansen/lua"

	"github.com/fschutt/rlua/errors"
)

// Callback is a Go function callable from Lua. It receives an ephemeral
// context handle that shares the caller's state; closing it is a no-op,
// and it must not be retained past the call.
//
// Returning an error aborts the script with a structured error.
// Panicking unwinds cleanly through the engine and resurfaces as the
// same panic at the host boundary.
type Callback func(l *Lua, args MultiValue) (MultiValue, error)

// closureSlot is the per-closure state a trampoline runs against. The
// executing flag is the reentrancy lock: the engine stack cannot host
// two live activations of the same Go closure.
type closureSlot struct {
	fn        Callback
	executing bool
}

// pushCallback pushes cb wrapped in the trampoline as an engine
// function.
func (m *mainState) pushCallback(cb Callback) {
	m.l.Push(&closureSlot{fn: cb})
	m.l.PushClosure(m.trampoline, -1)
	m.l.Set(-2, -1)
	m.l.Pop(1)
}

// trampoline adapts the engine's native call convention to Callback.
// It runs inside engine execution, so failures leave by raising engine
// errors rather than returning them.
func (m *mainState) trampoline(l *lua.State) int {
	slot, ok := l.ToUser(lua.FirstUpVal - 1).(*closureSlot)
	if !ok {
		raiseHostError(errors.Callback(ErrReleasedHandle))
	}
	if slot.executing {
		raiseHostError(errors.CallbackReentry())
	}
	slot.executing = true
	defer func() { slot.executing = false }()

	args := m.popValues(l.AbsIndex(-1))

	results, err := m.invokeCallback(slot.fn, args)
	if err != nil {
		if se, ok := err.(*errors.Error); ok && se.Kind == errors.KindCallback {
			raiseHostError(se)
		}
		raiseHostError(errors.Callback(err))
	}
	if err := m.pushValues(results); err != nil {
		raiseHostError(errors.Callback(err))
	}
	return len(results)
}

// invokeCallback runs fn with panic capture. A panic is rethrown as an
// engine error wrapping the original payload so the unwind stays clean;
// the protected call boundary resumes the panic afterwards.
func (m *mainState) invokeCallback(fn Callback, args MultiValue) (MultiValue, error) {
	var (
		results MultiValue
		err     error
	)
	func() {
		defer func() {
			if p := recover(); p != nil {
				raiseHostPanic(p)
			}
		}()
		results, err = fn(&Lua{main: m, ephemeral: true}, args)
	}()
	return results, err
}
