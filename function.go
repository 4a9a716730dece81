package rlua

import (
	lua "github.com/milochristiansen/lua"
)

// Function is a handle to a Lua function, either one defined by script
// code or a wrapped Go callback.
type Function struct {
	ref *ref
}

func (*Function) TypeName() string { return "function" }
func (*Function) luaValue()        {}

// Release drops the handle's registry pin. The handle is dead
// afterwards; the function itself lives on if something else still
// reaches it.
func (f *Function) Release() { f.ref.release() }

// Call invokes the function under error protection. Arguments go
// through Pack; all return values come back.
func (f *Function) Call(args ...any) (MultiValue, error) {
	m := f.ref.ctx
	if err := m.ensureOpen(); err != nil {
		return nil, err
	}
	packed := make(MultiValue, 0, len(args))
	for _, a := range args {
		v, err := m.pack(a)
		if err != nil {
			return nil, err
		}
		packed = append(packed, v)
	}
	return f.CallValues(packed)
}

// CallValues is Call for arguments that are already Values.
func (f *Function) CallValues(args MultiValue) (MultiValue, error) {
	m := f.ref.ctx
	if err := m.ensureOpen(); err != nil {
		return nil, err
	}
	var results MultiValue
	err := m.stackErrGuard(0, func() error {
		base := m.depth()
		if err := m.pushRef(f.ref); err != nil {
			return err
		}
		if err := m.pushValues(args); err != nil {
			m.l.Pop(1)
			return err
		}
		if err := m.pcall(len(args), -1); err != nil {
			return err
		}
		results = m.popValues(m.depth() - base)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Bind returns a new function that calls f with the given arguments
// prepended to whatever the eventual caller passes. The bound values
// are captured as engine upvalues, so the result is an ordinary Lua
// function with no host round trip of its own.
func (f *Function) Bind(args ...any) (*Function, error) {
	m := f.ref.ctx
	if err := m.ensureOpen(); err != nil {
		return nil, err
	}
	var bound *Function
	err := m.stackErrGuard(0, func() error {
		base := m.depth()
		if err := m.pushRef(f.ref); err != nil {
			return err
		}
		m.l.Push(int64(len(args)))
		for _, a := range args {
			v, err := m.pack(a)
			if err != nil {
				m.l.Pop(m.depth() - base)
				return err
			}
			if err := m.pushValue(v); err != nil {
				m.l.Pop(m.depth() - base)
				return err
			}
		}
		captured := len(args) + 2
		idx := make([]int, captured)
		for i := range idx {
			idx[i] = m.depth() - captured + 1 + i
		}
		m.l.PushClosure(bindTrampoline, idx...)
		bound = &Function{ref: m.popRef("function", nil)}
		m.l.Pop(captured)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bound, nil
}

// bindTrampoline dispatches a call to a bound function. Upvalues: the
// target function, the bound argument count, then the bound arguments.
func bindTrampoline(l *lua.State) int {
	nargs := l.AbsIndex(-1)
	l.PushIndex(lua.FirstUpVal - 1)
	l.Insert(1)
	n := int(l.ToInt(lua.FirstUpVal - 2))
	for i := 0; i < n; i++ {
		l.PushIndex(lua.FirstUpVal - 3 - i)
		l.Insert(2 + i)
	}
	l.Call(nargs+n, -1)
	return l.AbsIndex(-1)
}

// Dump serializes the function to the engine's binary chunk format.
// Fails for functions backed by Go code. strip drops debug info.
func (f *Function) Dump(strip bool) ([]byte, error) {
	m := f.ref.ctx
	if err := m.ensureOpen(); err != nil {
		return nil, err
	}
	var out []byte
	err := m.stackErrGuard(0, func() error {
		if err := m.pushRef(f.ref); err != nil {
			return err
		}
		err := m.protect(func() {
			out = m.l.DumpFunction(-1, strip)
		})
		m.l.Pop(1)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
