package rlua

import (
	lua "github.com/milochristiansen/lua"
)

// pushValue pushes v onto the engine stack, exactly one slot.
func (m *mainState) pushValue(v Value) error {
	switch tv := v.(type) {
	case nil, Nil:
		m.l.Push(nil)
	case Boolean:
		m.l.Push(bool(tv))
	case Integer:
		m.l.Push(int64(tv))
	case Number:
		m.l.Push(float64(tv))
	case String:
		m.l.Push(string(tv))
	case LightUserData:
		m.l.Push(tv.Value)
	case ErrorValue:
		m.l.Push(&wrappedError{err: tv.Err})
	case *Table:
		return m.pushRef(tv.ref)
	case *Function:
		return m.pushRef(tv.ref)
	case *Thread:
		return m.pushRef(tv.ref)
	case *AnyUserData:
		return m.pushRef(tv.ref)
	default:
		// Value is sealed; this branch means a new variant was added
		// without teaching the codec about it.
		Logger().Fatal("unknown value variant")
	}
	return nil
}

// popValue pops the value on top of the engine stack and converts it to
// a host Value. Reference types come back pinned.
func (m *mainState) popValue() Value {
	switch m.l.TypeOf(-1) {
	case lua.TypNil:
		m.l.Pop(1)
		return Nil{}
	case lua.TypBool:
		b := m.l.ToBool(-1)
		m.l.Pop(1)
		return Boolean(b)
	case lua.TypNumber:
		// The engine keeps the integer/float distinction; so do we.
		if m.l.SubTypeOf(-1) == lua.STypInt {
			n := m.l.ToInt(-1)
			m.l.Pop(1)
			return Integer(n)
		}
		f := m.l.ToFloat(-1)
		m.l.Pop(1)
		return Number(f)
	case lua.TypString:
		s, _ := m.l.GetRaw(-1).(string)
		m.l.Pop(1)
		return String(s)
	case lua.TypTable:
		return &Table{ref: m.popRef("table", nil)}
	case lua.TypFunction:
		return &Function{ref: m.popRef("function", nil)}
	case lua.TypUserData:
		switch u := m.l.ToUser(-1).(type) {
		case *wrappedError:
			m.l.Pop(1)
			return ErrorValue{Err: u.err}
		case *wrappedPanic:
			// Panic payloads are resurfaced at the protected call
			// boundary; one escaping into plain value marshaling has
			// bypassed that path.
			Logger().Fatal("host panic payload leaked into value conversion")
			return nil
		case *coroutine:
			return &Thread{co: u, ref: m.popRef("thread", nil)}
		case *userdataBox:
			return &AnyUserData{box: u, ref: m.popRef("userdata", nil)}
		default:
			m.l.Pop(1)
			return LightUserData{Value: u}
		}
	default:
		m.l.Pop(1)
		return Nil{}
	}
}

// popValues pops the top n stack slots as a MultiValue in pushed order.
func (m *mainState) popValues(n int) MultiValue {
	if n <= 0 {
		return nil
	}
	vs := make(MultiValue, n)
	for i := n - 1; i >= 0; i-- {
		vs[i] = m.popValue()
	}
	return vs
}

// pushValues pushes every value in vs, left to right.
func (m *mainState) pushValues(vs MultiValue) error {
	for i, v := range vs {
		if err := m.pushValue(v); err != nil {
			m.l.Pop(i)
			return err
		}
	}
	return nil
}
