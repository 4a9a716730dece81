package rlua

// Table is a handle to a Lua table.
type Table struct {
	ref *ref
}

func (*Table) TypeName() string { return "table" }
func (*Table) luaValue()        {}

// Release drops the handle's registry pin.
func (t *Table) Release() { t.ref.release() }

// Get reads t[key], honoring the __index metamethod chain.
func (t *Table) Get(key any) (Value, error) {
	return t.get(key, false)
}

// RawGet reads t[key] without consulting metamethods.
func (t *Table) RawGet(key any) (Value, error) {
	return t.get(key, true)
}

func (t *Table) get(key any, raw bool) (Value, error) {
	m := t.ref.ctx
	if err := m.ensureOpen(); err != nil {
		return nil, err
	}
	k, err := m.pack(key)
	if err != nil {
		return nil, err
	}
	var v Value
	err = m.stackErrGuard(0, func() error {
		if err := m.pushRef(t.ref); err != nil {
			return err
		}
		if err := m.pushValue(k); err != nil {
			m.l.Pop(1)
			return err
		}
		if raw {
			m.l.GetTableRaw(-2)
		} else if err := m.protect(func() { m.l.GetTable(-2) }); err != nil {
			// On failure the engine restores the stack to the protect
			// point, table and key included.
			m.l.Pop(2)
			return err
		}
		v = m.popValue()
		m.l.Pop(1)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Set writes t[key] = value, honoring the __newindex metamethod chain.
func (t *Table) Set(key, value any) error {
	return t.set(key, value, false)
}

// RawSet writes t[key] = value without consulting metamethods.
func (t *Table) RawSet(key, value any) error {
	return t.set(key, value, true)
}

func (t *Table) set(key, value any, raw bool) error {
	m := t.ref.ctx
	if err := m.ensureOpen(); err != nil {
		return err
	}
	k, err := m.pack(key)
	if err != nil {
		return err
	}
	v, err := m.pack(value)
	if err != nil {
		return err
	}
	return m.stackErrGuard(0, func() error {
		if err := m.pushRef(t.ref); err != nil {
			return err
		}
		if err := m.pushValue(k); err != nil {
			m.l.Pop(1)
			return err
		}
		if err := m.pushValue(v); err != nil {
			m.l.Pop(2)
			return err
		}
		if raw {
			m.l.SetTableRaw(-3)
		} else if err := m.protect(func() { m.l.SetTable(-3) }); err != nil {
			m.l.Pop(3)
			return err
		}
		m.l.Pop(1)
		return nil
	})
}

// Len returns the table's length, honoring the __len metamethod.
func (t *Table) Len() (int64, error) {
	m := t.ref.ctx
	if err := m.ensureOpen(); err != nil {
		return 0, err
	}
	var n int64
	err := m.stackErrGuard(0, func() error {
		if err := m.pushRef(t.ref); err != nil {
			return err
		}
		err := m.protect(func() { n = int64(m.l.Length(-1)) })
		m.l.Pop(1)
		return err
	})
	return n, err
}

// RawLen returns the border length without consulting metamethods.
func (t *Table) RawLen() (int64, error) {
	m := t.ref.ctx
	if err := m.ensureOpen(); err != nil {
		return 0, err
	}
	var n int64
	err := m.stackErrGuard(0, func() error {
		if err := m.pushRef(t.ref); err != nil {
			return err
		}
		n = int64(m.l.LengthRaw(-1))
		m.l.Pop(1)
		return nil
	})
	return n, err
}

// ForEach calls fn for every key/value pair, in no particular order.
// Returning an error from fn stops the walk and surfaces that error.
// The table must not be mutated during the walk. Reference values
// handed to fn are pinned; release them when done with them.
func (t *Table) ForEach(fn func(key, value Value) error) error {
	m := t.ref.ctx
	if err := m.ensureOpen(); err != nil {
		return err
	}
	return m.stackErrGuard(0, func() error {
		if err := m.pushRef(t.ref); err != nil {
			return err
		}
		var walkErr error
		err := m.protect(func() {
			m.l.ForEachRaw(-1, func() bool {
				m.l.PushIndex(-2)
				k := m.popValue()
				m.l.PushIndex(-1)
				v := m.popValue()
				if err := fn(k, v); err != nil {
					walkErr = err
					return false
				}
				return true
			})
		})
		m.l.Pop(1)
		if err != nil {
			return err
		}
		return walkErr
	})
}

// SetMetatable replaces the table's metatable. Pass nil to remove it.
// Fails if the current metatable is protected.
func (t *Table) SetMetatable(meta *Table) error {
	m := t.ref.ctx
	if err := m.ensureOpen(); err != nil {
		return err
	}
	return m.stackErrGuard(0, func() error {
		if err := m.pushRef(t.ref); err != nil {
			return err
		}
		if err := protectedMetatableCheck(m, -1); err != nil {
			m.l.Pop(1)
			return err
		}
		if meta == nil {
			m.l.Push(nil)
		} else if err := m.pushRef(meta.ref); err != nil {
			m.l.Pop(1)
			return err
		}
		if err := m.protect(func() { m.l.SetMetaTable(-2) }); err != nil {
			m.l.Pop(2)
			return err
		}
		m.l.Pop(1)
		return nil
	})
}

// Metatable returns the table's metatable, or nil if it has none or the
// metatable is protected.
func (t *Table) Metatable() (*Table, error) {
	m := t.ref.ctx
	if err := m.ensureOpen(); err != nil {
		return nil, err
	}
	var meta *Table
	err := m.stackErrGuard(0, func() error {
		if err := m.pushRef(t.ref); err != nil {
			return err
		}
		if err := protectedMetatableCheck(m, -1); err != nil {
			m.l.Pop(1)
			return nil
		}
		if !m.l.GetMetaTable(-1) {
			m.l.Pop(1)
			return nil
		}
		meta = &Table{ref: m.popRef("table", nil)}
		m.l.Pop(1)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return meta, nil
}
