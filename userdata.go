package rlua

import (
	"reflect"
	"sync"

	lua "github.com/milochristiansen/lua"

	"github.com/fschutt/rlua/errors"
)

// MetaMethod names a Lua metamethod slot.
type MetaMethod string

const (
	MetaAdd      MetaMethod = "__add"
	MetaSub      MetaMethod = "__sub"
	MetaMul      MetaMethod = "__mul"
	MetaDiv      MetaMethod = "__div"
	MetaMod      MetaMethod = "__mod"
	MetaPow      MetaMethod = "__pow"
	MetaUnm      MetaMethod = "__unm"
	MetaIDiv     MetaMethod = "__idiv"
	MetaBAnd     MetaMethod = "__band"
	MetaBOr      MetaMethod = "__bor"
	MetaBXor     MetaMethod = "__bxor"
	MetaBNot     MetaMethod = "__bnot"
	MetaShl      MetaMethod = "__shl"
	MetaShr      MetaMethod = "__shr"
	MetaConcat   MetaMethod = "__concat"
	MetaLen      MetaMethod = "__len"
	MetaEq       MetaMethod = "__eq"
	MetaLt       MetaMethod = "__lt"
	MetaLe       MetaMethod = "__le"
	MetaIndex    MetaMethod = "__index"
	MetaNewIndex MetaMethod = "__newindex"
	MetaCall     MetaMethod = "__call"
	MetaToString MetaMethod = "__tostring"
)

// UserData is implemented by Go types exposed to scripts as userdata
// with methods. AddMethods runs once per concrete type; the resulting
// dispatch table is cached and shared by every value of that type in
// the same context.
type UserData interface {
	AddMethods(m *UserDataMethods)
}

// Dropper is implemented by userdata that owns resources needing
// explicit teardown. Drop runs when the creating handle's pin is
// released or when the context closes, whichever comes first, and runs
// at most once.
type Dropper interface {
	Drop()
}

// UserDataMethods collects the methods and metamethods of a userdata
// type while its dispatch table is being built.
type UserDataMethods struct {
	methods map[string]Callback
	meta    map[MetaMethod]Callback
}

// AddMethod registers a named method, reachable as ud:name(...). The
// userdata itself arrives as the first argument.
func (u *UserDataMethods) AddMethod(name string, fn Callback) {
	if u.methods == nil {
		u.methods = make(map[string]Callback)
	}
	u.methods[name] = fn
}

// AddMetaMethod registers a metamethod. A MetaIndex handler coexists
// with named methods: the methods table is consulted first and the
// handler only runs on a miss.
func (u *UserDataMethods) AddMetaMethod(mm MetaMethod, fn Callback) {
	if u.meta == nil {
		u.meta = make(map[MetaMethod]Callback)
	}
	u.meta[mm] = fn
}

// userdataBox is the engine-side wrapper around a host userdata value.
// The dropOnce guard keeps destructor semantics sane when both a handle
// release and a context close race to tear the value down.
type userdataBox struct {
	data     UserData
	dropOnce sync.Once
}

func (b *userdataBox) Drop() {
	b.dropOnce.Do(func() {
		if d, ok := b.data.(Dropper); ok {
			d.Drop()
		}
	})
}

// AnyUserData is a handle to a full userdata value.
type AnyUserData struct {
	box *userdataBox
	ref *ref
}

func (*AnyUserData) TypeName() string { return "userdata" }
func (*AnyUserData) luaValue()        {}

// Release drops the handle's registry pin. If this handle created the
// value, its destructor runs now.
func (u *AnyUserData) Release() { u.ref.release() }

// Value returns the wrapped Go value.
func (u *AnyUserData) Value() UserData { return u.box.data }

// As extracts the wrapped value as a concrete type.
func As[T UserData](u *AnyUserData) (T, error) {
	v, ok := u.box.data.(T)
	if !ok {
		var zero T
		return zero, errors.FromLuaConversion("userdata", reflect.TypeOf((*T)(nil)).Elem().String(), "userdata holds a different Go type")
	}
	return v, nil
}

// CreateUserData wraps data as a Lua userdata value carrying the
// dispatch table for its concrete Go type.
func (l *Lua) CreateUserData(data UserData) (*AnyUserData, error) {
	m := l.main
	if err := m.ensureOpen(); err != nil {
		return nil, err
	}
	meta, err := m.userdataMetatable(data)
	if err != nil {
		return nil, err
	}
	box := &userdataBox{data: data}
	var ud *AnyUserData
	err = m.stackErrGuard(0, func() error {
		m.l.Push(box)
		if err := m.pushRef(meta); err != nil {
			m.l.Pop(1)
			return err
		}
		if err := m.protect(func() { m.l.SetMetaTable(-2) }); err != nil {
			m.l.Pop(2)
			return err
		}
		ud = &AnyUserData{box: box, ref: m.popRef("userdata", box)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ud, nil
}

// userdataMetatable returns the pinned dispatch table for data's
// concrete type, building and caching it on first use.
func (m *mainState) userdataMetatable(data UserData) (*ref, error) {
	t := reflect.TypeOf(data)
	if r, ok := m.udMeta[t]; ok {
		return r, nil
	}

	methods := &UserDataMethods{}
	data.AddMethods(methods)

	var r *ref
	err := m.stackErrGuard(0, func() error {
		m.l.NewTable(0, len(methods.meta)+3)

		hasMethods := len(methods.methods) > 0
		if hasMethods {
			m.l.Push("__index")
			m.l.NewTable(0, len(methods.methods))
			for name, fn := range methods.methods {
				m.l.Push(name)
				m.pushCallback(fn)
				m.l.SetTableRaw(-3)
			}
			m.l.SetTableRaw(-3)
		}

		for mm, fn := range methods.meta {
			if mm == MetaIndex && hasMethods {
				// Combined lookup: the methods table wins, the explicit
				// handler fields every miss.
				m.l.Push(string(MetaIndex))
				m.l.PushIndex(-1)
				m.l.GetTableRaw(-3)
				m.pushCallback(fn)
				m.l.PushClosure(indexTrampoline, m.depth()-1, m.depth())
				m.l.Set(-3, -1)
				m.l.Pop(2)
				m.l.SetTableRaw(-3)
				continue
			}
			m.l.Push(string(mm))
			m.pushCallback(fn)
			m.l.SetTableRaw(-3)
		}

		// Scripts get neither the real metatable nor a way to swap it.
		m.l.Push("__metatable")
		m.l.Push(false)
		m.l.SetTableRaw(-3)

		r = m.popRef("table", nil)
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.udMeta[t] = r
	return r, nil
}

// indexTrampoline implements the combined __index lookup. Upvalues: the
// methods table, then the fallback handler.
func indexTrampoline(l *lua.State) int {
	l.PushIndex(2)
	l.GetTableRaw(lua.FirstUpVal - 1)
	if !l.IsNil(-1) {
		return 1
	}
	l.Pop(1)
	l.PushIndex(lua.FirstUpVal - 2)
	l.PushIndex(1)
	l.PushIndex(2)
	l.Call(2, 1)
	return 1
}

func protectedMetatableCheck(m *mainState, idx int) error {
	if m.l.GetMetaField(idx, "__metatable") != lua.TypNil {
		m.l.Pop(1)
		return errors.Runtime("cannot change a protected metatable", "")
	}
	return nil
}
