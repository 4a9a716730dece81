package rlua

import (
	lua "github.com/milochristiansen/lua"
	"github.com/milochristiansen/lua/lmodbase"
	"github.com/milochristiansen/lua/lmodmath"
	"github.com/milochristiansen/lua/lmodpackage"
	"github.com/milochristiansen/lua/lmodstring"
	"github.com/milochristiansen/lua/lmodtable"
	"github.com/milochristiansen/lua/lmodutf8"
	"github.com/milochristiansen/lua/luautil"

	"github.com/fschutt/rlua/errors"
)

// StdLib selects which standard libraries a context loads. The engine
// deliberately ships no io or os library, so there are no flags for
// them.
type StdLib uint32

const (
	LibBase StdLib = 1 << iota
	LibCoroutine
	LibTable
	LibString
	LibUTF8
	LibMath
	LibPackage
)

// LibsDefault is every available library.
const LibsDefault = LibBase | LibCoroutine | LibTable | LibString | LibUTF8 | LibMath | LibPackage

func (m *mainState) openLibraries(libs StdLib) error {
	open := func(fn lua.NativeFunction) {
		m.l.Push(fn)
		m.l.Call(0, 0)
	}
	return m.stackErrGuard(0, func() error {
		err := m.protect(func() {
			if libs&LibBase != 0 {
				open(lmodbase.Open)
			}
			if libs&LibPackage != 0 {
				open(lmodpackage.Open)
			}
			if libs&LibString != 0 {
				open(lmodstring.Open)
			}
			if libs&LibTable != 0 {
				open(lmodtable.Open)
			}
			if libs&LibMath != 0 {
				open(lmodmath.Open)
			}
			if libs&LibUTF8 != 0 {
				open(lmodutf8.Open)
			}
		})
		if err != nil {
			return err
		}
		if libs&LibBase != 0 {
			m.installHardenedBase()
		}
		if libs&LibCoroutine != 0 {
			m.installCoroutineLib()
		}
		return nil
	})
}

// installHardenedBase replaces the base functions that would otherwise
// let scripts break the host's safety model: the stock pcall would
// absorb host panics, the stock error would flatten structured errors
// to strings, and the stock setmetatable ignores metatable protection.
func (m *mainState) installHardenedBase() {
	m.l.Push(m.hardenedPCall)
	m.l.SetGlobal("pcall")
	m.l.Push(m.hardenedXPCall)
	m.l.SetGlobal("xpcall")
	m.l.Push(hardenedError)
	m.l.SetGlobal("error")
	m.l.Push(hardenedSetMetatable)
	m.l.SetGlobal("setmetatable")
}

// hardenedPCall is pcall with two extra rules: a host panic is never
// absorbed, and a structured host error is delivered as an error value
// rather than its message string.
func (m *mainState) hardenedPCall(l *lua.State) int {
	if l.AbsIndex(-1) == 0 {
		raiseHostError(errors.Runtime("bad argument #1 to 'pcall' (value expected)", ""))
	}
	l.Push(true)
	l.Insert(1)

	err := l.PCall(l.AbsIndex(-1)-2, -1)
	if err != nil {
		l.Push(false)
		pushEngineError(l, err)
		return 2
	}
	return l.AbsIndex(-1)
}

// hardenedXPCall is xpcall under the same rules. The handler runs on
// the error value before pcall-style results are returned.
func (m *mainState) hardenedXPCall(l *lua.State) int {
	n := l.AbsIndex(-1) // f, handler, args...
	if n < 2 {
		raiseHostError(errors.Runtime("bad argument #2 to 'xpcall' (value expected)", ""))
	}
	// Re-push the function and arguments so the handler stays put at
	// index 2 across the protected call.
	l.PushIndex(1)
	for i := 3; i <= n; i++ {
		l.PushIndex(i)
	}
	err := l.PCall(n-2, -1)
	if err != nil {
		l.Push(false)
		l.PushIndex(2)
		pushEngineError(l, err)
		l.Call(1, 1)
		return 2
	}
	nres := l.AbsIndex(-1) - n
	l.Push(true)
	l.Insert(n + 1)
	return nres + 1
}

// pushEngineError pushes the value a script should see for err. A host
// panic is re-raised instead of being surfaced; structured host errors
// keep their identity as wrapped error values.
func pushEngineError(l *lua.State, err error) {
	le, ok := err.(luautil.Error)
	if !ok {
		l.Push(err.Error())
		return
	}
	switch inner := le.Err.(type) {
	case *wrappedPanic:
		panic(le)
	case *errors.Error:
		l.Push(&wrappedError{err: inner})
	case *wrappedError:
		l.Push(inner)
	default:
		l.Push(le.Error())
	}
}

// hardenedError re-raises wrapped error values intact and otherwise
// behaves like the stock error function. The optional level argument is
// accepted but ignored, as in the engine's own base library: natives
// have no access to script position info, so there is nothing to
// prepend to string messages.
func hardenedError(l *lua.State) int {
	if l.TypeOf(1) == lua.TypUserData {
		if we, ok := l.ToUser(1).(*wrappedError); ok {
			panic(luautil.Error{Msg: we.Error(), Type: luautil.ErrTypWrapped, Err: we})
		}
	}
	l.PushIndex(1)
	l.Error()
	return 0
}

// hardenedSetMetatable honors the __metatable protection marker.
func hardenedSetMetatable(l *lua.State) int {
	if l.TypeOf(1) != lua.TypTable {
		luautil.Raise("bad argument #1 to 'setmetatable' (table expected)", luautil.ErrTypGenRuntime)
	}
	if l.GetMetaField(1, "__metatable") != lua.TypNil {
		l.Pop(1)
		luautil.Raise("cannot change a protected metatable", luautil.ErrTypGenRuntime)
	}
	switch l.TypeOf(2) {
	case lua.TypTable, lua.TypNil:
	default:
		luautil.Raise("bad argument #2 to 'setmetatable' (nil or table expected)", luautil.ErrTypGenRuntime)
	}
	l.PushIndex(2)
	l.SetMetaTable(1)
	l.PushIndex(1)
	return 1
}

// installCoroutineLib publishes the coroutine table. The engine has no
// native coroutines; these are the goroutine-backed kind, with the
// strictly nested resume discipline documented on Thread.
func (m *mainState) installCoroutineLib() {
	m.l.NewTable(0, 8)
	m.l.SetTableFunctions(-1, map[string]lua.NativeFunction{
		"create":      m.coroutineCreate,
		"resume":      m.coroutineResume,
		"yield":       m.coroutineYield,
		"status":      m.coroutineStatus,
		"wrap":        m.coroutineWrap,
		"isyieldable": m.coroutineIsYieldable,
		"running":     m.coroutineRunning,
	})
	m.l.SetGlobal("coroutine")
}

func (m *mainState) toCoroutine(l *lua.State, idx int) *coroutine {
	if l.TypeOf(idx) == lua.TypUserData {
		if co, ok := l.ToUser(idx).(*coroutine); ok {
			return co
		}
	}
	raiseHostError(errors.Coroutine("bad argument (coroutine expected)"))
	return nil
}

func (m *mainState) coroutineCreate(l *lua.State) int {
	if l.TypeOf(1) != lua.TypFunction {
		raiseHostError(errors.Coroutine("bad argument #1 to 'create' (function expected)"))
	}
	l.PushIndex(1)
	co := m.newCoroutine(m.popRef("function", nil))
	l.Push(co)
	return 1
}

func (m *mainState) coroutineResume(l *lua.State) int {
	co := m.toCoroutine(l, 1)
	args := m.popValues(l.AbsIndex(-1) - 1)

	res, err := co.resumeRaw(args)
	if err != nil {
		switch e := err.(type) {
		case luautil.Error:
			// A wrapped host panic keeps unwinding; script code never
			// gets to observe or absorb it.
			if _, isPanic := e.Err.(*wrappedPanic); isPanic {
				panic(e)
			}
			l.Push(false)
			pushEngineError(l, e)
		case *errors.Error:
			l.Push(false)
			l.Push(&wrappedError{err: e})
		default:
			l.Push(false)
			l.Push(err.Error())
		}
		return 2
	}
	l.Push(true)
	if err := m.pushValues(res); err != nil {
		raiseHostError(err)
	}
	return 1 + len(res)
}

func (m *mainState) coroutineStatus(l *lua.State) int {
	co := m.toCoroutine(l, 1)
	switch {
	case co == m.executing():
		l.Push("running")
	case co.state == coRunning:
		l.Push("normal")
	case co.state == coReady || co.state == coSuspended:
		l.Push("suspended")
	default:
		l.Push("dead")
	}
	return 1
}

func (m *mainState) coroutineWrap(l *lua.State) int {
	if l.TypeOf(1) != lua.TypFunction {
		raiseHostError(errors.Coroutine("bad argument #1 to 'wrap' (function expected)"))
	}
	l.PushIndex(1)
	co := m.newCoroutine(m.popRef("function", nil))
	l.Push(co)
	l.PushClosure(m.wrapTrampoline, -1)
	l.Set(-2, -1)
	l.Pop(1)
	return 1
}

// wrapTrampoline resumes the wrapped coroutine and rethrows its errors
// in the caller, matching coroutine.wrap semantics.
func (m *mainState) wrapTrampoline(l *lua.State) int {
	co, ok := l.ToUser(lua.FirstUpVal - 1).(*coroutine)
	if !ok {
		raiseHostError(errors.Coroutine("corrupt coroutine wrapper"))
	}
	args := m.popValues(l.AbsIndex(-1))

	res, err := co.resumeRaw(args)
	if err != nil {
		if le, ok := err.(luautil.Error); ok {
			panic(le)
		}
		raiseHostError(err)
	}
	if err := m.pushValues(res); err != nil {
		raiseHostError(err)
	}
	return len(res)
}

func (m *mainState) coroutineIsYieldable(l *lua.State) int {
	l.Push(m.executing() != nil)
	return 1
}

func (m *mainState) coroutineRunning(l *lua.State) int {
	co := m.executing()
	if co == nil {
		l.Push(nil)
		l.Push(true)
		return 2
	}
	l.Push(co)
	l.Push(false)
	return 2
}

// LoadDebug installs the debug table. Everything in it bypasses the
// safety model on purpose: raw metatable access ignores __metatable
// protection entirely. Never expose it to untrusted scripts.
func (l *Lua) LoadDebug() error {
	m := l.main
	if err := m.ensureOpen(); err != nil {
		return err
	}
	return m.stackErrGuard(0, func() error {
		m.l.NewTable(0, 2)
		m.l.SetTableFunctions(-1, map[string]lua.NativeFunction{
			"getmetatable": func(l *lua.State) int {
				if !l.GetMetaTable(1) {
					l.Push(nil)
				}
				return 1
			},
			"setmetatable": func(l *lua.State) int {
				l.PushIndex(2)
				l.SetMetaTable(1)
				l.PushIndex(1)
				return 1
			},
		})
		m.l.SetGlobal("debug")
		return nil
	})
}
