package rlua

import (
	stderrors "errors"
	"io"
	"reflect"
	"strings"

	lua "github.com/milochristiansen/lua"
	"go.uber.org/zap"

	"github.com/fschutt/rlua/errors"
	"github.com/fschutt/rlua/registry"
)

// ErrContextClosed is returned by operations on a closed context.
var ErrContextClosed = stderrors.New("rlua: context is closed")

// ErrReleasedHandle is returned when a handle is used after Release.
var ErrReleasedHandle = stderrors.New("rlua: use of released handle")

// Lua is a handle to an embedded Lua context. The zero value is not
// usable; create one with New or NewWithLibraries.
//
// A Lua must only be driven by one goroutine at a time. Callbacks
// receive an ephemeral Lua sharing the same underlying context; closing
// an ephemeral handle is a no-op.
type Lua struct {
	main      *mainState
	ephemeral bool
}

// mainState is the identity of a context. Every handle minted by a
// context points back at the same mainState, which is how cross context
// handle misuse is caught.
type mainState struct {
	l      *lua.State
	arena  *registry.Arena
	udMeta map[reflect.Type]*ref

	// active is the stack of currently resumed coroutines, innermost
	// last. Empty whenever the main body of the context is running.
	active []*coroutine

	// cos holds every coroutine ever minted so Close can unblock any
	// goroutine still parked at a yield.
	cos []*coroutine

	pinLog *pinLogger

	libs   StdLib
	closed bool
}

// pinLogger traces pin lifecycle events through the package logger.
type pinLogger struct{}

func (pinLogger) OnPinEvent(ev registry.Event) {
	log := Logger()
	if !log.Core().Enabled(zap.DebugLevel) {
		return
	}
	if ev.Released {
		log.Debug("pin released", zap.Int64("slot", int64(ev.Slot)), zap.String("kind", ev.Kind))
		return
	}
	log.Debug("pinned", zap.Int64("slot", int64(ev.Slot)), zap.String("kind", ev.Kind))
}

type config struct {
	libs        StdLib
	out         io.Writer
	nativeTrace bool
}

// Option configures a new context.
type Option func(*config)

// WithOutput redirects script print output. Defaults to discarding it.
func WithOutput(w io.Writer) Option {
	return func(c *config) { c.out = w }
}

// WithNativeTrace includes Go stack traces in engine error traces.
// Useful when debugging host callbacks, noisy otherwise.
func WithNativeTrace() Option {
	return func(c *config) { c.nativeTrace = true }
}

// New creates a context with the default standard libraries loaded.
func New(opts ...Option) (*Lua, error) {
	return NewWithLibraries(LibsDefault, opts...)
}

// NewWithLibraries creates a context with exactly the given libraries
// loaded. The hardened base functions (pcall, xpcall, error,
// setmetatable) are installed whenever LibBase is requested.
func NewWithLibraries(libs StdLib, opts ...Option) (*Lua, error) {
	c := config{libs: libs, out: io.Discard}
	for _, opt := range opts {
		opt(&c)
	}

	state := lua.NewState()
	state.Output = c.out
	state.NativeTrace = c.nativeTrace

	m := &mainState{
		l:      state,
		arena:  registry.NewArena(),
		udMeta: make(map[reflect.Type]*ref),
		pinLog: &pinLogger{},
		libs:   c.libs,
	}
	m.arena.Subscribe(m.pinLog)
	if err := m.openLibraries(c.libs); err != nil {
		return nil, err
	}
	return &Lua{main: m}, nil
}

// Close tears the context down: every live handle is invalidated, every
// pinned value is released, and userdata destructors run. Closing an
// ephemeral callback handle or closing twice is a no-op.
func (l *Lua) Close() {
	if l.ephemeral || l.main.closed {
		return
	}
	m := l.main
	m.closed = true

	// Suspended coroutines unwind innermost-first: each teardown removes
	// only its own frames from the shared engine stack, and the
	// goroutine is joined before the next one wakes so no two unwinds
	// ever overlap.
	for len(m.active) > 0 {
		co := m.active[len(m.active)-1]
		co.killOnce.Do(func() { close(co.kill) })
		<-co.done
		co.state = coDead
		m.popActive(co)
	}
	for _, co := range m.cos {
		co.killOnce.Do(func() { close(co.kill) })
	}

	if n := m.arena.Len(); n > 0 {
		log := Logger()
		m.arena.Each(func(slot registry.Slot, kind string, _ any) bool {
			log.Debug("pin still live at close", zap.Int64("slot", int64(slot)), zap.String("kind", kind))
			return true
		})
		log.Info("releasing pins left live at close", zap.Int("count", n))
	}
	m.arena.Unsubscribe(m.pinLog)
	m.arena.Close()
}

// Libraries reports which standard libraries were loaded at creation.
func (l *Lua) Libraries() StdLib { return l.main.libs }

func (m *mainState) ensureOpen() error {
	if m.closed {
		return ErrContextClosed
	}
	return nil
}

// Load compiles source as a chunk without running it. name appears in
// error messages and tracebacks; an empty name gets a placeholder.
func (l *Lua) Load(source, name string) (*Function, error) {
	m := l.main
	if err := m.ensureOpen(); err != nil {
		return nil, err
	}
	if name == "" {
		name = "=(load)"
	}
	var fn *Function
	err := m.stackErrGuard(0, func() error {
		if err := m.l.LoadText(strings.NewReader(source), name, 0); err != nil {
			return m.translateLoadError(err)
		}
		fn = &Function{ref: m.popRef("function", nil)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fn, nil
}

// Exec compiles and runs source, returning everything the chunk
// returns.
func (l *Lua) Exec(source, name string) (MultiValue, error) {
	fn, err := l.Load(source, name)
	if err != nil {
		return nil, err
	}
	defer fn.Release()
	return fn.Call()
}

// Eval evaluates source as an expression if possible: "1 + 2" works
// without an explicit return. Statement chunks still run as with Exec.
func (l *Lua) Eval(source, name string) (MultiValue, error) {
	fn, err := l.Load("return "+source, name)
	if err != nil {
		fn, err = l.Load(source, name)
		if err != nil {
			return nil, err
		}
	}
	defer fn.Release()
	return fn.Call()
}

// CreateTable creates a fresh empty table.
func (l *Lua) CreateTable() (*Table, error) {
	m := l.main
	if err := m.ensureOpen(); err != nil {
		return nil, err
	}
	var t *Table
	err := m.stackErrGuard(0, func() error {
		m.l.NewTable(0, 8)
		t = &Table{ref: m.popRef("table", nil)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// CreateTableFrom creates a table populated from a Go map. Keys and
// values go through Pack.
func (l *Lua) CreateTableFrom(entries map[any]any) (*Table, error) {
	t, err := l.CreateTable()
	if err != nil {
		return nil, err
	}
	for k, v := range entries {
		if err := t.Set(k, v); err != nil {
			t.Release()
			return nil, err
		}
	}
	return t, nil
}

// CreateSequenceFrom creates a table holding items as a 1-based
// sequence.
func (l *Lua) CreateSequenceFrom(items []any) (*Table, error) {
	t, err := l.CreateTable()
	if err != nil {
		return nil, err
	}
	for i, v := range items {
		if err := t.RawSet(int64(i+1), v); err != nil {
			t.Release()
			return nil, err
		}
	}
	return t, nil
}

// CreateFunction wraps a Go callback as a callable Lua function.
func (l *Lua) CreateFunction(cb Callback) (*Function, error) {
	m := l.main
	if err := m.ensureOpen(); err != nil {
		return nil, err
	}
	var fn *Function
	err := m.stackErrGuard(0, func() error {
		m.pushCallback(cb)
		fn = &Function{ref: m.popRef("function", nil)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fn, nil
}

// Globals returns a handle to the global table.
func (l *Lua) Globals() (*Table, error) {
	m := l.main
	if err := m.ensureOpen(); err != nil {
		return nil, err
	}
	var t *Table
	err := m.stackErrGuard(0, func() error {
		m.l.PushIndex(lua.GlobalsIndex)
		t = &Table{ref: m.popRef("table", nil)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// SetGlobal is shorthand for setting a single global variable.
func (l *Lua) SetGlobal(name string, value any) error {
	g, err := l.Globals()
	if err != nil {
		return err
	}
	defer g.Release()
	return g.Set(name, value)
}

// Global is shorthand for reading a single global variable.
func (l *Lua) Global(name string) (Value, error) {
	g, err := l.Globals()
	if err != nil {
		return nil, err
	}
	defer g.Release()
	return g.Get(name)
}

// CoerceString converts v using Lua's string coercion: strings pass
// through, numbers format the way the engine formats them, anything
// else fails. This is stricter than tostring, which stringifies
// everything.
func (l *Lua) CoerceString(v Value) (string, error) {
	m := l.main
	if err := m.ensureOpen(); err != nil {
		return "", err
	}
	switch sv := v.(type) {
	case String:
		return string(sv), nil
	case Integer, Number:
		var s string
		err := m.stackErrGuard(0, func() error {
			if err := m.pushValue(v); err != nil {
				return err
			}
			s = m.l.ToString(-1)
			m.l.Pop(1)
			return nil
		})
		return s, err
	default:
		return "", errors.FromLuaConversion(v.TypeName(), "string", "value has no string representation")
	}
}

// CoerceInteger converts v using Lua's integer coercion rules: integers
// pass through, floats must be exactly representable, strings must
// parse as an integral number.
func (l *Lua) CoerceInteger(v Value) (int64, error) {
	m := l.main
	if err := m.ensureOpen(); err != nil {
		return 0, err
	}
	if i, ok := v.(Integer); ok {
		return int64(i), nil
	}
	var n int64
	var ok bool
	err := m.stackErrGuard(0, func() error {
		if err := m.pushValue(v); err != nil {
			return err
		}
		n, ok = m.l.TryInt(-1)
		m.l.Pop(1)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errors.FromLuaConversion(v.TypeName(), "integer", "value is not exactly representable as an integer")
	}
	return n, nil
}

// CoerceNumber converts v using Lua's float coercion rules.
func (l *Lua) CoerceNumber(v Value) (float64, error) {
	m := l.main
	if err := m.ensureOpen(); err != nil {
		return 0, err
	}
	if f, ok := v.(Number); ok {
		return float64(f), nil
	}
	var n float64
	var ok bool
	err := m.stackErrGuard(0, func() error {
		if err := m.pushValue(v); err != nil {
			return err
		}
		n, ok = m.l.TryFloat(-1)
		m.l.Pop(1)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errors.FromLuaConversion(v.TypeName(), "number", "value is not convertible to a number")
	}
	return n, nil
}

// PinCount reports how many registry pins are currently live. Intended
// for leak checks in tests and shutdown diagnostics.
func (l *Lua) PinCount() int { return l.main.arena.Len() }

// StackDepth reports how many items the host currently has on the
// engine stack. Zero between operations; anything else means a balance
// bug.
func (l *Lua) StackDepth() int { return l.main.depth() }
