package rlua

import (
	"sync"

	lua "github.com/milochristiansen/lua"

	"github.com/fschutt/rlua/errors"
)

// ThreadStatus is the host-visible state of a coroutine.
type ThreadStatus int

const (
	// StatusResumable means Resume may be called: the coroutine has not
	// started yet, or it is suspended at a yield.
	StatusResumable ThreadStatus = iota
	// StatusUnresumable means the coroutine ran to completion.
	StatusUnresumable
	// StatusError means the coroutine aborted with an error.
	StatusError
)

func (s ThreadStatus) String() string {
	switch s {
	case StatusResumable:
		return "resumable"
	case StatusUnresumable:
		return "unresumable"
	default:
		return "error"
	}
}

type coState int

const (
	coReady coState = iota
	coRunning
	coSuspended
	coDead
	coErrored
)

// coroutine bridges the engine, which has no native coroutines, onto a
// goroutine with channel handoff. Exactly one party runs at a time: the
// resumer blocks while the coroutine executes, the coroutine blocks at
// a yield while the resumer executes. The engine therefore never sees
// concurrent access.
//
// The engine has a single evaluation stack, and a suspended coroutine's
// frames stay live on it. Resumption is therefore strictly LIFO: only
// the innermost suspended coroutine (or a fresh one) may be resumed,
// and only the innermost may yield. Violations fail with a coroutine
// error instead of corrupting frame unwinding.
type coroutine struct {
	m     *mainState
	fnRef *ref

	resumeCh chan MultiValue
	yieldCh  chan *threadTransfer
	kill     chan struct{}
	done     chan struct{}
	killOnce sync.Once

	state coState
}

type threadTransfer struct {
	values MultiValue
	err    error
	final  bool
}

// Drop releases the coroutine's function pin when its handle pin dies.
// A suspended coroutine's frames stay live on the shared engine stack,
// so the goroutine itself is not torn down here; unwinding it would
// truncate the stack under any coroutine pinned above it, and would
// mutate engine state concurrently with the releasing host. Goroutine
// teardown happens only at Close, innermost-first and joined.
func (co *coroutine) Drop() {
	co.fnRef.release()
}

// Thread is a handle to a coroutine.
type Thread struct {
	co  *coroutine
	ref *ref
}

func (*Thread) TypeName() string { return "thread" }
func (*Thread) luaValue()        {}

// Release drops the handle's registry pin. The coroutine itself stays
// alive until the context closes: if it is suspended, its frames are
// still on the shared engine stack and must unwind in LIFO order at
// Close, not at handle release.
func (t *Thread) Release() { t.ref.release() }

// Status reports whether the coroutine can be resumed.
func (t *Thread) Status() ThreadStatus {
	switch t.co.state {
	case coDead:
		return StatusUnresumable
	case coErrored:
		return StatusError
	default:
		return StatusResumable
	}
}

// Resume runs the coroutine until its next yield or until it finishes.
// Arguments become the coroutine function's parameters on first resume
// and the results of the pending yield afterwards. A panic raised by a
// host callback inside the coroutine resurfaces here as that panic.
func (t *Thread) Resume(args ...any) (MultiValue, error) {
	m := t.co.m
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
	res, err := t.co.resumeRaw(packed)
	if err != nil {
		return nil, m.translateError(err)
	}
	return res, nil
}

// CreateThread wraps fn as a coroutine. The thread holds its own pin on
// fn, so releasing the original Function handle is fine.
func (l *Lua) CreateThread(fn *Function) (*Thread, error) {
	m := l.main
	if err := m.ensureOpen(); err != nil {
		return nil, err
	}
	var th *Thread
	err := m.stackErrGuard(0, func() error {
		if err := m.pushRef(fn.ref); err != nil {
			return err
		}
		co := m.newCoroutine(m.popRef("function", nil))
		m.l.Push(co)
		th = &Thread{co: co, ref: m.popRef("thread", co)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return th, nil
}

func (m *mainState) newCoroutine(fnRef *ref) *coroutine {
	co := &coroutine{
		m:        m,
		fnRef:    fnRef,
		resumeCh: make(chan MultiValue),
		yieldCh:  make(chan *threadTransfer),
		kill:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	m.cos = append(m.cos, co)
	return co
}

func (m *mainState) activeTop() *coroutine {
	if len(m.active) == 0 {
		return nil
	}
	return m.active[len(m.active)-1]
}

// executing returns the coroutine whose code is currently running, or
// nil when the main body is.
func (m *mainState) executing() *coroutine {
	for i := len(m.active) - 1; i >= 0; i-- {
		if m.active[i].state == coRunning {
			return m.active[i]
		}
	}
	return nil
}

func (m *mainState) popActive(co *coroutine) {
	if n := len(m.active); n > 0 && m.active[n-1] == co {
		m.active = m.active[:n-1]
	}
}

func (co *coroutine) inActive() bool {
	for _, c := range co.m.active {
		if c == co {
			return true
		}
	}
	return false
}

// resumeRaw drives one resume cycle. An engine error comes back
// untranslated so callers inside engine execution can keep propagating
// it; the host boundary translates it instead.
func (co *coroutine) resumeRaw(args MultiValue) (MultiValue, error) {
	m := co.m
	switch co.state {
	case coDead, coErrored:
		return nil, errors.CoroutineInactive()
	case coRunning:
		return nil, errors.Coroutine("cannot resume a running coroutine")
	}
	if co.state == coSuspended && m.activeTop() != co {
		return nil, errors.Coroutine("cannot resume a coroutine pinned beneath another")
	}

	if co.state == coReady {
		co.state = coRunning
		m.active = append(m.active, co)
		go co.run(args)
	} else {
		co.state = coRunning
		co.resumeCh <- args
	}

	t := <-co.yieldCh
	if t.final {
		m.popActive(co)
		if t.err != nil {
			co.state = coErrored
			return nil, t.err
		}
		co.state = coDead
		return t.values, nil
	}
	co.state = coSuspended
	return t.values, nil
}

// run is the coroutine body. It owns the engine while it executes; the
// resumer is parked on yieldCh the whole time.
func (co *coroutine) run(args MultiValue) {
	defer close(co.done)
	m := co.m
	base := m.depth()
	var results MultiValue
	err := func() error {
		if err := m.pushRef(co.fnRef); err != nil {
			return err
		}
		if err := m.pushValues(args); err != nil {
			m.l.Pop(1)
			return err
		}
		if err := m.l.PCall(len(args), -1); err != nil {
			return err
		}
		results = m.popValues(m.depth() - base)
		return nil
	}()
	co.deliver(&threadTransfer{values: results, err: err, final: true})
}

func (co *coroutine) deliver(t *threadTransfer) bool {
	select {
	case co.yieldCh <- t:
		return true
	case <-co.kill:
		return false
	}
}

func (co *coroutine) await() (MultiValue, bool) {
	select {
	case vs := <-co.resumeCh:
		return vs, true
	case <-co.kill:
		return nil, false
	}
}

// coroutineYield implements yield for script code. It runs on the
// coroutine's goroutine, hands the yielded values to the parked
// resumer, and blocks until resumed again.
func (m *mainState) coroutineYield(l *lua.State) int {
	co := m.executing()
	if co == nil {
		raiseHostError(errors.Coroutine("attempt to yield from outside a coroutine"))
	}
	if co != m.activeTop() {
		raiseHostError(errors.Coroutine("cannot yield across a pinned coroutine"))
	}
	vals := m.popValues(l.AbsIndex(-1))
	if !co.deliver(&threadTransfer{values: vals}) {
		raiseHostError(errors.Coroutine("coroutine torn down while suspended"))
	}
	resumed, ok := co.await()
	if !ok {
		raiseHostError(errors.Coroutine("coroutine torn down while suspended"))
	}
	if err := m.pushValues(resumed); err != nil {
		raiseHostError(err)
	}
	return len(resumed)
}
