package rlua

import (
	"fmt"
	"strings"

	"github.com/milochristiansen/lua/luautil"
	"go.uber.org/zap"

	"github.com/fschutt/rlua/errors"
)

// wrappedError carries a structured host error through the engine as a
// userdata value, so a callback error crossing into script code and
// back keeps its identity instead of decaying to a message string.
type wrappedError struct {
	err error
}

func (w *wrappedError) Error() string { return w.err.Error() }
func (w *wrappedError) Unwrap() error { return w.err }

// wrappedPanic carries a Go panic payload through the engine's unwind
// machinery. It implements error so the engine's recovery keeps the
// payload intact rather than stringifying it. Scripts never observe
// one: the hardened pcall refuses to absorb it, and the protected call
// boundary turns it back into the original panic.
type wrappedPanic struct {
	payload any
}

func (w *wrappedPanic) Error() string { return fmt.Sprintf("host panic: %v", w.payload) }

// raiseHostError aborts the current engine execution with a structured
// host error. Only call while the engine is running, i.e. from inside a
// native function.
func raiseHostError(err error) {
	panic(luautil.Error{Msg: err.Error(), Type: luautil.ErrTypWrapped, Err: err})
}

// raiseHostPanic aborts the current engine execution with a wrapped
// panic payload.
func raiseHostPanic(payload any) {
	panic(luautil.Error{Msg: "host callback panicked", Type: luautil.ErrTypWrapped, Err: &wrappedPanic{payload: payload}})
}

// protect runs f with the engine's recovery armed and translates
// whatever comes out into the package error taxonomy.
func (m *mainState) protect(f func()) error {
	return m.translateError(m.l.Protect(f))
}

// pcall performs a protected call with nargs arguments and nresults
// results (-1 for all). The function and its arguments must already be
// on the engine stack.
func (m *mainState) pcall(nargs, nresults int) error {
	return m.translateError(m.l.PCall(nargs, nresults))
}

// translateError maps an engine error onto the package taxonomy.
//
// Two cases leave the normal path: an engine error carrying a wrapped
// panic resumes panicking with the original payload, and an internal
// engine fault aborts the process.
func (m *mainState) translateError(err error) error {
	if err == nil {
		return nil
	}
	if se, ok := err.(*errors.Error); ok {
		return se
	}
	le, ok := err.(luautil.Error)
	if !ok {
		return errors.External(err)
	}

	switch inner := le.Err.(type) {
	case *wrappedPanic:
		panic(inner.payload)
	case *errors.Error:
		return withTraceback(inner, le.Trace)
	case *wrappedError:
		return translateWrapped(inner.err, le.Trace)
	}

	switch le.Type {
	case luautil.ErrTypGenLexer, luautil.ErrTypGenSyntax:
		return errors.Syntax(le.Msg, looksIncomplete(le.Msg))
	case luautil.ErrTypMajorInternal:
		Logger().Fatal("engine reported internal corruption", zap.Error(le))
		return nil
	case luautil.ErrTypWrapped, luautil.ErrTypEvil:
		if le.Err != nil {
			return translateWrapped(le.Err, le.Trace)
		}
		return errors.Runtime(le.Msg, le.Trace)
	default:
		msg := le.Msg
		if msg == "" && le.Err != nil {
			msg = le.Err.Error()
		}
		return errors.Runtime(msg, le.Trace)
	}
}

func translateWrapped(err error, trace string) error {
	if se, ok := err.(*errors.Error); ok {
		return withTraceback(se, trace)
	}
	return errors.External(err)
}

// withTraceback attaches an engine traceback to a structured error that
// does not carry one yet.
func withTraceback(e *errors.Error, trace string) *errors.Error {
	if e.Traceback != "" || trace == "" {
		return e
	}
	return errors.New(e.Kind).
		Cause(e.Cause).
		Types(e.From, e.To).
		Traceback(trace).
		Incomplete(e.Incomplete).
		Detail("%s", e.Detail).
		Build()
}

// translateLoadError classifies a compile failure from LoadText.
func (m *mainState) translateLoadError(err error) error {
	if le, ok := err.(luautil.Error); ok {
		switch le.Type {
		case luautil.ErrTypGenLexer, luautil.ErrTypGenSyntax:
			return errors.Syntax(le.Msg, looksIncomplete(le.Msg))
		}
		return m.translateError(err)
	}
	return errors.Syntax(err.Error(), looksIncomplete(err.Error()))
}

// looksIncomplete reports whether a syntax error message indicates the
// chunk simply stopped early, the signal a REPL uses to keep reading
// input lines.
func looksIncomplete(msg string) bool {
	return strings.Contains(msg, "EOF")
}
