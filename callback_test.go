package rlua

import (
	stderrors "errors"
	"testing"

	"github.com/fschutt/rlua/errors"
)

func TestCallbackRoundTrip(t *testing.T) {
	l := newTestContext(t)

	add, err := l.CreateFunction(func(l *Lua, args MultiValue) (MultiValue, error) {
		a, err := l.CoerceInteger(args.Get(0))
		if err != nil {
			return nil, err
		}
		b, err := l.CoerceInteger(args.Get(1))
		if err != nil {
			return nil, err
		}
		return Values(Integer(a + b)), nil
	})
	if err != nil {
		t.Fatalf("CreateFunction: %v", err)
	}
	defer add.Release()

	if err := l.SetGlobal("add", add); err != nil {
		t.Fatalf("SetGlobal: %v", err)
	}
	res, err := l.Exec(`return add(2, 40)`, "")
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if v, ok := res.Get(0).(Integer); !ok || v != 42 {
		t.Fatalf("add(2, 40) = %#v, want Integer(42)", res.Get(0))
	}
}

func TestCallbackErrorReachesHost(t *testing.T) {
	l := newTestContext(t)

	sentinel := stderrors.New("backend unavailable")
	fail, err := l.CreateFunction(func(l *Lua, args MultiValue) (MultiValue, error) {
		return nil, sentinel
	})
	if err != nil {
		t.Fatalf("CreateFunction: %v", err)
	}
	defer fail.Release()

	if _, err := fail.Call(); err == nil {
		t.Fatal("expected an error")
	} else {
		var se *errors.Error
		if !stderrors.As(err, &se) || se.Kind != errors.KindCallback {
			t.Fatalf("error %v, want a callback error", err)
		}
		if !stderrors.Is(err, sentinel) {
			t.Fatalf("error %v does not wrap the original cause", err)
		}
	}
}

func TestCallbackErrorSurvivesScriptPcall(t *testing.T) {
	l := newTestContext(t)

	sentinel := stderrors.New("backend unavailable")
	fail, err := l.CreateFunction(func(l *Lua, args MultiValue) (MultiValue, error) {
		return nil, sentinel
	})
	if err != nil {
		t.Fatalf("CreateFunction: %v", err)
	}
	defer fail.Release()
	if err := l.SetGlobal("fail", fail); err != nil {
		t.Fatalf("SetGlobal: %v", err)
	}

	// pcall absorbs the error; the error value the script sees is the
	// structured error, not a string.
	res, err := l.Exec(`
		local ok, e = pcall(fail)
		return ok, e
	`, "")
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if b, ok := res.Get(0).(Boolean); !ok || bool(b) {
		t.Fatalf("pcall ok = %#v, want false", res.Get(0))
	}
	ev, ok := res.Get(1).(ErrorValue)
	if !ok {
		t.Fatalf("pcall error value = %#v, want ErrorValue", res.Get(1))
	}
	if !stderrors.Is(ev.Err, sentinel) {
		t.Fatalf("error value %v does not wrap the original cause", ev.Err)
	}
}

func TestCallbackErrorRethrownByScript(t *testing.T) {
	l := newTestContext(t)

	sentinel := stderrors.New("backend unavailable")
	fail, err := l.CreateFunction(func(l *Lua, args MultiValue) (MultiValue, error) {
		return nil, sentinel
	})
	if err != nil {
		t.Fatalf("CreateFunction: %v", err)
	}
	defer fail.Release()
	if err := l.SetGlobal("fail", fail); err != nil {
		t.Fatalf("SetGlobal: %v", err)
	}

	_, err = l.Exec(`
		local ok, e = pcall(fail)
		error(e)
	`, "")
	if err == nil {
		t.Fatal("expected the rethrown error")
	}
	if !stderrors.Is(err, sentinel) {
		t.Fatalf("rethrown error %v lost the original cause", err)
	}
}

type panicPayload struct{ msg string }

func TestCallbackPanicFidelity(t *testing.T) {
	l := newTestContext(t)

	payload := panicPayload{msg: "cannot continue"}
	boom, err := l.CreateFunction(func(l *Lua, args MultiValue) (MultiValue, error) {
		panic(payload)
	})
	if err != nil {
		t.Fatalf("CreateFunction: %v", err)
	}
	defer boom.Release()
	if err := l.SetGlobal("boom", boom); err != nil {
		t.Fatalf("SetGlobal: %v", err)
	}

	// The script-level pcall must not absorb the panic, and the payload
	// must come through untouched.
	defer func() {
		p := recover()
		if p == nil {
			t.Fatal("expected the panic to resurface at the host boundary")
		}
		got, ok := p.(panicPayload)
		if !ok || got != payload {
			t.Fatalf("panic payload %#v, want %#v", p, payload)
		}
	}()
	l.Exec(`pcall(boom)`, "")
	t.Fatal("unreachable: Exec should have panicked")
}

func TestCallbackReentryRejected(t *testing.T) {
	l := newTestContext(t)

	var inner error
	var self *Function
	cb, err := l.CreateFunction(func(l *Lua, args MultiValue) (MultiValue, error) {
		if self == nil {
			return nil, nil
		}
		f := self
		self = nil
		_, inner = f.Call()
		return nil, nil
	})
	if err != nil {
		t.Fatalf("CreateFunction: %v", err)
	}
	defer cb.Release()
	self = cb

	if _, err := cb.Call(); err != nil {
		t.Fatalf("outer call failed: %v", err)
	}
	if inner == nil {
		t.Fatal("expected the nested call to fail")
	}
	var se *errors.Error
	if !stderrors.As(inner, &se) || se.Kind != errors.KindCallback {
		t.Fatalf("nested call error %v, want a callback error", inner)
	}
}

func TestEphemeralCloseIsNoOp(t *testing.T) {
	l := newTestContext(t)

	probe, err := l.CreateFunction(func(cl *Lua, args MultiValue) (MultiValue, error) {
		cl.Close()
		// The context must still work after the ephemeral close.
		return cl.Exec("return 7", "")
	})
	if err != nil {
		t.Fatalf("CreateFunction: %v", err)
	}
	defer probe.Release()

	res, err := probe.Call()
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if v, ok := res.Get(0).(Integer); !ok || v != 7 {
		t.Fatalf("result %#v, want Integer(7)", res.Get(0))
	}
}
