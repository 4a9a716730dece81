package rlua

import (
	"testing"
)

func TestFunctionCall(t *testing.T) {
	l := newTestContext(t)

	res, err := l.Eval(`function(a, b) return a * b end`, "")
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	fn := res.Get(0).(*Function)
	defer fn.Release()

	out, err := fn.Call(6, 7)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if v, ok := out.Get(0).(Integer); !ok || v != 42 {
		t.Fatalf("6 * 7 = %#v, want Integer(42)", out.Get(0))
	}
}

func TestFunctionCallMultipleReturns(t *testing.T) {
	l := newTestContext(t)

	res, err := l.Eval(`function(...) return ... end`, "")
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	fn := res.Get(0).(*Function)
	defer fn.Release()

	out, err := fn.Call(1, "two", true)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out.Len() != 3 {
		t.Fatalf("echoed %d values, want 3", out.Len())
	}
	if v, _ := out.Get(1).(String); v != "two" {
		t.Fatalf("echo[1] = %#v", out.Get(1))
	}
}

func TestFunctionBind(t *testing.T) {
	l := newTestContext(t)

	res, err := l.Eval(`function(a, b, c) return a .. b .. c end`, "")
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	fn := res.Get(0).(*Function)
	defer fn.Release()

	bound, err := fn.Bind("x", "y")
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer bound.Release()

	out, err := bound.Call("z")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if v, ok := out.Get(0).(String); !ok || v != "xyz" {
		t.Fatalf("bound call = %#v, want String(xyz)", out.Get(0))
	}

	// The bound function is a plain Lua value and can be called from
	// script code too.
	if err := l.SetGlobal("bound", bound); err != nil {
		t.Fatalf("SetGlobal: %v", err)
	}
	sres, err := l.Exec(`return bound("w")`, "")
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if v, ok := sres.Get(0).(String); !ok || v != "xyw" {
		t.Fatalf("script bound call = %#v, want String(xyw)", sres.Get(0))
	}
}

func TestFunctionBindOfBind(t *testing.T) {
	l := newTestContext(t)

	res, err := l.Eval(`function(...) return select("#", ...) end`, "")
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	fn := res.Get(0).(*Function)
	defer fn.Release()

	b1, err := fn.Bind(1, 2)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer b1.Release()
	b2, err := b1.Bind(3)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer b2.Release()

	out, err := b2.Call(4, 5)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if v, ok := out.Get(0).(Integer); !ok || v != 5 {
		t.Fatalf("argument count = %#v, want Integer(5)", out.Get(0))
	}
}

func TestFunctionDump(t *testing.T) {
	l := newTestContext(t)

	res, err := l.Eval(`function() return 1 end`, "")
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	fn := res.Get(0).(*Function)
	defer fn.Release()

	bin, err := fn.Dump(false)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if len(bin) == 0 {
		t.Fatal("empty dump")
	}

	// Functions backed by Go code cannot be dumped.
	cb, err := l.CreateFunction(func(l *Lua, args MultiValue) (MultiValue, error) {
		return nil, nil
	})
	if err != nil {
		t.Fatalf("CreateFunction: %v", err)
	}
	defer cb.Release()
	if _, err := cb.Dump(false); err == nil {
		t.Fatal("expected Dump of a native function to fail")
	}
	if d := l.StackDepth(); d != 0 {
		t.Fatalf("stack depth %d, want 0", d)
	}
}
