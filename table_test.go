package rlua

import (
	"testing"
)

func TestTableSetGet(t *testing.T) {
	l := newTestContext(t)

	tbl, err := l.CreateTable()
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	defer tbl.Release()

	if err := tbl.Set("name", "zed"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := tbl.Set(1, 100); err != nil {
		t.Fatalf("Set: %v", err)
	}

	v, err := tbl.Get("name")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s, ok := v.(String); !ok || s != "zed" {
		t.Fatalf("t.name = %#v, want String(zed)", v)
	}
	v, err = tbl.Get(1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if n, ok := v.(Integer); !ok || n != 100 {
		t.Fatalf("t[1] = %#v, want Integer(100)", v)
	}
	v, err = tbl.Get("missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, ok := v.(Nil); !ok {
		t.Fatalf("t.missing = %#v, want Nil", v)
	}
}

func TestTableHandleSharesIdentity(t *testing.T) {
	l := newTestContext(t)

	tbl, err := l.CreateTable()
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	defer tbl.Release()
	if err := l.SetGlobal("shared", tbl); err != nil {
		t.Fatalf("SetGlobal: %v", err)
	}
	if _, err := l.Exec(`shared.fromScript = 5`, ""); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	v, err := tbl.Get("fromScript")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if n, ok := v.(Integer); !ok || n != 5 {
		t.Fatalf("mutation through the handle not visible: %#v", v)
	}
}

func TestTableMetamethodsVsRaw(t *testing.T) {
	l := newTestContext(t)

	res, err := l.Exec(`
		local t = setmetatable({}, {__index = function() return "fallback" end})
		return t
	`, "")
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	tbl, ok := res.Get(0).(*Table)
	if !ok {
		t.Fatalf("result %#v, want *Table", res.Get(0))
	}
	defer tbl.Release()

	v, err := tbl.Get("anything")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s, ok := v.(String); !ok || s != "fallback" {
		t.Fatalf("Get = %#v, want the __index fallback", v)
	}
	v, err = tbl.RawGet("anything")
	if err != nil {
		t.Fatalf("RawGet: %v", err)
	}
	if _, ok := v.(Nil); !ok {
		t.Fatalf("RawGet = %#v, want Nil", v)
	}
}

func TestTableMetamethodErrorPropagates(t *testing.T) {
	l := newTestContext(t)

	res, err := l.Exec(`
		return setmetatable({}, {__index = function() error("no such field") end})
	`, "")
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	tbl := res.Get(0).(*Table)
	defer tbl.Release()

	if _, err := tbl.Get("x"); err == nil {
		t.Fatal("expected the __index error to propagate")
	}
	if d := l.StackDepth(); d != 0 {
		t.Fatalf("stack depth after failed Get %d, want 0", d)
	}
}

func TestTableLen(t *testing.T) {
	l := newTestContext(t)

	seq, err := l.CreateSequenceFrom([]any{"a", "b", "c"})
	if err != nil {
		t.Fatalf("CreateSequenceFrom: %v", err)
	}
	defer seq.Release()

	n, err := seq.Len()
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if n != 3 {
		t.Fatalf("Len = %d, want 3", n)
	}
}

func TestTableForEach(t *testing.T) {
	l := newTestContext(t)

	tbl, err := l.CreateTableFrom(map[any]any{"a": 1, "b": 2, "c": 3})
	if err != nil {
		t.Fatalf("CreateTableFrom: %v", err)
	}
	defer tbl.Release()

	seen := map[string]int64{}
	err = tbl.ForEach(func(k, v Value) error {
		ks, err := l.CoerceString(k)
		if err != nil {
			return err
		}
		vn, err := l.CoerceInteger(v)
		if err != nil {
			return err
		}
		seen[ks] = vn
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	if len(seen) != 3 || seen["a"] != 1 || seen["b"] != 2 || seen["c"] != 3 {
		t.Fatalf("ForEach visited %v", seen)
	}
}

func TestProtectedMetatable(t *testing.T) {
	l := newTestContext(t)

	// A metatable with __metatable set cannot be replaced from script
	// code or through the host API.
	res, err := l.Exec(`
		local t = setmetatable({}, {__metatable = false})
		local ok = pcall(setmetatable, t, {})
		return t, ok
	`, "")
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	tbl := res.Get(0).(*Table)
	defer tbl.Release()
	if ok, _ := res.Get(1).(Boolean); bool(ok) {
		t.Fatal("script setmetatable on a protected table should fail")
	}

	other, err := l.CreateTable()
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	defer other.Release()
	if err := tbl.SetMetatable(other); err == nil {
		t.Fatal("host SetMetatable on a protected table should fail")
	}
}
