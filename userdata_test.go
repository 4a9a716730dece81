package rlua

import (
	stderrors "errors"
	"testing"

	"github.com/fschutt/rlua/errors"
)

type counter struct {
	n       int64
	dropped bool
}

func (c *counter) AddMethods(m *UserDataMethods) {
	m.AddMethod("incr", func(l *Lua, args MultiValue) (MultiValue, error) {
		ud, ok := args.Get(0).(*AnyUserData)
		if !ok {
			return nil, errors.FromLuaConversion(args.Get(0).TypeName(), "userdata", "method needs its receiver")
		}
		defer ud.Release()
		self, err := As[*counter](ud)
		if err != nil {
			return nil, err
		}
		by := int64(1)
		if args.Len() > 1 {
			if by, err = l.CoerceInteger(args.Get(1)); err != nil {
				return nil, err
			}
		}
		self.n += by
		return Values(Integer(self.n)), nil
	})
	m.AddMetaMethod(MetaToString, func(l *Lua, args MultiValue) (MultiValue, error) {
		return Values(String("counter")), nil
	})
}

func (c *counter) Drop() { c.dropped = true }

func TestUserDataMethods(t *testing.T) {
	l := newTestContext(t)

	c := &counter{}
	ud, err := l.CreateUserData(c)
	if err != nil {
		t.Fatalf("CreateUserData: %v", err)
	}
	defer ud.Release()
	if err := l.SetGlobal("c", ud); err != nil {
		t.Fatalf("SetGlobal: %v", err)
	}

	res, err := l.Exec(`c:incr(); c:incr(4); return c:incr()`, "")
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if v, ok := res.Get(0).(Integer); !ok || v != 6 {
		t.Fatalf("incr chain = %#v, want Integer(6)", res.Get(0))
	}
	if c.n != 6 {
		t.Fatalf("Go side saw %d, want 6", c.n)
	}
}

func TestUserDataRoundTripIdentity(t *testing.T) {
	l := newTestContext(t)

	c := &counter{}
	ud, err := l.CreateUserData(c)
	if err != nil {
		t.Fatalf("CreateUserData: %v", err)
	}
	defer ud.Release()
	if err := l.SetGlobal("c", ud); err != nil {
		t.Fatalf("SetGlobal: %v", err)
	}

	res, err := l.Exec(`return c`, "")
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	back, ok := res.Get(0).(*AnyUserData)
	if !ok {
		t.Fatalf("result %#v, want *AnyUserData", res.Get(0))
	}
	defer back.Release()
	got, err := As[*counter](back)
	if err != nil {
		t.Fatalf("As: %v", err)
	}
	if got != c {
		t.Fatal("userdata lost its Go identity on the round trip")
	}
}

func TestUserDataWrongTypeExtraction(t *testing.T) {
	l := newTestContext(t)

	ud, err := l.CreateUserData(&counter{})
	if err != nil {
		t.Fatalf("CreateUserData: %v", err)
	}
	defer ud.Release()

	_, err = As[*gate](ud)
	if err == nil {
		t.Fatal("expected a type mismatch error")
	}
	var se *errors.Error
	if !stderrors.As(err, &se) || se.Kind != errors.KindFromLuaConversion {
		t.Fatalf("error %v, want a from-lua conversion error", err)
	}
}

type gate struct {
	open bool
}

func (g *gate) AddMethods(m *UserDataMethods) {
	m.AddMethod("state", func(l *Lua, args MultiValue) (MultiValue, error) {
		ud := args.Get(0).(*AnyUserData)
		defer ud.Release()
		self, err := As[*gate](ud)
		if err != nil {
			return nil, err
		}
		return Values(Boolean(self.open)), nil
	})
	m.AddMetaMethod(MetaIndex, func(l *Lua, args MultiValue) (MultiValue, error) {
		key, err := l.CoerceString(args.Get(1))
		if err != nil {
			return nil, err
		}
		return Values(String("dynamic:" + key)), nil
	})
}

func TestUserDataCombinedIndex(t *testing.T) {
	l := newTestContext(t)

	ud, err := l.CreateUserData(&gate{open: true})
	if err != nil {
		t.Fatalf("CreateUserData: %v", err)
	}
	defer ud.Release()
	if err := l.SetGlobal("g", ud); err != nil {
		t.Fatalf("SetGlobal: %v", err)
	}

	// Named methods win; everything else falls through to the __index
	// handler.
	res, err := l.Exec(`return g:state(), g.anything`, "")
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if v, ok := res.Get(0).(Boolean); !ok || !bool(v) {
		t.Fatalf("g:state() = %#v, want true", res.Get(0))
	}
	if v, ok := res.Get(1).(String); !ok || v != "dynamic:anything" {
		t.Fatalf("g.anything = %#v, want dynamic:anything", res.Get(1))
	}
}

func TestUserDataMetatableCached(t *testing.T) {
	l := newTestContext(t)

	before := l.PinCount()
	a, err := l.CreateUserData(&counter{})
	if err != nil {
		t.Fatalf("CreateUserData: %v", err)
	}
	afterFirst := l.PinCount()
	b, err := l.CreateUserData(&counter{})
	if err != nil {
		t.Fatalf("CreateUserData: %v", err)
	}
	afterSecond := l.PinCount()

	// The first value pays for its pin plus the cached dispatch table
	// and its method closures' pins, the second only for its own pin.
	if afterSecond-afterFirst != 1 {
		t.Fatalf("second userdata cost %d pins, want 1", afterSecond-afterFirst)
	}
	if afterFirst <= before {
		t.Fatal("first userdata should have pinned the dispatch table")
	}
	a.Release()
	b.Release()
}

func TestUserDataMetatableProtectedFromScripts(t *testing.T) {
	l := newTestContext(t)

	ud, err := l.CreateUserData(&counter{})
	if err != nil {
		t.Fatalf("CreateUserData: %v", err)
	}
	defer ud.Release()
	if err := l.SetGlobal("c", ud); err != nil {
		t.Fatalf("SetGlobal: %v", err)
	}

	res, err := l.Exec(`return getmetatable(c)`, "")
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if v, ok := res.Get(0).(Boolean); !ok || bool(v) {
		t.Fatalf("getmetatable leaked %#v, want the false marker", res.Get(0))
	}
}

func TestUserDataDropOnRelease(t *testing.T) {
	l := newTestContext(t)

	c := &counter{}
	ud, err := l.CreateUserData(c)
	if err != nil {
		t.Fatalf("CreateUserData: %v", err)
	}
	if c.dropped {
		t.Fatal("dropped too early")
	}
	ud.Release()
	if !c.dropped {
		t.Fatal("Drop did not run on release")
	}
}

func TestUserDataDropOnClose(t *testing.T) {
	l, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c := &counter{}
	if _, err := l.CreateUserData(c); err != nil {
		t.Fatalf("CreateUserData: %v", err)
	}
	l.Close()
	if !c.dropped {
		t.Fatal("Drop did not run on context close")
	}
}
