package rlua

import (
	"math"
	"reflect"

	"github.com/fschutt/rlua/errors"
)

// Pack converts an arbitrary Go value into a Value. Values pass
// through, ToLua implementations are honored, scalars map onto their
// Lua counterparts, and maps and slices become fresh tables. Anything
// else fails rather than guessing.
func (l *Lua) Pack(v any) (Value, error) {
	return l.main.pack(v)
}

func (m *mainState) pack(v any) (Value, error) {
	switch tv := v.(type) {
	case nil:
		return Nil{}, nil
	case Value:
		return tv, nil
	case ToLua:
		return tv.ToLua(&Lua{main: m, ephemeral: true})
	case bool:
		return Boolean(tv), nil
	case int:
		return Integer(tv), nil
	case int8:
		return Integer(tv), nil
	case int16:
		return Integer(tv), nil
	case int32:
		return Integer(tv), nil
	case int64:
		return Integer(tv), nil
	case uint:
		return Integer(tv), nil
	case uint8:
		return Integer(tv), nil
	case uint16:
		return Integer(tv), nil
	case uint32:
		return Integer(tv), nil
	case uint64:
		if tv > math.MaxInt64 {
			return nil, errors.ToLuaConversion("uint64", "integer", "value overflows the integer range")
		}
		return Integer(tv), nil
	case float32:
		return Number(tv), nil
	case float64:
		return Number(tv), nil
	case string:
		return String(tv), nil
	case []byte:
		return String(tv), nil
	case error:
		return ErrorValue{Err: tv}, nil
	case Callback:
		fn, err := (&Lua{main: m, ephemeral: true}).CreateFunction(tv)
		if err != nil {
			return nil, err
		}
		return fn, nil
	case func(l *Lua, args MultiValue) (MultiValue, error):
		fn, err := (&Lua{main: m, ephemeral: true}).CreateFunction(tv)
		if err != nil {
			return nil, err
		}
		return fn, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		t, err := (&Lua{main: m, ephemeral: true}).CreateSequenceFrom(items)
		if err != nil {
			return nil, err
		}
		return t, nil
	case reflect.Map:
		entries := make(map[any]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			entries[iter.Key().Interface()] = iter.Value().Interface()
		}
		t, err := (&Lua{main: m, ephemeral: true}).CreateTableFrom(entries)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
	return nil, errors.ToLuaConversion(reflect.TypeOf(v).String(), "value", "no conversion for this Go type")
}

// PackMulti converts several Go values at once.
func (l *Lua) PackMulti(vs ...any) (MultiValue, error) {
	out := make(MultiValue, 0, len(vs))
	for _, v := range vs {
		pv, err := l.main.pack(v)
		if err != nil {
			return nil, err
		}
		out = append(out, pv)
	}
	return out, nil
}

// UnpackMulti unpacks mv positionally into the given targets. Missing
// trailing values unpack as nil.
func (l *Lua) UnpackMulti(mv MultiValue, dsts ...any) error {
	for i, dst := range dsts {
		if err := l.Unpack(mv.Get(i), dst); err != nil {
			return err
		}
	}
	return nil
}

// Unpack converts a Value into the Go variable that dst points at.
// Supported targets: the scalar pointer types, *string with coercion,
// pointers to handle types, and any FromLua implementation. Numeric
// targets apply Lua's coercion rules, so "42" unpacks into an int64.
func (l *Lua) Unpack(v Value, dst any) error {
	if f, ok := dst.(FromLua); ok {
		return f.FromLua(l, v)
	}
	switch d := dst.(type) {
	case *Value:
		*d = v
		return nil
	case *bool:
		// Lua truthiness: only nil and false are false.
		switch b := v.(type) {
		case Nil:
			*d = false
		case Boolean:
			*d = bool(b)
		default:
			*d = true
		}
		return nil
	case *int64:
		n, err := l.CoerceInteger(v)
		if err != nil {
			return err
		}
		*d = n
		return nil
	case *int:
		n, err := l.CoerceInteger(v)
		if err != nil {
			return err
		}
		*d = int(n)
		return nil
	case *float64:
		n, err := l.CoerceNumber(v)
		if err != nil {
			return err
		}
		*d = n
		return nil
	case *string:
		s, err := l.CoerceString(v)
		if err != nil {
			return err
		}
		*d = s
		return nil
	case **Table:
		t, ok := v.(*Table)
		if !ok {
			return errors.FromLuaConversion(v.TypeName(), "table", "value is not a table")
		}
		*d = t
		return nil
	case **Function:
		f, ok := v.(*Function)
		if !ok {
			return errors.FromLuaConversion(v.TypeName(), "function", "value is not a function")
		}
		*d = f
		return nil
	case **Thread:
		t, ok := v.(*Thread)
		if !ok {
			return errors.FromLuaConversion(v.TypeName(), "thread", "value is not a thread")
		}
		*d = t
		return nil
	case **AnyUserData:
		u, ok := v.(*AnyUserData)
		if !ok {
			return errors.FromLuaConversion(v.TypeName(), "userdata", "value is not a userdata")
		}
		*d = u
		return nil
	}
	return errors.FromLuaConversion(v.TypeName(), reflect.TypeOf(dst).String(), "no conversion for this Go target")
}
