package rlua

// Value is a single Lua value as seen by the host.
//
// Scalar variants (Nil, Boolean, Integer, Number, String, LightUserData,
// ErrorValue) are plain Go data and stay valid forever. Reference
// variants (*Table, *Function, *Thread, *AnyUserData) are handles backed
// by a registry pin in the context that produced them; they stay valid
// until released or until the context closes, and they must never be
// passed to a different context.
type Value interface {
	// TypeName reports the Lua-facing name of the value's type, e.g.
	// "nil", "integer" or "table".
	TypeName() string

	luaValue()
}

// Nil is the Lua nil value.
type Nil struct{}

func (Nil) TypeName() string { return "nil" }
func (Nil) luaValue()        {}

// Boolean is a Lua boolean.
type Boolean bool

func (Boolean) TypeName() string { return "boolean" }
func (Boolean) luaValue()        {}

// Integer is a Lua integer. Lua 5.3 keeps integers and floats distinct,
// and so does this package: an Integer never silently becomes a Number.
type Integer int64

func (Integer) TypeName() string { return "integer" }
func (Integer) luaValue()        {}

// Number is a Lua float.
type Number float64

func (Number) TypeName() string { return "number" }
func (Number) luaValue()        {}

// String is a Lua string. Both Go and the engine treat string contents
// as immutable, so no pin is needed and the value never dangles.
type String string

func (String) TypeName() string { return "string" }
func (String) luaValue()        {}

// LightUserData is a bare host value with no methods and no metatable,
// passed through the engine by identity. It is not pinned; keeping the
// Go value alive is the host's own business.
type LightUserData struct {
	Value any
}

func (LightUserData) TypeName() string { return "lightuserdata" }
func (LightUserData) luaValue()        {}

// ErrorValue is a structured host error travelling as a Lua value. A
// callback error crossing into a script, or a script rethrowing such an
// error, stays an ErrorValue instead of decaying to its message string.
type ErrorValue struct {
	Err error
}

func (ErrorValue) TypeName() string { return "error" }
func (ErrorValue) luaValue()        {}

// MultiValue is an ordered sequence of values, used for call arguments
// and return values. A missing trailing value and an explicit trailing
// nil are indistinguishable, matching Lua's own call semantics.
type MultiValue []Value

// Values builds a MultiValue from its arguments.
func Values(vs ...Value) MultiValue { return MultiValue(vs) }

// Get returns the i-th value (0-based), or Nil past the end.
func (mv MultiValue) Get(i int) Value {
	if i < 0 || i >= len(mv) {
		return Nil{}
	}
	return mv[i]
}

// Len returns the number of values.
func (mv MultiValue) Len() int { return len(mv) }

// ToLua is implemented by Go types that know how to convert themselves
// into a Lua value.
type ToLua interface {
	ToLua(l *Lua) (Value, error)
}

// FromLua is implemented by Go types that know how to populate
// themselves from a Lua value.
type FromLua interface {
	FromLua(l *Lua, v Value) error
}
