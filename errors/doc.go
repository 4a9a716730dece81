// Package errors provides the structured error types for the rlua embedding layer.
//
// Every fault that crosses the script/host boundary is categorized by Kind:
// script-level faults (runtime, syntax, memory, gc, coroutine), marshaling
// faults (to_lua_conversion, from_lua_conversion), and host-side faults
// surfaced through the boundary (callback, external).
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.KindFromLuaConversion).
//		Types("table", "integer").
//		Detail("expected integer index").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Runtime("attempt to index a nil value", traceback)
//	err := errors.CoroutineInactive()
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
