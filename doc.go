// Package rlua is a safe embedding layer over a pure Go Lua 5.3 engine.
//
// The package wraps the raw engine behind a small set of host-facing
// handle types (Table, Function, Thread, AnyUserData) and guarantees
// three things the raw API does not:
//
//   - Stack discipline. Every operation leaves the engine stack exactly
//     as deep as it found it. Violations are engine corruption and abort
//     the process rather than limp along.
//
//   - Handle validity. Engine values held by the host are pinned in the
//     engine registry for as long as the handle lives, so they can never
//     be collected out from under Go code. Handles are bound to the
//     context that created them and cannot cross into another one.
//
//   - Error and panic fidelity. Script errors surface as structured
//     *errors.Error values, host errors raised inside callbacks round
//     trip through the engine without being flattened to strings, and a
//     Go panic inside a callback resurfaces as the same panic at the
//     host boundary instead of being swallowed by a script level pcall.
//
// A Lua context is not safe for concurrent use. One goroutine drives it
// at a time; coroutines are cooperative and keep that discipline.
package rlua
