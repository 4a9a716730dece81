package errors

import (
	"fmt"
	"strings"
)

// Kind categorizes the error.
type Kind string

const (
	// KindRuntime is a script-raised or script-propagated runtime fault.
	// The error carries the script-visible value (stringified) and, when
	// available, a traceback.
	KindRuntime Kind = "runtime"

	// KindSyntax means a chunk failed to compile. Incomplete reports
	// whether more input could have completed the chunk.
	KindSyntax Kind = "syntax"

	// KindMemory is an out-of-memory fault reported by the engine
	// allocator. A pure Go engine never signals one (allocation failure
	// is a process-level fault); the kind exists so embedders matching
	// on it stay source-compatible across engines.
	KindMemory Kind = "memory"

	// KindGC is an error internal to collection. Unused for the same
	// reason as KindMemory: collection belongs to the Go runtime here.
	KindGC Kind = "gc"

	// KindCoroutine is an error in a coroutine status transition.
	KindCoroutine Kind = "coroutine"

	// KindCoroutineInactive means resume was attempted on a finished or
	// errored coroutine.
	KindCoroutineInactive Kind = "coroutine_inactive"

	// KindExternal is a host error value that passed through the script
	// boundary and round-tripped back to the host.
	KindExternal Kind = "external"

	// KindCallback means a host callback returned an error or panicked.
	KindCallback Kind = "callback"

	// KindToLuaConversion is a value shape mismatch while converting a host
	// value into a script value.
	KindToLuaConversion Kind = "to_lua_conversion"

	// KindFromLuaConversion is a value shape mismatch while converting a
	// script value into a host value.
	KindFromLuaConversion Kind = "from_lua_conversion"
)

// Error is the structured error type used throughout the embedding layer.
type Error struct {
	Cause      error
	Kind       Kind
	Detail     string
	Traceback  string
	From       string // observed type name, for conversion errors
	To         string // expected type name, for conversion errors
	Incomplete bool   // syntax: the chunk ended before the grammar did
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Kind))
	b.WriteByte(']')

	if e.From != "" || e.To != "" {
		b.WriteByte(' ')
		if e.From != "" && e.To != "" {
			b.WriteString(e.From)
			b.WriteString(" -> ")
			b.WriteString(e.To)
		} else if e.From != "" {
			b.WriteString("from ")
			b.WriteString(e.From)
		} else {
			b.WriteString("to ")
			b.WriteString(e.To)
		}
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	if e.Traceback != "" {
		b.WriteString("\nstack traceback:")
		b.WriteString(e.Traceback)
	}

	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. Two *Error values match on
// Kind alone, so sentinel comparisons like errors.Is(err,
// errors.CoroutineInactive()) work regardless of message content.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction.
type Builder struct {
	err Error
}

// New creates a new error builder.
func New(kind Kind) *Builder {
	return &Builder{err: Error{Kind: kind}}
}

// Types sets the observed and expected type names.
func (b *Builder) Types(from, to string) *Builder {
	b.err.From = from
	b.err.To = to
	return b
}

// Cause sets the underlying error.
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Traceback attaches a script call-stack traceback.
func (b *Builder) Traceback(tb string) *Builder {
	b.err.Traceback = tb
	return b
}

// Incomplete marks a syntax error as truncated input.
func (b *Builder) Incomplete(v bool) *Builder {
	b.err.Incomplete = v
	return b
}

// Detail sets the human-readable detail message.
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error.
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Runtime creates a script runtime error with an optional traceback.
func Runtime(msg, traceback string) *Error {
	return &Error{Kind: KindRuntime, Detail: msg, Traceback: traceback}
}

// Syntax creates a compile error. incomplete reports whether the chunk ended
// before the grammar did (useful for REPL continuation prompts).
func Syntax(msg string, incomplete bool) *Error {
	return &Error{Kind: KindSyntax, Detail: msg, Incomplete: incomplete}
}

// Memory creates an engine allocator failure error. No code path in
// this package produces one; see KindMemory.
func Memory(msg string) *Error {
	return &Error{Kind: KindMemory, Detail: msg}
}

// GC creates a collection-internal error. No code path in this package
// produces one; see KindGC.
func GC(msg string, cause error) *Error {
	return &Error{Kind: KindGC, Detail: msg, Cause: cause}
}

// Coroutine creates a coroutine status-transition error.
func Coroutine(msg string) *Error {
	return &Error{Kind: KindCoroutine, Detail: msg}
}

// CoroutineInactive creates the error returned when resuming a finished or
// errored coroutine.
func CoroutineInactive() *Error {
	return &Error{Kind: KindCoroutineInactive, Detail: "cannot resume dead coroutine"}
}

// External wraps a host error that round-tripped through the script boundary.
func External(cause error) *Error {
	return &Error{Kind: KindExternal, Cause: cause}
}

// Callback wraps an error returned by a host callback.
func Callback(cause error) *Error {
	return &Error{Kind: KindCallback, Detail: "callback failed", Cause: cause}
}

// CallbackReentry creates the error raised when a callback is invoked while
// it is already executing.
func CallbackReentry() *Error {
	return &Error{
		Kind:   KindCallback,
		Detail: "recursive callback invocation would alias its captured state",
	}
}

// ToLuaConversion creates a host-to-script conversion error.
func ToLuaConversion(from, to, msg string) *Error {
	return &Error{Kind: KindToLuaConversion, From: from, To: to, Detail: msg}
}

// FromLuaConversion creates a script-to-host conversion error.
func FromLuaConversion(from, to, msg string) *Error {
	return &Error{Kind: KindFromLuaConversion, From: from, To: to, Detail: msg}
}
