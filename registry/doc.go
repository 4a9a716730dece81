// Package registry provides host-side bookkeeping for engine registry pins.
//
// A pin roots an otherwise-collectible engine value in the engine's persistent
// registry table. The engine side of a pin is a table entry keyed by an
// integer slot id; this package owns the slot ids: allocation with free-list
// reuse, live-pin accounting for leak detection, and optional payload storage
// for pins that carry a host object (userdata) whose destructor must run at
// release or teardown.
//
// The arena never touches the engine itself. The embedding layer performs the
// registry table reads and writes and consults the arena only for ids and
// lifecycle accounting, so the arena stays a plain data structure that is
// trivially testable in isolation.
package registry
