package rlua

import (
	"go.uber.org/zap"
)

// depth reports how many items the host currently has on the engine
// stack. Host code always runs in the root call frame, so the frame
// relative item count is the whole host-visible stack.
func (m *mainState) depth() int {
	return m.l.AbsIndex(-1)
}

// stackGuard runs op and verifies that it changed the engine stack
// depth by exactly want. A mismatch means the engine stack is corrupt;
// there is no way to continue safely, so the process aborts.
//
// The check runs on normal return only. A panic unwinding through the
// guard is resolved at the enclosing protected call boundary, which
// restores the stack wholesale before control returns to host code.
func (m *mainState) stackGuard(want int, op func()) {
	before := m.depth()
	op()
	m.checkBalance(before, want)
}

// stackErrGuard is stackGuard for fallible operations. The depth must
// come out right on the error path too: an operation that fails is
// still required to leave the stack as it found it.
func (m *mainState) stackErrGuard(want int, op func() error) error {
	before := m.depth()
	err := op()
	m.checkBalance(before, want)
	return err
}

func (m *mainState) checkBalance(before, want int) {
	after := m.depth()
	if after != before+want {
		Logger().Fatal("engine stack depth invariant violated",
			zap.Int("before", before),
			zap.Int("after", after),
			zap.Int("want", want))
	}
}
