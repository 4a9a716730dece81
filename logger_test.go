package rlua

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestPinEventsReachLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	l := newTestContext(t)

	tbl, err := l.CreateTable()
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if n := logs.FilterMessage("pinned").Len(); n == 0 {
		t.Fatal("pin event did not reach the logger")
	}

	tbl.Release()
	if n := logs.FilterMessage("pin released").Len(); n == 0 {
		t.Fatal("release event did not reach the logger")
	}
}

func TestCloseReportsLeakedPins(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	l, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := l.CreateTable(); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	l.Close()
	if n := logs.FilterMessage("releasing pins left live at close").Len(); n != 1 {
		t.Fatalf("leak report logged %d times, want 1", n)
	}
	if n := logs.FilterMessage("pin still live at close").Len(); n == 0 {
		t.Fatal("leaked pin missing from the close report")
	}
}
