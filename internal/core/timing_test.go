package core

import (
	"testing"
	"time"
)

func TestTiming(t *testing.T) {
	timing := NewTiming()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	timing.now = func() time.Time { return now }

	timing.Start("render")
	now = now.Add(250 * time.Millisecond)

	d, ok := timing.End("render")
	if !ok {
		t.Fatal("expected running timer")
	}
	if d != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %v", d)
	}

	if _, ok := timing.End("render"); ok {
		t.Error("expected second End to report false")
	}
	if _, ok := timing.End("never"); ok {
		t.Error("expected unknown timer to report false")
	}
}
