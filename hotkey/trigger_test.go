package hotkey

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTriggerFiresPerPress(t *testing.T) {
	fk := NewFake()
	var fires atomic.Int32
	tr := NewTrigger(fk, 10*time.Millisecond, func() { fires.Add(1) })
	if err := tr.Start(); err != nil {
		t.Fatal(err)
	}
	defer tr.Stop()

	for i := 0; i < 3; i++ {
		fk.SimKeydown()
		fk.SimKeyup()
		time.Sleep(30 * time.Millisecond)
	}
	if got := fires.Load(); got != 3 {
		t.Errorf("fires = %d, want 3", got)
	}
}

func TestTriggerDebounce(t *testing.T) {
	fk := NewFake()
	var fires atomic.Int32
	tr := NewTrigger(fk, 300*time.Millisecond, func() { fires.Add(1) })
	if err := tr.Start(); err != nil {
		t.Fatal(err)
	}
	defer tr.Stop()

	fk.SimKeydown()
	time.Sleep(20 * time.Millisecond)
	fk.SimKeydown() // repeat within the debounce window
	time.Sleep(50 * time.Millisecond)

	if got := fires.Load(); got != 1 {
		t.Errorf("fires = %d, want 1", got)
	}
}

func TestTriggerStopsFiring(t *testing.T) {
	fk := NewFake()
	var fires atomic.Int32
	tr := NewTrigger(fk, 10*time.Millisecond, func() { fires.Add(1) })
	if err := tr.Start(); err != nil {
		t.Fatal(err)
	}
	tr.Stop()
	tr.Stop() // idempotent

	fk.SimKeydown()
	time.Sleep(30 * time.Millisecond)
	if got := fires.Load(); got != 0 {
		t.Errorf("fires after stop = %d, want 0", got)
	}
}

func TestParseCombo(t *testing.T) {
	c, err := ParseCombo("ctrl+shift+space")
	if err != nil {
		t.Fatal(err)
	}
	if !c.Ctrl || !c.Shift || c.Alt || c.Key != "space" {
		t.Errorf("parsed %+v", c)
	}
	if c.String() != "ctrl+shift+space" {
		t.Errorf("String() = %q", c.String())
	}

	if _, err := ParseCombo("ctrl+alt+d"); err != nil {
		t.Errorf("ctrl+alt+d should parse: %v", err)
	}
	for _, bad := range []string{"space", "ctrl+", "ctrl+a+b", "ctrl+escape", ""} {
		if _, err := ParseCombo(bad); err == nil {
			t.Errorf("ParseCombo(%q) should fail", bad)
		}
	}
}
