package automation

import (
	"sync"
	"sync/atomic"
	"testing"

	"animcancel/internal/hotkey"
	"animcancel/internal/input"
	"animcancel/internal/input/inputtest"
	"animcancel/internal/modifier"
)

func newTestClassifier() (*Context, *Classifier, *atomic.Int32) {
	ac := NewContext()
	var spawned atomic.Int32
	cl := NewClassifier(ac, modifier.UIOHook, func() { spawned.Add(1) })
	return ac, cl, &spawned
}

func TestDefaultTrigger(t *testing.T) {
	ac := NewContext()
	if got := ac.Trigger(); got != hotkey.Mouse(input.ButtonMiddle, 0) {
		t.Errorf("Expected middle click default, got %+v", got)
	}
	if got := ac.RepeatInterval().Milliseconds(); got != DefaultIntervalMs {
		t.Errorf("Expected %dms default interval, got %dms", DefaultIntervalMs, got)
	}
}

func TestMousePressAndRelease(t *testing.T) {
	ac, cl, spawned := newTestClassifier()

	cl.Handle(inputtest.MousePress(input.ButtonMiddle, 0))
	if !ac.Held() {
		t.Error("Expected trigger to be held after press")
	}
	if spawned.Load() != 1 {
		t.Errorf("Expected 1 spawn, got %d", spawned.Load())
	}
	if !ac.WorkerActive() {
		t.Error("Expected workerActive after press")
	}

	// another button's release is not ours
	cl.Handle(inputtest.MouseRelease(input.ButtonRight))
	if !ac.Held() {
		t.Error("Expected trigger to stay held after unrelated release")
	}

	cl.Handle(inputtest.MouseRelease(input.ButtonMiddle))
	if ac.Held() {
		t.Error("Expected trigger released")
	}
}

func TestRepeatedPressSpawnsOnce(t *testing.T) {
	ac, cl, spawned := newTestClassifier()

	cl.Handle(inputtest.MousePress(input.ButtonMiddle, 0))
	cl.Handle(inputtest.MouseRelease(input.ButtonMiddle))
	cl.Handle(inputtest.MousePress(input.ButtonMiddle, 0))

	if spawned.Load() != 1 {
		t.Errorf("Expected 1 spawn while the worker is active, got %d", spawned.Load())
	}
	if ac.Spawns() != 1 {
		t.Errorf("Expected spawn counter 1, got %d", ac.Spawns())
	}
}

func TestConcurrentPressSpawnsOnce(t *testing.T) {
	_, cl, spawned := newTestClassifier()

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cl.Handle(inputtest.MousePress(input.ButtonMiddle, 0))
		}()
	}
	wg.Wait()

	if spawned.Load() != 1 {
		t.Errorf("Expected exactly 1 spawn, got %d", spawned.Load())
	}
}

func TestModifierMatching(t *testing.T) {
	tests := []struct {
		name string
		held modifier.Mask
		want bool
	}{
		{"exact", modifier.Control, true},
		{"extra option", modifier.Control | modifier.Option, true},
		{"extra shift", modifier.Control | modifier.Shift, false},
		{"none", 0, false},
	}
	for _, tt := range tests {
		ac, cl, _ := newTestClassifier()
		ac.ConfigureMouseTrigger(input.ButtonRight, modifier.Control)

		cl.Handle(inputtest.MousePress(input.ButtonRight, tt.held))
		if ac.Held() != tt.want {
			t.Errorf("%s: expected held=%v, got %v", tt.name, tt.want, ac.Held())
		}
	}
}

func TestLeftButtonNeverTriggers(t *testing.T) {
	ac, cl, spawned := newTestClassifier()
	ac.ConfigureMouseTrigger(-1, 0)

	if got := ac.Trigger().Button(); got != input.ButtonLeft {
		t.Fatalf("Expected negative button to clamp to 0, got %d", got)
	}

	cl.Handle(inputtest.MousePress(input.ButtonLeft, 0))
	if ac.Held() || spawned.Load() != 0 {
		t.Error("Expected left press to be ignored")
	}
}

func TestLeftReleaseDoesNotReleaseTrigger(t *testing.T) {
	ac, cl, _ := newTestClassifier()
	cl.Handle(inputtest.MousePress(input.ButtonMiddle, 0))

	// the worker's own click
	cl.Handle(inputtest.MousePress(input.ButtonLeft, 0))
	cl.Handle(inputtest.MouseRelease(input.ButtonLeft))
	if !ac.Held() {
		t.Error("Expected synthesized left click not to release the trigger")
	}
}

func TestModeSeparation(t *testing.T) {
	ac, cl, _ := newTestClassifier()
	f5, _ := hotkey.KeyCode("f5")

	// key events in mouse mode
	cl.Handle(inputtest.KeyPress(f5, 0))
	if ac.Held() {
		t.Error("Expected key press to be ignored in mouse mode")
	}

	ac.ConfigureKeyTrigger(f5, 0)
	cl.Handle(inputtest.MousePress(input.ButtonMiddle, 0))
	if ac.Held() {
		t.Error("Expected mouse press to be ignored in key mode")
	}
}

func TestKeyTrigger(t *testing.T) {
	ac, cl, spawned := newTestClassifier()
	f5, _ := hotkey.KeyCode("f5")
	q, _ := hotkey.KeyCode("q")
	ac.ConfigureKeyTrigger(f5, modifier.Shift)

	cl.Handle(inputtest.KeyPress(q, modifier.Shift))
	if ac.Held() {
		t.Fatal("Expected other key not to trigger")
	}

	cl.Handle(inputtest.KeyPress(f5, modifier.Shift|modifier.Option))
	if !ac.Held() || spawned.Load() != 1 {
		t.Fatalf("Expected key trigger held with one spawn, got held=%v spawns=%d", ac.Held(), spawned.Load())
	}

	// modifier changes while held are ignored
	cl.Handle(input.Event{Kind: input.KindFlagsChanged, KeyCode: 0x0038})
	if !ac.Held() {
		t.Error("Expected flags change not to release the trigger")
	}

	// any key release ends a held key trigger
	cl.Handle(inputtest.KeyRelease(q))
	if ac.Held() {
		t.Error("Expected key release to end the trigger")
	}

	// without a preceding press releases do nothing
	cl.Handle(inputtest.KeyRelease(f5))
	if ac.Held() {
		t.Error("Expected unarmed release to be ignored")
	}
}

func TestEchoKeysIgnored(t *testing.T) {
	ac, cl, _ := newTestClassifier()
	f5, _ := hotkey.KeyCode("f5")
	x, _ := hotkey.KeyCode("x")
	ac.ConfigureKeyTrigger(f5, 0)
	ac.SetEchoKeys(x, f5)

	cl.Handle(inputtest.KeyPress(f5, 0))
	cl.Handle(inputtest.KeyRelease(x))
	if !ac.Held() {
		t.Error("Expected the worker's own key release to be ignored")
	}

	// the trigger key itself always releases
	cl.Handle(inputtest.KeyRelease(f5))
	if ac.Held() {
		t.Error("Expected trigger key release to end the trigger")
	}
}

func TestRepeatIntervalClamp(t *testing.T) {
	ac := NewContext()
	tests := []struct{ in, want int }{
		{0, 1},
		{-20, 1},
		{1, 1},
		{250, 250},
		{500, 500},
		{10000, 500},
	}
	for _, tt := range tests {
		if got := ac.ConfigureRepeatIntervalMilliseconds(tt.in); got != tt.want {
			t.Errorf("Clamp(%d): expected %d, got %d", tt.in, tt.want, got)
		}
		if got := int(ac.RepeatInterval().Milliseconds()); got != tt.want {
			t.Errorf("RepeatInterval after %d: expected %dms, got %dms", tt.in, tt.want, got)
		}
	}
}

func TestObservedModifiers(t *testing.T) {
	ac, cl, _ := newTestClassifier()
	cl.Handle(input.Event{Kind: input.KindFlagsChanged, Flags: modifier.UIOHook.Expand(modifier.Option)})
	if got := ac.ObservedModifiers(); got != modifier.Option {
		t.Errorf("Expected opt, got %q", got)
	}
}

func TestReconfigureWhileHeldReleases(t *testing.T) {
	ac, cl, _ := newTestClassifier()

	cl.Handle(inputtest.MousePress(input.ButtonMiddle, 0))
	if !ac.Held() {
		t.Fatal("Expected trigger held after press")
	}

	// same binding again keeps the hold
	ac.ConfigureMouseTrigger(input.ButtonMiddle, 0)
	if !ac.Held() {
		t.Error("Expected identical binding not to release the trigger")
	}

	ac.ConfigureMouseTrigger(input.ButtonRight, 0)
	if ac.Held() {
		t.Error("Expected new binding to release the held trigger")
	}

	// the old button's release is no longer ours and must not re-arm anything
	cl.Handle(inputtest.MouseRelease(input.ButtonMiddle))
	if ac.Held() {
		t.Error("Expected trigger to stay released")
	}
}

func TestReconfigureKeyTriggerWhileHeld(t *testing.T) {
	ac, cl, _ := newTestClassifier()
	f5, _ := hotkey.KeyCode("f5")
	f6, _ := hotkey.KeyCode("f6")
	ac.ConfigureKeyTrigger(f5, 0)

	cl.Handle(inputtest.KeyPress(f5, 0))
	if !ac.Held() {
		t.Fatal("Expected key trigger held")
	}

	ac.ConfigureKeyTrigger(f6, 0)
	if ac.Held() {
		t.Error("Expected new key binding to release the trigger")
	}
	if ac.awaitingKeyUp.Load() {
		t.Error("Expected awaitingKeyUp cleared")
	}

	// a later key release does nothing; a press of the new key arms again
	cl.Handle(inputtest.KeyRelease(f5))
	cl.Handle(inputtest.KeyPress(f6, 0))
	if !ac.Held() {
		t.Error("Expected new key to arm the trigger")
	}
}
