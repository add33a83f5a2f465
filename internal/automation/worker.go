package automation

import (
	"log"
	"time"

	"animcancel/internal/modifier"
)

// Performer runs the scripted input of one worker iteration.
type Performer interface {
	Click()
	CancelSequence()
}

// DefaultSettle is the pause after each cancel sequence.
const DefaultSettle = 100 * time.Millisecond

type worker struct {
	ctx       *Context
	perf      Performer
	settle    time.Duration
	sleep     func(time.Duration)
	modifiers func() (modifier.Mask, bool)
}

// currentModifiers prefers a live system sample and falls back to the
// modifiers last seen by the classifier.
func (w *worker) currentModifiers() modifier.Mask {
	if w.modifiers != nil {
		if m, ok := w.modifiers(); ok {
			return m
		}
	}
	return w.ctx.ObservedModifiers()
}

// run repeats click, delay, cancel sequence and settle until the trigger is
// released or shutdown is requested. The in-flight iteration always finishes.
func (w *worker) run() {
	defer w.ctx.workers.Done()

	for {
		ok := w.loop()
		w.ctx.workerActive.Store(false)
		w.ctx.notify()

		// a press between the exit check and the store above lost its spawn
		// to this worker, so carry on for it
		if !ok || !w.ctx.held.Load() || w.ctx.shutdown.Load() {
			return
		}
		if !w.ctx.workerActive.CompareAndSwap(false, true) {
			return
		}
		w.ctx.notify()
	}
}

// loop runs iterations until the exit check passes. It reports false after a
// panic.
func (w *worker) loop() (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Automation: worker panic: %v", r)
			ok = false
		}
	}()

	for {
		w.perf.Click()

		delay := w.ctx.RepeatInterval()
		if w.currentModifiers().Has(modifier.Option) {
			delay *= 2
		}
		w.sleep(delay)

		w.perf.CancelSequence()
		w.sleep(w.settle)
		w.ctx.iterations.Add(1)

		if !w.ctx.held.Load() || w.ctx.shutdown.Load() {
			return true
		}
	}
}
