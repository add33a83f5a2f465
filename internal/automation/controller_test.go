package automation

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"animcancel/internal/action"
	"animcancel/internal/hotkey"
	"animcancel/internal/input"
	"animcancel/internal/input/inputtest"
	"animcancel/internal/modifier"
)

func fastTiming() action.Timing {
	return action.Timing{
		ClickHold: time.Millisecond,
		KeyHold:   time.Millisecond,
		KeyGap:    time.Millisecond,
	}
}

type harness struct {
	ac   *Context
	src  *inputtest.Source
	rec  *inputtest.Recorder
	ctrl *Controller
	errs chan error
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		ac:   NewContext(),
		src:  inputtest.NewSource(),
		rec:  &inputtest.Recorder{},
		errs: make(chan error, 1),
	}
	h.ac.ConfigureRepeatIntervalMilliseconds(5)
	opts.Source = h.src
	if opts.Performer == nil {
		opts.Performer = action.NewSynthesizer(h.rec, fastTiming())
	}
	if opts.Settle == 0 {
		opts.Settle = 5 * time.Millisecond
	}
	h.ctrl = NewController(h.ac, opts)
	return h
}

func (h *harness) run(t *testing.T) {
	t.Helper()
	go func() { h.errs <- h.ctrl.Run(context.Background()) }()
	waitFor(t, "capture start", h.src.Running)
}

func (h *harness) stop(t *testing.T) {
	t.Helper()
	h.ctrl.RequestStop()
	select {
	case err := <-h.errs:
		if err != nil {
			t.Errorf("Expected Run to return nil, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for Run to return")
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestEndToEndMouseTrigger(t *testing.T) {
	h := newHarness(t, Options{})
	h.run(t)

	h.src.Send(inputtest.MousePress(input.ButtonMiddle, 0))
	waitFor(t, "first iteration", func() bool { return h.rec.Len() >= 6 })

	want := []string{
		"mouse0 down", "mouse0 up",
		"key x down", "key x up", "key z down", "key z up",
	}
	if got := h.rec.Events()[:6]; !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}

	h.src.Send(inputtest.MouseRelease(input.ButtonMiddle))
	waitFor(t, "worker exit", func() bool { return !h.ac.WorkerActive() })

	n := h.rec.Len()
	if n%6 != 0 {
		t.Errorf("Expected only complete iterations, got %d events", n)
	}
	time.Sleep(30 * time.Millisecond)
	if h.rec.Len() != n {
		t.Errorf("Expected no synthesis after release, got %d more events", h.rec.Len()-n)
	}
	if h.ac.Spawns() != 1 {
		t.Errorf("Expected 1 worker spawn, got %d", h.ac.Spawns())
	}

	h.stop(t)
}

func TestRunTwiceReturnsAlreadyRunning(t *testing.T) {
	h := newHarness(t, Options{})
	h.run(t)

	if err := h.ctrl.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Expected ErrAlreadyRunning, got %v", err)
	}
	if err := h.ctrl.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Expected ErrAlreadyRunning from Start, got %v", err)
	}

	h.stop(t)
}

func TestPermissionDenied(t *testing.T) {
	var permitted atomic.Bool
	h := newHarness(t, Options{Permitted: permitted.Load})

	if err := h.ctrl.Run(context.Background()); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("Expected ErrPermissionDenied, got %v", err)
	}
	if starts, _, _ := h.src.Counts(); starts != 0 {
		t.Errorf("Expected capture not to start, got %d starts", starts)
	}
	if h.ctrl.Running() {
		t.Error("Expected controller to be idle after denial")
	}
	if err := h.ctrl.Start(); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Expected ErrPermissionDenied from Start, got %v", err)
	}

	// retry once granted
	permitted.Store(true)
	h.run(t)
	h.stop(t)
}

func TestCaptureStartFailure(t *testing.T) {
	h := newHarness(t, Options{})
	h.src.FailStart(errors.New("no display"))

	err := h.ctrl.Run(context.Background())
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Expected ErrPermissionDenied, got %v", err)
	}
}

func TestRequestStopIdempotent(t *testing.T) {
	h := newHarness(t, Options{})

	// before any Run: no effect on the next cycle
	h.ctrl.RequestStop()
	h.ctrl.RequestStop()

	h.run(t)
	if !h.ctrl.Running() {
		t.Fatal("Expected Run to proceed after an early stop request")
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.ctrl.RequestStop()
		}()
	}
	wg.Wait()
	h.stop(t)

	// after Run returned
	h.ctrl.RequestStop()
	if h.ctrl.Running() {
		t.Error("Expected controller to be stopped")
	}
	if _, stops, _ := h.src.Counts(); stops != 1 {
		t.Errorf("Expected capture stopped once, got %d", stops)
	}
}

func TestStopJoinsWorker(t *testing.T) {
	h := newHarness(t, Options{})
	h.ac.ConfigureRepeatIntervalMilliseconds(20)
	h.run(t)

	h.src.Send(inputtest.MousePress(input.ButtonMiddle, 0))
	waitFor(t, "worker start", func() bool { return h.rec.Len() > 0 })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.ctrl.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if h.ac.WorkerActive() {
		t.Error("Expected worker joined after Stop")
	}
	if h.ac.Held() {
		t.Error("Expected trigger cleared after Stop")
	}
	if h.src.Running() {
		t.Error("Expected capture stopped")
	}
	if n := h.rec.Len(); n%6 != 0 {
		t.Errorf("Expected the in-flight iteration to finish, got %d events", n)
	}
	if err := <-h.errs; err != nil {
		t.Errorf("Expected Run to return nil, got %v", err)
	}
}

func TestContextCancelStopsRun(t *testing.T) {
	h := newHarness(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() { h.errs <- h.ctrl.Run(ctx) }()
	waitFor(t, "capture start", h.src.Running)

	cancel()
	select {
	case err := <-h.errs:
		if err != nil {
			t.Errorf("Expected nil, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for Run to return")
	}
	if !h.ac.ShutdownRequested() {
		t.Error("Expected shutdown flag set")
	}
}

func TestCaptureDisabledIsReenabled(t *testing.T) {
	h := newHarness(t, Options{})
	h.run(t)

	h.src.Send(input.Event{Kind: input.KindCaptureDisabled})
	waitFor(t, "re-enable", func() bool {
		_, _, reenables := h.src.Counts()
		return reenables == 1
	})
	if !h.ctrl.Running() {
		t.Error("Expected controller to keep running")
	}

	h.stop(t)
}

func TestKillSwitch(t *testing.T) {
	h := newHarness(t, Options{})
	esc, _ := hotkey.KeyCode("esc")
	ks := hotkey.Key(esc, modifier.Control|modifier.Shift)
	h.ctrl.SetKillSwitch(&ks)
	h.run(t)

	// wrong modifiers
	h.src.Send(inputtest.KeyPress(esc, modifier.Control))
	h.src.Send(inputtest.KeyPress(esc, modifier.Control|modifier.Shift))

	select {
	case err := <-h.errs:
		if err != nil {
			t.Errorf("Expected nil, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected kill switch to end the run")
	}
	if got := h.ctrl.Status().KillSwitch; got != ks.String() {
		t.Errorf("Expected kill switch %q in status, got %q", ks.String(), got)
	}
}

func TestRunAgainAfterStop(t *testing.T) {
	h := newHarness(t, Options{})
	h.run(t)
	first := h.ctrl.Status().RunID
	h.stop(t)

	h.run(t)
	second := h.ctrl.Status().RunID
	if first == "" || first == second {
		t.Errorf("Expected a new run id per cycle, got %q then %q", first, second)
	}
	h.src.Send(inputtest.MousePress(input.ButtonMiddle, 0))
	waitFor(t, "worker in second cycle", func() bool { return h.rec.Len() >= 6 })
	h.stop(t)
}

func TestOnChangePublishesHeld(t *testing.T) {
	var mu sync.Mutex
	var held []bool
	h := newHarness(t, Options{OnChange: func(st Status) {
		mu.Lock()
		defer mu.Unlock()
		held = append(held, st.Held)
	}})
	h.run(t)

	h.src.Send(inputtest.MousePress(input.ButtonMiddle, 0))
	h.src.Send(inputtest.MouseRelease(input.ButtonMiddle))
	waitFor(t, "worker exit", func() bool { return h.ac.Spawns() == 1 && !h.ac.WorkerActive() })
	h.stop(t)

	mu.Lock()
	defer mu.Unlock()
	sawHeld := false
	for _, v := range held {
		sawHeld = sawHeld || v
	}
	if !sawHeld {
		t.Errorf("Expected a published held state, got %v", held)
	}
}

func TestStatusCounters(t *testing.T) {
	h := newHarness(t, Options{})
	h.run(t)
	h.src.Send(inputtest.MousePress(input.ButtonMiddle, 0))
	h.src.Send(inputtest.MouseRelease(input.ButtonMiddle))
	waitFor(t, "worker exit", func() bool { return h.ac.Spawns() == 1 && !h.ac.WorkerActive() })
	h.stop(t)

	st := h.ctrl.Status()
	if st.Running || st.Held || st.WorkerActive {
		t.Errorf("Expected idle status, got %+v", st)
	}
	if st.Iterations == 0 || st.Synthesis.Clicks != st.Iterations || st.Synthesis.Sequences != st.Iterations {
		t.Errorf("Expected matching iteration counters, got %+v", st)
	}
	if st.Trigger != "Middle Click" || st.IntervalMs != 5 {
		t.Errorf("Expected Middle Click at 5ms, got %q at %dms", st.Trigger, st.IntervalMs)
	}
}

type countingPerformer struct {
	clicks, sequences int
}

func (p *countingPerformer) Click()          { p.clicks++ }
func (p *countingPerformer) CancelSequence() { p.sequences++ }

func runSingleIteration(ac *Context, mods func() (modifier.Mask, bool)) []time.Duration {
	var slept []time.Duration
	w := &worker{
		ctx:       ac,
		perf:      &countingPerformer{},
		settle:    DefaultSettle,
		sleep:     func(d time.Duration) { slept = append(slept, d) },
		modifiers: mods,
	}
	ac.workerActive.Store(true)
	ac.workers.Add(1)
	w.run()
	return slept
}

func TestWorkerOptionDoublesDelay(t *testing.T) {
	ac := NewContext()
	ac.ConfigureRepeatIntervalMilliseconds(40)

	slept := runSingleIteration(ac, func() (modifier.Mask, bool) { return modifier.Option, true })
	want := []time.Duration{80 * time.Millisecond, DefaultSettle}
	if !reflect.DeepEqual(slept, want) {
		t.Errorf("Expected %v, got %v", want, slept)
	}
	if ac.WorkerActive() {
		t.Error("Expected worker to clear workerActive on exit")
	}

	slept = runSingleIteration(ac, func() (modifier.Mask, bool) { return modifier.Control, true })
	if slept[0] != 40*time.Millisecond {
		t.Errorf("Expected 40ms without option, got %v", slept[0])
	}
}

func TestWorkerFallsBackToObservedModifiers(t *testing.T) {
	ac := NewContext()
	ac.ConfigureRepeatIntervalMilliseconds(10)
	ac.observe(modifier.Option | modifier.Shift)

	slept := runSingleIteration(ac, func() (modifier.Mask, bool) { return 0, false })
	if slept[0] != 20*time.Millisecond {
		t.Errorf("Expected doubled delay from observed option, got %v", slept[0])
	}

	slept = runSingleIteration(ac, nil)
	if slept[0] != 20*time.Millisecond {
		t.Errorf("Expected doubled delay without a probe, got %v", slept[0])
	}
}

func TestWorkerLoopsWhileHeld(t *testing.T) {
	ac := NewContext()
	perf := &countingPerformer{}
	iterations := 0
	w := &worker{
		ctx:    ac,
		perf:   perf,
		settle: DefaultSettle,
		sleep: func(d time.Duration) {
			if d == DefaultSettle {
				iterations++
				if iterations == 3 {
					ac.held.Store(false)
				}
			}
		},
	}
	ac.held.Store(true)
	ac.workerActive.Store(true)
	ac.workers.Add(1)
	w.run()

	if perf.clicks != 3 || perf.sequences != 3 {
		t.Errorf("Expected 3 iterations, got %d clicks and %d sequences", perf.clicks, perf.sequences)
	}
	if ac.Iterations() != 3 {
		t.Errorf("Expected iteration counter 3, got %d", ac.Iterations())
	}
}

func TestReconfigureWhileHeldStopsWorker(t *testing.T) {
	h := newHarness(t, Options{})
	h.run(t)

	h.src.Send(inputtest.MousePress(input.ButtonMiddle, 0))
	waitFor(t, "worker start", func() bool { return h.rec.Len() > 0 })

	h.ac.ConfigureMouseTrigger(input.ButtonRight, 0)
	h.src.Send(inputtest.MouseRelease(input.ButtonMiddle))
	waitFor(t, "worker exit", func() bool { return !h.ac.WorkerActive() })

	if h.ac.Held() {
		t.Error("Expected trigger released after reconfiguration")
	}
	n := h.rec.Len()
	time.Sleep(30 * time.Millisecond)
	if h.rec.Len() != n {
		t.Errorf("Expected no synthesis after reconfiguration, got %d more events", h.rec.Len()-n)
	}

	h.src.Send(inputtest.MousePress(input.ButtonRight, 0))
	waitFor(t, "worker on new trigger", func() bool { return h.ac.Spawns() == 2 })
	h.stop(t)
}

func TestWorkerContinuesForPressDuringExit(t *testing.T) {
	ac := NewContext()
	perf := &countingPerformer{}
	settles := 0
	w := &worker{
		ctx:    ac,
		perf:   perf,
		settle: DefaultSettle,
		sleep: func(d time.Duration) {
			if d == DefaultSettle {
				settles++
				ac.held.Store(false)
			}
		},
	}

	// a press whose spawn lost to this worker: held set after the exit check
	pressed := false
	ac.setOnChange(func() {
		if !pressed && !ac.WorkerActive() {
			pressed = true
			ac.held.Store(true)
		}
	})

	ac.held.Store(true)
	ac.workerActive.Store(true)
	ac.workers.Add(1)
	w.run()

	if perf.clicks != 2 {
		t.Errorf("Expected the worker to run again for the late press, got %d clicks", perf.clicks)
	}
	if ac.WorkerActive() {
		t.Error("Expected workerActive cleared on final exit")
	}
}

func TestWorkerPanicDoesNotRearm(t *testing.T) {
	ac := NewContext()
	ac.held.Store(true)
	ac.workerActive.Store(true)
	ac.workers.Add(1)

	w := &worker{
		ctx:    ac,
		perf:   panicPerformer{},
		settle: DefaultSettle,
		sleep:  func(time.Duration) {},
	}
	w.run()

	if ac.WorkerActive() {
		t.Error("Expected workerActive cleared after panic")
	}
}

type panicPerformer struct{}

func (panicPerformer) Click()          { panic("click failed") }
func (panicPerformer) CancelSequence() {}
