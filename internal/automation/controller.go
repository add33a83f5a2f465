package automation

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"animcancel/internal/action"
	"animcancel/internal/hotkey"
	"animcancel/internal/input"
	"animcancel/internal/modifier"
)

var (
	// ErrAlreadyRunning is returned by Run while another Run is in progress.
	ErrAlreadyRunning = errors.New("automation: already running")
	// ErrPermissionDenied is returned when global input capture cannot be
	// established. The caller may retry once permission is granted.
	ErrPermissionDenied = errors.New("automation: input capture not permitted")
)

// Options wires a Controller to its collaborators.
type Options struct {
	// Source delivers captured input. Required.
	Source input.Source
	// Performer synthesizes each iteration. Required.
	Performer Performer
	// Permitted probes capture permission; nil means always permitted.
	Permitted func() bool
	// Modifiers samples the held modifiers for the Option slowdown; nil or a
	// false second result falls back to the modifiers seen on captured events.
	Modifiers func() (modifier.Mask, bool)
	// Settle is the pause after each cancel sequence (DefaultSettle when zero).
	Settle time.Duration
	// Sleep replaces time.Sleep in the worker.
	Sleep func(time.Duration)
	// OnChange receives a snapshot after each state change. It is called from
	// the capture path and must not block.
	OnChange func(Status)
}

// Status is a snapshot of the automation state
type Status struct {
	RunID        string       `json:"run_id,omitempty"`
	Running      bool         `json:"running"`
	Held         bool         `json:"held"`
	WorkerActive bool         `json:"worker_active"`
	Trigger      string       `json:"trigger"`
	KillSwitch   string       `json:"kill_switch,omitempty"`
	IntervalMs   int          `json:"interval_ms"`
	WorkerSpawns uint64       `json:"worker_spawns"`
	Iterations   uint64       `json:"iterations"`
	Synthesis    action.Stats `json:"synthesis"`
}

// Controller owns the capture lifecycle of one Context.
type Controller struct {
	ac         *Context
	opts       Options
	classifier *Classifier
	killSwitch atomic.Pointer[hotkey.Binding]

	running atomic.Bool

	mu       sync.Mutex
	stop     chan struct{}
	stopOnce *sync.Once
	done     chan struct{}
	runID    string
}

// NewController creates a controller for ac.
func NewController(ac *Context, opts Options) *Controller {
	if opts.Settle == 0 {
		opts.Settle = DefaultSettle
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	c := &Controller{ac: ac, opts: opts}
	c.classifier = NewClassifier(ac, opts.Source.Layout(), c.spawnWorker)
	ac.setOnChange(c.publish)
	return c
}

// Context returns the shared automation state.
func (c *Controller) Context() *Context {
	return c.ac
}

// SetKillSwitch sets a binding that stops the run cycle when pressed; nil
// disables it.
func (c *Controller) SetKillSwitch(b *hotkey.Binding) {
	if b == nil {
		c.killSwitch.Store(nil)
		return
	}
	cp := *b
	c.killSwitch.Store(&cp)
}

// IsCapturePermitted reports whether global input capture is allowed.
func (c *Controller) IsCapturePermitted() bool {
	if c.opts.Permitted == nil {
		return true
	}
	return c.opts.Permitted()
}

// Running reports whether Run is in progress.
func (c *Controller) Running() bool {
	return c.running.Load()
}

// Run captures input and drives the trigger state machine until RequestStop is
// called or ctx is done. It blocks; a concurrent second call returns
// ErrAlreadyRunning. Stop requests made before Run starts are discarded.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		log.Println("Automation: Run called while already running")
		return ErrAlreadyRunning
	}

	stop, done, runID := c.beginCycle()
	defer func() {
		c.running.Store(false)
		close(done)
		c.publish()
	}()

	if !c.IsCapturePermitted() {
		log.Println("Automation: input capture not permitted; grant accessibility/input monitoring access and retry")
		return ErrPermissionDenied
	}

	src := c.opts.Source
	drain(src.Events())
	if err := src.Start(); err != nil {
		log.Printf("Automation: failed to start capture: %v", err)
		return errors.Join(ErrPermissionDenied, err)
	}
	log.Printf("Automation: run %s started (trigger %s, interval %s)", runID, c.ac.Trigger(), c.ac.RepeatInterval())
	c.publish()

	events := src.Events()
loop:
	for {
		select {
		case <-stop:
			break loop
		case <-ctx.Done():
			c.RequestStop()
			break loop
		case ev, ok := <-events:
			if !ok {
				log.Println("Automation: capture stream closed")
				break loop
			}
			c.dispatch(ev)
		}
	}

	c.teardown()
	log.Printf("Automation: run %s stopped", runID)
	return nil
}

func (c *Controller) beginCycle() (stop, done chan struct{}, runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ac.shutdown.Store(false)
	c.stop = make(chan struct{})
	c.stopOnce = new(sync.Once)
	c.done = make(chan struct{})
	c.runID = uuid.NewString()
	return c.stop, c.done, c.runID
}

func (c *Controller) dispatch(ev input.Event) {
	if ev.Kind == input.KindCaptureDisabled {
		log.Println("Automation: capture disabled by the system, re-enabling")
		if err := c.opts.Source.Reenable(); err != nil {
			log.Printf("Automation: re-enable failed: %v", err)
		}
		return
	}

	if ks := c.killSwitch.Load(); ks != nil && ks.MatchesPress(ev, c.opts.Source.Layout()) {
		log.Printf("Automation: kill switch %s pressed", ks)
		c.RequestStop()
		return
	}

	c.classifier.Handle(ev)
}

func (c *Controller) spawnWorker() {
	c.ac.workers.Add(1)
	w := &worker{
		ctx:       c.ac,
		perf:      c.opts.Performer,
		settle:    c.opts.Settle,
		sleep:     c.opts.Sleep,
		modifiers: c.opts.Modifiers,
	}
	go w.run()
}

// teardown stops capture, releases the trigger and joins the worker.
func (c *Controller) teardown() {
	if err := c.opts.Source.Stop(); err != nil {
		log.Printf("Automation: failed to stop capture: %v", err)
	}
	c.ac.shutdown.Store(true)
	c.ac.awaitingKeyUp.Store(false)
	if c.ac.held.Swap(false) {
		c.ac.notify()
	}
	c.ac.workers.Wait()
}

// RequestStop asks the current run cycle to end. It is safe to call from any
// goroutine and any number of times.
func (c *Controller) RequestStop() {
	c.ac.shutdown.Store(true)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		stop := c.stop
		c.stopOnce.Do(func() { close(stop) })
	}
}

// Start runs Run on its own goroutine after checking that it can start.
func (c *Controller) Start() error {
	if c.Running() {
		return ErrAlreadyRunning
	}
	if !c.IsCapturePermitted() {
		return ErrPermissionDenied
	}
	go func() {
		if err := c.Run(context.Background()); err != nil && !errors.Is(err, ErrAlreadyRunning) {
			log.Printf("Automation: run failed: %v", err)
		}
	}()
	return nil
}

// Stop requests a stop and waits for the run cycle to finish.
func (c *Controller) Stop(ctx context.Context) error {
	c.RequestStop()

	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a snapshot of the current state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	runID := c.runID
	c.mu.Unlock()

	st := Status{
		RunID:        runID,
		Running:      c.Running(),
		Held:         c.ac.Held(),
		WorkerActive: c.ac.WorkerActive(),
		Trigger:      c.ac.Trigger().String(),
		IntervalMs:   int(c.ac.RepeatInterval() / time.Millisecond),
		WorkerSpawns: c.ac.Spawns(),
		Iterations:   c.ac.Iterations(),
	}
	if ks := c.killSwitch.Load(); ks != nil {
		st.KillSwitch = ks.String()
	}
	if s, ok := c.opts.Performer.(interface{ Stats() action.Stats }); ok {
		st.Synthesis = s.Stats()
	}
	return st
}

func (c *Controller) publish() {
	if c.opts.OnChange != nil {
		c.opts.OnChange(c.Status())
	}
}

func drain(ch <-chan input.Event) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
