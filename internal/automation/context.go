// Package automation detects the configured trigger in captured input and runs
// the repeating click-and-cancel worker while the trigger is held.
package automation

import (
	"sync"
	"sync/atomic"
	"time"

	"animcancel/internal/hotkey"
	"animcancel/internal/modifier"
)

// Repeat interval bounds in milliseconds.
const (
	MinIntervalMs     = 1
	MaxIntervalMs     = 500
	DefaultIntervalMs = 200
)

// Context is the state shared by the classifier, the worker and the
// controller. All fields are safe for concurrent use.
type Context struct {
	trigger    atomic.Pointer[hotkey.Binding]
	intervalMs atomic.Int64

	held          atomic.Bool
	workerActive  atomic.Bool
	awaitingKeyUp atomic.Bool
	shutdown      atomic.Bool

	// modifiers last seen on a captured event
	observedMods atomic.Uint32
	// echo holds key codes the worker synthesizes itself
	echo atomic.Pointer[map[uint16]bool]

	workers    sync.WaitGroup
	spawns     atomic.Uint64
	iterations atomic.Uint64

	onChange atomic.Pointer[func()]
}

// NewContext returns a context with the default trigger and interval.
func NewContext() *Context {
	c := &Context{}
	c.SetTrigger(hotkey.Default())
	c.intervalMs.Store(DefaultIntervalMs)
	empty := map[uint16]bool{}
	c.echo.Store(&empty)
	return c
}

// ConfigureRepeatIntervalMilliseconds sets the worker cadence, clamped to
// [MinIntervalMs, MaxIntervalMs]. It returns the value stored.
func (c *Context) ConfigureRepeatIntervalMilliseconds(ms int) int {
	if ms < MinIntervalMs {
		ms = MinIntervalMs
	}
	if ms > MaxIntervalMs {
		ms = MaxIntervalMs
	}
	c.intervalMs.Store(int64(ms))
	return ms
}

// RepeatInterval returns the current cadence.
func (c *Context) RepeatInterval() time.Duration {
	return time.Duration(c.intervalMs.Load()) * time.Millisecond
}

// ConfigureMouseTrigger replaces the trigger with a mouse button. Negative
// indexes clamp to 0; button 0 (left) is stored but never fires.
func (c *Context) ConfigureMouseTrigger(button int, mask modifier.Mask) {
	c.SetTrigger(hotkey.Mouse(button, mask))
}

// ConfigureKeyTrigger replaces the trigger with a key.
func (c *Context) ConfigureKeyTrigger(code uint16, mask modifier.Mask) {
	c.SetTrigger(hotkey.Key(code, mask))
}

// SetTrigger replaces the whole trigger configuration at once. A different
// binding releases a held trigger, since the old button or key can no longer
// match a release.
func (c *Context) SetTrigger(b hotkey.Binding) {
	old := c.trigger.Swap(&b)
	if old == nil || *old == b {
		return
	}
	c.awaitingKeyUp.Store(false)
	if c.held.Swap(false) {
		c.notify()
	}
}

// Trigger returns the current trigger configuration.
func (c *Context) Trigger() hotkey.Binding {
	return *c.trigger.Load()
}

// SetEchoKeys registers the key codes the worker synthesizes. Their releases
// never end a held key trigger.
func (c *Context) SetEchoKeys(codes ...uint16) {
	m := make(map[uint16]bool, len(codes))
	for _, code := range codes {
		m[code] = true
	}
	c.echo.Store(&m)
}

func (c *Context) isEcho(code uint16) bool {
	return (*c.echo.Load())[code]
}

// Held reports whether the trigger is currently held.
func (c *Context) Held() bool { return c.held.Load() }

// WorkerActive reports whether a worker is running.
func (c *Context) WorkerActive() bool { return c.workerActive.Load() }

// ShutdownRequested reports whether the current run cycle was asked to stop.
func (c *Context) ShutdownRequested() bool { return c.shutdown.Load() }

// ObservedModifiers returns the modifiers of the last captured event.
func (c *Context) ObservedModifiers() modifier.Mask {
	return modifier.Mask(c.observedMods.Load())
}

func (c *Context) observe(m modifier.Mask) {
	c.observedMods.Store(uint32(m))
}

// Spawns returns how many workers have been started.
func (c *Context) Spawns() uint64 { return c.spawns.Load() }

// Iterations returns how many worker loop iterations completed.
func (c *Context) Iterations() uint64 { return c.iterations.Load() }

// setOnChange installs the state change hook.
func (c *Context) setOnChange(fn func()) {
	if fn == nil {
		c.onChange.Store(nil)
		return
	}
	c.onChange.Store(&fn)
}

func (c *Context) notify() {
	if fn := c.onChange.Load(); fn != nil {
		(*fn)()
	}
}
