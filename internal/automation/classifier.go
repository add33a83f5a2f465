package automation

import (
	"animcancel/internal/hotkey"
	"animcancel/internal/input"
	"animcancel/internal/modifier"
)

// Classifier turns captured events into trigger press and release
// transitions. It never consumes or alters events.
type Classifier struct {
	ctx    *Context
	layout modifier.Layout
	spawn  func()

	// ignoreInitialRelease suppresses the first release after arming.
	// It is never set; releases are always honoured.
	ignoreInitialRelease bool
}

// NewClassifier creates a classifier. spawn is called once per successful
// workerActive false->true transition.
func NewClassifier(ctx *Context, layout modifier.Layout, spawn func()) *Classifier {
	return &Classifier{ctx: ctx, layout: layout, spawn: spawn}
}

// Handle classifies one event. It must not block.
func (c *Classifier) Handle(ev input.Event) {
	mods := c.layout.Compact(ev.Flags)
	c.ctx.observe(mods)

	trig := c.ctx.Trigger()
	switch trig.Kind {
	case hotkey.KindMouse:
		c.handleMouse(ev, trig, mods)
	case hotkey.KindKey:
		c.handleKey(ev, trig, mods)
	}
}

func (c *Classifier) handleMouse(ev input.Event, trig hotkey.Binding, mods modifier.Mask) {
	switch ev.Kind {
	case input.KindMousePress:
		// left never triggers; this also filters the worker's own clicks
		if ev.Button == input.ButtonLeft {
			return
		}
		if ev.Button == int(trig.Code) && mods.Matches(trig.Mask) {
			c.press()
		}
	case input.KindMouseRelease:
		if c.ignoreInitialRelease {
			return
		}
		if ev.Button == int(trig.Code) && ev.Button != input.ButtonLeft {
			c.release()
		}
	}
}

func (c *Classifier) handleKey(ev input.Event, trig hotkey.Binding, mods modifier.Mask) {
	switch ev.Kind {
	case input.KindKeyPress:
		if ev.KeyCode == trig.Code && mods.Matches(trig.Mask) {
			c.ctx.awaitingKeyUp.Store(true)
			c.press()
		}
	case input.KindKeyRelease:
		if !c.ctx.awaitingKeyUp.Load() {
			return
		}
		if ev.KeyCode != trig.Code && c.ctx.isEcho(ev.KeyCode) {
			return
		}
		c.ctx.awaitingKeyUp.Store(false)
		c.release()
	}
}

func (c *Classifier) press() {
	wasHeld := c.ctx.held.Swap(true)
	if c.ctx.workerActive.CompareAndSwap(false, true) {
		c.ctx.spawns.Add(1)
		c.spawn()
	}
	if !wasHeld {
		c.ctx.notify()
	}
}

func (c *Classifier) release() {
	if c.ctx.held.Swap(false) {
		c.ctx.notify()
	}
}
