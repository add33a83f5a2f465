// Package inputtest provides in-memory capture sources and injectors for tests.
package inputtest

import (
	"errors"
	"fmt"
	"sync"

	"animcancel/internal/input"
	"animcancel/internal/modifier"
)

// Source is a capture source fed by Send.
type Source struct {
	mu        sync.Mutex
	events    chan input.Event
	running   bool
	starts    int
	stops     int
	reenables int
	startErr  error
}

// NewSource creates a source with a buffered event channel.
func NewSource() *Source {
	return &Source{events: make(chan input.Event, 64)}
}

// FailStart makes the next Start calls return err.
func (s *Source) FailStart(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startErr = err
}

func (s *Source) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.running = true
	s.starts++
	return nil
}

func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.stops++
	}
	s.running = false
	return nil
}

func (s *Source) Reenable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return input.ErrNotRunning
	}
	s.reenables++
	return nil
}

func (s *Source) Events() <-chan input.Event { return s.events }

func (s *Source) Layout() modifier.Layout { return modifier.UIOHook }

// Send queues an event for the consumer.
func (s *Source) Send(ev input.Event) {
	s.events <- ev
}

// Running reports whether the source is started.
func (s *Source) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Counts returns how many times Start, Stop and Reenable took effect.
func (s *Source) Counts() (starts, stops, reenables int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts, s.stops, s.reenables
}

// MousePress builds a mouse press event with modifiers in the uiohook layout.
func MousePress(button int, mods modifier.Mask) input.Event {
	return input.Event{Kind: input.KindMousePress, Button: button, Flags: modifier.UIOHook.Expand(mods)}
}

// MouseRelease builds a mouse release event.
func MouseRelease(button int) input.Event {
	return input.Event{Kind: input.KindMouseRelease, Button: button}
}

// KeyPress builds a key press event with modifiers in the uiohook layout.
func KeyPress(code uint16, mods modifier.Mask) input.Event {
	return input.Event{Kind: input.KindKeyPress, Button: -1, KeyCode: code, Flags: modifier.UIOHook.Expand(mods)}
}

// KeyRelease builds a key release event.
func KeyRelease(code uint16) input.Event {
	return input.Event{Kind: input.KindKeyRelease, Button: -1, KeyCode: code}
}

// ErrInjected is returned by a failing Recorder.
var ErrInjected = errors.New("inputtest: injection failed")

// Recorder is an Injector that records every synthesized event as a string
// such as "mouse0 down" or "key x up".
type Recorder struct {
	mu     sync.Mutex
	events []string
	fail   bool
}

// FailAll makes every injection return ErrInjected (still recorded).
func (r *Recorder) FailAll(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = fail
}

func (r *Recorder) MouseButton(button int, pressed bool) error {
	return r.record(fmt.Sprintf("mouse%d %s", button, direction(pressed)))
}

func (r *Recorder) Key(name string, pressed bool) error {
	return r.record(fmt.Sprintf("key %s %s", name, direction(pressed)))
}

func (r *Recorder) record(s string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, s)
	if r.fail {
		return ErrInjected
	}
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func direction(pressed bool) string {
	if pressed {
		return "down"
	}
	return "up"
}
