package input

import (
	"log"
	"sync"

	hook "github.com/robotn/gohook"

	"animcancel/internal/modifier"
)

// libuiohook virtual key codes of the modifier keys.
var modifierKeyCodes = map[uint16]bool{
	0x002A: true, // shift left
	0x0036: true, // shift right
	0x001D: true, // control left
	0x0E1D: true, // control right
	0x0038: true, // alt left
	0x0E38: true, // alt right
	0x0E5B: true, // meta left
	0x0E5C: true, // meta right
	0x003A: true, // caps lock
}

// IsModifierKey reports whether a key code belongs to a modifier key.
func IsModifierKey(code uint16) bool {
	return modifierKeyCodes[code]
}

// HookSource captures global input through gohook (libuiohook).
type HookSource struct {
	mu      sync.Mutex
	running bool
	events  chan Event
	quit    chan struct{}

	start func() chan hook.Event
	end   func()
}

// NewHookSource creates a gohook backed capture source
func NewHookSource() *HookSource {
	return &HookSource{
		events: make(chan Event, 256),
		start:  hook.Start,
		end:    hook.End,
	}
}

// Layout returns the libuiohook modifier layout.
func (s *HookSource) Layout() modifier.Layout {
	return modifier.UIOHook
}

// Events returns the translated event stream. The channel stays open across
// Start/Stop cycles.
func (s *HookSource) Events() <-chan Event {
	return s.events
}

// Start installs the global hook.
func (s *HookSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	s.startLocked()
	s.running = true
	log.Println("Input: global hook started")
	return nil
}

func (s *HookSource) startLocked() {
	s.quit = make(chan struct{})
	raw := s.start()
	go s.pump(raw, s.quit)
}

// Stop removes the global hook. Safe to call when not running.
func (s *HookSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	close(s.quit)
	s.end()
	log.Println("Input: global hook stopped")
	return nil
}

// Reenable tears the hook down and installs it again.
func (s *HookSource) Reenable() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrNotRunning
	}
	close(s.quit)
	s.end()
	s.startLocked()
	log.Println("Input: global hook re-enabled")
	return nil
}

func (s *HookSource) pump(raw chan hook.Event, quit chan struct{}) {
	for {
		select {
		case <-quit:
			return
		case ev, ok := <-raw:
			if !ok {
				return
			}
			out, ok := translate(ev)
			if !ok {
				continue
			}
			select {
			case s.events <- out:
			case <-quit:
				return
			default:
				log.Printf("Input: event buffer full, dropping %s", out.Kind)
			}
		}
	}
}

// translate maps a libuiohook event onto an Event. Typed keys, clicks,
// movement and wheel events are dropped.
func translate(ev hook.Event) (Event, bool) {
	out := Event{
		Button:  -1,
		KeyCode: ev.Keycode,
		Flags:   uint64(ev.Mask),
		Time:    ev.When,
	}

	switch ev.Kind {
	case hook.KeyHold:
		out.Kind = KindKeyPress
	case hook.KeyUp:
		out.Kind = KindKeyRelease
	case hook.MouseHold:
		out.Kind = KindMousePress
	case hook.MouseDown:
		out.Kind = KindMouseRelease
	case hook.HookDisabled:
		out.Kind = KindCaptureDisabled
	default:
		return Event{}, false
	}

	switch out.Kind {
	case KindKeyPress, KindKeyRelease:
		if IsModifierKey(ev.Keycode) {
			out.Kind = KindFlagsChanged
		}
	case KindMousePress, KindMouseRelease:
		// libuiohook numbers buttons from 1
		if ev.Button > 0 {
			out.Button = int(ev.Button) - 1
		}
		out.KeyCode = 0
	}
	return out, true
}
