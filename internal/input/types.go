// Package input provides global input capture and input synthesis.
package input

import (
	"errors"
	"time"

	"animcancel/internal/modifier"
)

// Kind classifies a captured input event.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindMousePress
	KindMouseRelease
	KindKeyPress
	KindKeyRelease
	// KindFlagsChanged is a modifier key going down or up.
	KindFlagsChanged
	// KindCaptureDisabled means the platform disabled the capture (timeout or
	// user input) and it must be re-enabled.
	KindCaptureDisabled
)

func (k Kind) String() string {
	switch k {
	case KindMousePress:
		return "mouse_press"
	case KindMouseRelease:
		return "mouse_release"
	case KindKeyPress:
		return "key_press"
	case KindKeyRelease:
		return "key_release"
	case KindFlagsChanged:
		return "flags_changed"
	case KindCaptureDisabled:
		return "capture_disabled"
	}
	return "unknown"
}

// Mouse button indexes. Extra buttons continue from 3.
const (
	ButtonLeft   = 0
	ButtonRight  = 1
	ButtonMiddle = 2
)

// Event is a captured keyboard or mouse event
type Event struct {
	Kind Kind
	// Button is the mouse button index (0=left, 1=right, 2=middle), -1 if unknown.
	Button int
	// KeyCode is a virtual key code in the capture library's key space.
	KeyCode uint16
	// Flags is the raw modifier field; interpret it with the source's Layout.
	Flags uint64
	Time  time.Time
}

// Source captures global input events. Capture is listen-only: events are
// observed and always delivered to the focused application.
type Source interface {
	Start() error
	Stop() error
	// Reenable restarts a capture the platform disabled.
	Reenable() error
	Events() <-chan Event
	// Layout describes the bits of Event.Flags.
	Layout() modifier.Layout
}

// Injector synthesizes input at the current pointer location.
type Injector interface {
	MouseButton(button int, pressed bool) error
	Key(name string, pressed bool) error
}

var (
	// ErrNotRunning is returned when an operation needs a started source.
	ErrNotRunning = errors.New("input: capture not running")
	// ErrUnsupportedButton is returned for mouse buttons the injector cannot press.
	ErrUnsupportedButton = errors.New("input: unsupported mouse button")
)
