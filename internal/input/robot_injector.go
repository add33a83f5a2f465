package input

import (
	"fmt"

	"github.com/go-vgo/robotgo"
)

var robotButtons = map[int]string{
	ButtonLeft:   "left",
	ButtonRight:  "right",
	ButtonMiddle: "center",
}

// RobotInjector synthesizes input through robotgo. Events are posted at the
// current pointer location.
type RobotInjector struct{}

// NewRobotInjector creates a robotgo backed injector
func NewRobotInjector() *RobotInjector {
	return &RobotInjector{}
}

// MouseButton presses or releases a mouse button.
func (RobotInjector) MouseButton(button int, pressed bool) error {
	name, ok := robotButtons[button]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnsupportedButton, button)
	}
	if pressed {
		return robotgo.Toggle(name, "down")
	}
	return robotgo.Toggle(name, "up")
}

// Key presses or releases a key by robotgo key name ("x", "z", "f5").
func (RobotInjector) Key(name string, pressed bool) error {
	if pressed {
		return robotgo.KeyToggle(name, "down")
	}
	return robotgo.KeyToggle(name, "up")
}
