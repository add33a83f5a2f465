// Package hotkey parses and describes trigger bindings such as
// "ctrl+Middle Click" or "shift+f5".
package hotkey

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	hook "github.com/robotn/gohook"

	"animcancel/internal/input"
	"animcancel/internal/modifier"
)

// Kind is the input device of a binding.
type Kind uint8

const (
	KindMouse Kind = iota
	KindKey
)

func (k Kind) String() string {
	if k == KindKey {
		return "key"
	}
	return "mouse"
}

// Binding is a trigger: one mouse button or one key plus a modifier mask.
type Binding struct {
	Kind Kind
	// Code is the mouse button index (0=left, 1=right, 2=middle) or a key code.
	Code uint16
	Mask modifier.Mask
}

var (
	// ErrEmpty is returned when parsing an empty binding.
	ErrEmpty = errors.New("hotkey: empty binding")
	// ErrLeftButton is returned for bindings on the left mouse button.
	ErrLeftButton = errors.New("hotkey: left mouse button cannot be a trigger")
)

// Mouse returns a mouse button binding. Buttons clamp to [0, math.MaxUint16].
func Mouse(button int, mask modifier.Mask) Binding {
	if button < 0 {
		button = 0
	}
	if button > math.MaxUint16 {
		button = math.MaxUint16
	}
	return Binding{Kind: KindMouse, Code: uint16(button), Mask: mask}
}

// Key returns a keyboard binding.
func Key(code uint16, mask modifier.Mask) Binding {
	return Binding{Kind: KindKey, Code: code, Mask: mask}
}

// Default is the middle mouse button without modifiers.
func Default() Binding {
	return Mouse(input.ButtonMiddle, 0)
}

// Parse reads a binding. Tokens are separated by "+", matched without regard
// to case, and spaces inside a token are ignored ("Middle Click" == "middleclick").
// Exactly one token must name a mouse button or a key; the rest are modifiers.
func Parse(s string) (Binding, error) {
	if strings.TrimSpace(s) == "" {
		return Binding{}, ErrEmpty
	}

	var (
		mask  modifier.Mask
		main  *Binding
		parts = strings.Split(s, "+")
	)
	for _, part := range parts {
		tok := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(part), " ", ""))
		if tok == "" {
			return Binding{}, fmt.Errorf("hotkey: empty token in %q", s)
		}
		if bit, ok := modifier.Token(tok); ok {
			mask |= bit
			continue
		}
		b, err := parseMain(tok)
		if err != nil {
			return Binding{}, err
		}
		if main != nil {
			return Binding{}, fmt.Errorf("hotkey: %q names more than one button or key", s)
		}
		main = &b
	}
	if main == nil {
		return Binding{}, fmt.Errorf("hotkey: %q has no button or key", s)
	}
	main.Mask = mask
	return *main, nil
}

func parseMain(tok string) (Binding, error) {
	switch tok {
	case "LEFT", "LEFTCLICK":
		return Binding{}, ErrLeftButton
	case "RIGHT", "RIGHTCLICK":
		return Mouse(input.ButtonRight, 0), nil
	case "MIDDLE", "MIDDLECLICK", "CENTER":
		return Mouse(input.ButtonMiddle, 0), nil
	}

	// "Mouse Button N" counts from 0 like the button index, "MouseN" from 1.
	if rest, ok := strings.CutPrefix(tok, "MOUSEBUTTON"); ok {
		return mouseNumber(rest, 0)
	}
	if rest, ok := strings.CutPrefix(tok, "MOUSE"); ok {
		return mouseNumber(rest, 1)
	}

	code, ok := KeyCode(tok)
	if !ok {
		return Binding{}, fmt.Errorf("hotkey: unknown key %q", strings.ToLower(tok))
	}
	return Key(code, 0), nil
}

func mouseNumber(s string, base int) (Binding, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < base {
		return Binding{}, fmt.Errorf("hotkey: bad mouse button %q", s)
	}
	idx := n - base
	if idx == input.ButtonLeft {
		return Binding{}, ErrLeftButton
	}
	return Mouse(idx, 0), nil
}

// KeyCode looks a key name up in the capture library's key table.
func KeyCode(name string) (uint16, bool) {
	code, ok := hook.Keycode[strings.ToLower(name)]
	return code, ok
}

// KeyName returns the shortest name of a key code, or "key<code>" when the
// key table has none. Ties are broken alphabetically.
func KeyName(code uint16) string {
	var candidates []string
	for name, c := range hook.Keycode {
		if c == code {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 0 {
		return "key" + strconv.Itoa(int(code))
	}
	sort.Slice(candidates, func(i, j int) bool {
		if len(candidates[i]) != len(candidates[j]) {
			return len(candidates[i]) < len(candidates[j])
		}
		return candidates[i] < candidates[j]
	})
	return candidates[0]
}

// Button returns the mouse button index of a mouse binding, -1 for keys.
func (b Binding) Button() int {
	if b.Kind != KindMouse {
		return -1
	}
	return int(b.Code)
}

// Name describes the button or key without modifiers. Key names are uppercased.
func (b Binding) Name() string {
	if b.Kind == KindKey {
		return strings.ToUpper(KeyName(b.Code))
	}
	switch int(b.Code) {
	case input.ButtonLeft:
		return "Left Click"
	case input.ButtonRight:
		return "Right Click"
	case input.ButtonMiddle:
		return "Middle Click"
	}
	return fmt.Sprintf("Mouse Button %d", b.Code)
}

// String describes the binding as "mods+Name", for example "ctrl+opt+Middle Click".
func (b Binding) String() string {
	mods := b.Mask.String()
	if mods == "" {
		return b.Name()
	}
	return mods + "+" + b.Name()
}

// MatchesPress reports whether ev presses exactly this binding with exactly
// its modifiers.
func (b Binding) MatchesPress(ev input.Event, layout modifier.Layout) bool {
	switch b.Kind {
	case KindMouse:
		if ev.Kind != input.KindMousePress || ev.Button != int(b.Code) {
			return false
		}
	case KindKey:
		if ev.Kind != input.KindKeyPress || ev.KeyCode != b.Code {
			return false
		}
	default:
		return false
	}
	return layout.Compact(ev.Flags) == b.Mask
}
