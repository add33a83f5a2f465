// Package modifier converts platform modifier flag fields into a compact,
// platform-independent modifier mask.
package modifier

import (
	"fmt"
	"strings"
)

// Mask is a compact set of held modifier keys.
type Mask uint8

// Compact modifier bits.
const (
	Control  Mask = 1 << 0
	Command  Mask = 1 << 1
	Option   Mask = 1 << 2
	Shift    Mask = 1 << 3
	Function Mask = 1 << 4

	// All is every bit a Mask may carry.
	All = Control | Command | Option | Shift | Function
)

// Layout describes which bits of a platform flag field belong to each modifier.
// A modifier may have several platform bits (left and right variants).
type Layout struct {
	Name     string
	Control  uint64
	Command  uint64
	Option   uint64
	Shift    uint64
	Function uint64
}

// UIOHook is the libuiohook mask layout reported by gohook events.
var UIOHook = Layout{
	Name:    "uiohook",
	Shift:   1<<0 | 1<<4,
	Control: 1<<1 | 1<<5,
	Command: 1<<2 | 1<<6,
	Option:  1<<3 | 1<<7,
}

// Quartz is the macOS CGEventFlags layout.
var Quartz = Layout{
	Name:     "quartz",
	Shift:    0x00020000,
	Control:  0x00040000,
	Option:   0x00080000,
	Command:  0x00100000,
	Function: 0x00800000,
}

// Compact maps a raw platform flag field to a Mask. Bits the layout does not
// know about are dropped.
func (l Layout) Compact(raw uint64) Mask {
	var m Mask
	if raw&l.Control != 0 {
		m |= Control
	}
	if raw&l.Command != 0 {
		m |= Command
	}
	if raw&l.Option != 0 {
		m |= Option
	}
	if raw&l.Shift != 0 {
		m |= Shift
	}
	if raw&l.Function != 0 {
		m |= Function
	}
	return m
}

// Expand is the inverse of Compact, using the first platform bit of each modifier.
func (l Layout) Expand(m Mask) uint64 {
	var raw uint64
	pick := func(bits uint64) uint64 { return bits & -bits }
	if m&Control != 0 {
		raw |= pick(l.Control)
	}
	if m&Command != 0 {
		raw |= pick(l.Command)
	}
	if m&Option != 0 {
		raw |= pick(l.Option)
	}
	if m&Shift != 0 {
		raw |= pick(l.Shift)
	}
	if m&Function != 0 {
		raw |= pick(l.Function)
	}
	return raw
}

// IgnoringOption returns m with the Option bit cleared.
func (m Mask) IgnoringOption() Mask {
	return m &^ Option
}

// Has reports whether every bit in o is set in m.
func (m Mask) Has(o Mask) bool {
	return o != 0 && m&o == o
}

// Matches reports whether a held mask satisfies a configured mask. An extra
// Option modifier on either side never prevents a match.
func (m Mask) Matches(configured Mask) bool {
	return m.IgnoringOption() == configured.IgnoringOption()
}

var names = []struct {
	bit  Mask
	name string
}{
	{Function, "fn"},
	{Control, "ctrl"},
	{Command, "cmd"},
	{Option, "opt"},
	{Shift, "shift"},
}

// String renders the mask as "fn+ctrl+cmd+opt+shift" ordered tokens.
// The empty mask renders as "".
func (m Mask) String() string {
	var parts []string
	for _, n := range names {
		if m&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "+")
}

// Token returns the modifier bit named by a single token, such as "ctrl" or "alt".
func Token(s string) (Mask, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ctrl", "control":
		return Control, true
	case "cmd", "command", "meta", "super", "win":
		return Command, true
	case "opt", "option", "alt":
		return Option, true
	case "shift":
		return Shift, true
	case "fn", "function":
		return Function, true
	}
	return 0, false
}

// Parse reads a "+"-separated list of modifier tokens. Empty tokens are skipped
// so "" parses to the empty mask.
func Parse(s string) (Mask, error) {
	var m Mask
	for _, part := range strings.Split(s, "+") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		bit, ok := Token(part)
		if !ok {
			return 0, fmt.Errorf("unknown modifier %q", strings.TrimSpace(part))
		}
		m |= bit
	}
	return m, nil
}
