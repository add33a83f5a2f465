//go:build !darwin

package input

import "animcancel/internal/modifier"

// SystemModifiers has no system query outside macOS; callers fall back to the
// modifiers observed on captured events.
func SystemModifiers() (modifier.Mask, bool) {
	return 0, false
}
