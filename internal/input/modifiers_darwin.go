//go:build darwin

package input

/*
#cgo LDFLAGS: -framework CoreGraphics

#include <CoreGraphics/CoreGraphics.h>

static uint64_t currentModifierFlags() {
    return (uint64_t)CGEventSourceFlagsState(kCGEventSourceStateCombinedSessionState);
}
*/
import "C"

import "animcancel/internal/modifier"

// SystemModifiers samples the modifier keys held right now from the combined
// session state.
func SystemModifiers() (modifier.Mask, bool) {
	flags := uint64(C.currentModifierFlags())
	return modifier.Quartz.Compact(flags), true
}
