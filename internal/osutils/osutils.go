// Package osutils provides platform checks needed before capturing input.
package osutils

import (
	"os"
	"strings"
)

// EnvCapture overrides the capture permission probe: "granted" or "denied".
const EnvCapture = "ANIMCANCEL_CAPTURE"

// CapturePermitted reports whether this process may observe global input and
// post synthesized events.
func CapturePermitted() bool {
	return capturePermitted(os.LookupEnv, platformCapturePermitted)
}

func capturePermitted(lookup func(string) (string, bool), probe func() bool) bool {
	if v, ok := lookup(EnvCapture); ok {
		if granted, known := interpretFlag(v); known {
			return granted
		}
	}
	return probe()
}

func interpretFlag(v string) (granted, known bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "granted", "true", "1", "yes":
		return true, true
	case "denied", "false", "0", "no":
		return false, true
	}
	return false, false
}

// PermissionHint describes how to grant capture access on this platform.
func PermissionHint() string {
	return permissionHint
}
