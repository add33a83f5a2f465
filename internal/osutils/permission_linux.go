//go:build linux

package osutils

import "os"

const permissionHint = "an X11 session is required (DISPLAY); Wayland sessions do not expose global input"

// libuiohook reads input through the X server
func platformCapturePermitted() bool {
	return os.Getenv("DISPLAY") != ""
}
