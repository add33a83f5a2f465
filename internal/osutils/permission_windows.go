//go:build windows

package osutils

const permissionHint = "run elevated to observe input sent to elevated windows"

// Low-level hooks need no grant on Windows.
func platformCapturePermitted() bool {
	return true
}
