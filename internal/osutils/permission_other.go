//go:build !darwin && !linux && !windows

package osutils

const permissionHint = "global input capture is not supported on this platform"

func platformCapturePermitted() bool {
	return false
}
