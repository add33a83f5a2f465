//go:build darwin

package osutils

/*
#cgo LDFLAGS: -framework ApplicationServices

#include <ApplicationServices/ApplicationServices.h>

static int isProcessTrusted() {
    return AXIsProcessTrusted() ? 1 : 0;
}
*/
import "C"

const permissionHint = "System Settings > Privacy & Security > Accessibility: enable this app, then restart capture"

func platformCapturePermitted() bool {
	return C.isProcessTrusted() == 1
}
