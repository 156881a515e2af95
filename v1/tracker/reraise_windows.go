//go:build windows

package tracker

import (
	"os"
	"syscall"
)

// reraise approximates default signal termination, which cannot be
// re-delivered on this platform.
func reraise(sig os.Signal) {
	if s, ok := sig.(syscall.Signal); ok {
		os.Exit(128 + int(s))
	}
	os.Exit(1)
}
