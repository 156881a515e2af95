//go:build !windows

package tracker

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// reraise delivers sig to the current process again. The handler has been
// reset before this runs, so the default disposition applies.
func reraise(sig os.Signal) {
	s, ok := sig.(syscall.Signal)
	if !ok {
		os.Exit(1)
	}
	if err := unix.Kill(os.Getpid(), s); err != nil {
		os.Exit(128 + int(s))
	}
}
