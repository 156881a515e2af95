package tracker

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

var (
	sigMu   sync.Mutex
	sigCh   chan os.Signal
	sigDone chan struct{}
)

// InstallSignalCleanup runs TeardownAndCleanup when one of the given
// signals arrives, then re-raises the signal under its default disposition
// so the process still terminates the way the caller expects. Without
// arguments it covers SIGINT and SIGTERM. Installing twice is a no-op until
// RemoveSignalCleanup is called.
func InstallSignalCleanup(sigs ...os.Signal) {
	sigMu.Lock()
	defer sigMu.Unlock()
	if sigCh != nil {
		return
	}
	if len(sigs) == 0 {
		sigs = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	sigCh = make(chan os.Signal, 1)
	sigDone = make(chan struct{})
	signal.Notify(sigCh, sigs...)
	go func(ch chan os.Signal, done chan struct{}) {
		select {
		case sig, ok := <-ch:
			if !ok {
				return
			}
			TeardownAndCleanup()
			signal.Reset(sig)
			reraise(sig)
		case <-done:
		}
	}(sigCh, sigDone)
}

// RemoveSignalCleanup restores default signal handling without running any
// cleanup.
func RemoveSignalCleanup() {
	sigMu.Lock()
	defer sigMu.Unlock()
	if sigCh == nil {
		return
	}
	signal.Stop(sigCh)
	close(sigDone)
	sigCh = nil
	sigDone = nil
}
