//go:build windows

package shm

// System is not supported on this platform. The Memory provider remains
// available for single-process use.
func System() (Provider, error) {
	return nil, ErrUnsupported
}
