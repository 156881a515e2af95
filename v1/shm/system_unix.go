//go:build !windows

package shm

// System returns the platform's cross-process provider.
func System() (Provider, error) {
	return NewPosix(), nil
}
