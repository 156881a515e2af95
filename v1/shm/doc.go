// Package shm provides the named shared memory segment primitive the lock
// is built on. A segment is a fixed-size block of bytes visible to every
// process on the machine, created once and attached to by name thereafter.
// Exclusive creation, which fails when a segment of the same name already
// exists, is the sole atomic operation and the only source of mutual
// exclusion in the module.
//
// Two providers are included: Posix maps files in /dev/shm (or a fallback
// runtime directory) and coordinates real OS processes, while Memory keeps
// segments in a process-local table and is intended for tests and
// single-process use.
package shm
