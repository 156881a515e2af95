// Package lock provides a mutual exclusion lock for independent OS
// processes, built on named shared memory segments. The only atomic
// primitive is exclusive creation of a segment: whoever creates the segment
// holds the lock, stamps it with a per-handle token to prove ownership, and
// destroys it on release. Everyone else polls.
//
// A Lock handle belongs to exactly one goroutine of one process. Sharing a
// handle across goroutines is not supported; goroutines needing mutual
// exclusion inside one process should use a sync.Mutex instead. There is no
// fairness among waiters: starvation under heavy contention is possible and
// expected.
package lock
