// Package tracker keeps the process-wide record of currently held locks so
// they can be force-released when the process dies without releasing them.
//
// Exactly one Tracker exists per process. It is created lazily by Init,
// queried with Current and torn down explicitly with Teardown or
// TeardownAndCleanup; it is never shared with or visible to other
// processes. Go has no atexit, so the owning process is expected to defer
// TeardownAndCleanup from main; InstallSignalCleanup additionally covers
// SIGINT and SIGTERM and re-raises the signal after cleanup so the default
// termination behavior is preserved.
//
// The tracker's internal mutex guards only its own table. It is deliberately
// distinct from the distributed mutex it tracks.
package tracker
