package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// AcquireCounter tracks successful lock acquisitions.
	AcquireCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shmlock_acquire_total",
		Help: "Total number of successful lock acquisitions",
	})
	// ContentionCounter tracks acquire attempts that found the lock taken.
	ContentionCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shmlock_contention_total",
		Help: "Total number of acquire attempts that hit an existing segment",
	})
	// ReleaseCounter tracks lock releases.
	ReleaseCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shmlock_release_total",
		Help: "Total number of lock releases",
	})
	// DanglingCounter tracks diagnostics that concluded a segment is
	// probably orphaned.
	DanglingCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shmlock_dangling_total",
		Help: "Total number of dangling segment classifications",
	})
	// CleanupCounter tracks segments force-released by the process tracker.
	CleanupCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shmlock_cleanup_total",
		Help: "Total number of segments released by crash cleanup",
	})
	// HeldGauge reports the number of locks currently held by this process.
	HeldGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "shmlock_held",
		Help: "Current number of locks held by this process",
	})
)

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// RegisterLockMetrics registers the shmlock metrics on the provided registry.
func RegisterLockMetrics(reg prometheus.Registerer) {
	reg.MustRegister(AcquireCounter, ContentionCounter, ReleaseCounter,
		DanglingCounter, CleanupCounter, HeldGauge)
}
