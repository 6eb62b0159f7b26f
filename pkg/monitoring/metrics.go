// Package monitoring provides counters for rename recovery and instance rendezvous.
package monitoring

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const namespace = "vertview"

// Metrics tracks reconciliation outcomes. All methods are safe for concurrent use.
type Metrics struct {
	// Recovery counters
	recoveriesScheduled  int64
	recoveriesSucceeded  int64
	recoveriesUnresolved int64
	collisions           int64
	lastRecoveryNs       int64 // Unix nanoseconds, accessed atomically

	// Watch counters
	watchFailures int64

	// Rendezvous counters
	handoffsReceived  int64
	handoffsDiscarded int64
	handoffsForwarded int64

	startTime time.Time
	logger    *logrus.Logger

	descs map[string]*prometheus.Desc
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	RecoveriesScheduled  int64  `json:"recoveries_scheduled"`
	RecoveriesSucceeded  int64  `json:"recoveries_succeeded"`
	RecoveriesUnresolved int64  `json:"recoveries_unresolved"`
	Collisions           int64  `json:"collisions"`
	WatchFailures        int64  `json:"watch_failures"`
	HandoffsReceived     int64  `json:"handoffs_received"`
	HandoffsDiscarded    int64  `json:"handoffs_discarded"`
	HandoffsForwarded    int64  `json:"handoffs_forwarded"`
	LastRecovery         string `json:"last_recovery"`
	Uptime               string `json:"uptime"`
}

// NewMetrics creates a new metrics instance.
func NewMetrics(logger *logrus.Logger) *Metrics {
	if logger == nil {
		logger = logrus.New()
	}

	m := &Metrics{
		startTime: time.Now(),
		logger:    logger,
		descs:     make(map[string]*prometheus.Desc),
	}
	for name, help := range map[string]string{
		"recoveries_scheduled_total":  "Rename recovery attempts scheduled after a tracked file went missing",
		"recoveries_succeeded_total":  "Tracked documents re-keyed to a new path",
		"recoveries_unresolved_total": "Recovery attempts that found no matching file",
		"recovery_collisions_total":   "Recoveries whose destination was already open",
		"watch_failures_total":        "Native watch registrations that failed",
		"handoffs_received_total":     "Open requests accepted from secondary instances",
		"handoffs_discarded_total":    "Malformed or empty open requests discarded",
		"handoffs_forwarded_total":    "Open requests forwarded to a primary instance",
	} {
		m.descs[name] = prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil)
	}
	return m
}

// IncrementRecoveriesScheduled counts a scheduled recovery attempt.
func (m *Metrics) IncrementRecoveriesScheduled() {
	atomic.AddInt64(&m.recoveriesScheduled, 1)
}

// IncrementRecoveriesSucceeded counts a successful re-key.
func (m *Metrics) IncrementRecoveriesSucceeded() {
	atomic.AddInt64(&m.recoveriesSucceeded, 1)
	atomic.StoreInt64(&m.lastRecoveryNs, time.Now().UnixNano())
}

// IncrementRecoveriesUnresolved counts an attempt that ended Unresolved.
func (m *Metrics) IncrementRecoveriesUnresolved() {
	atomic.AddInt64(&m.recoveriesUnresolved, 1)
}

// IncrementCollisions counts a recovery that landed on an already-open path.
func (m *Metrics) IncrementCollisions() {
	atomic.AddInt64(&m.collisions, 1)
}

// IncrementWatchFailures counts a failed native watch registration.
func (m *Metrics) IncrementWatchFailures() {
	atomic.AddInt64(&m.watchFailures, 1)
}

// IncrementHandoffsReceived counts an accepted open request.
func (m *Metrics) IncrementHandoffsReceived() {
	atomic.AddInt64(&m.handoffsReceived, 1)
}

// IncrementHandoffsDiscarded counts a discarded open request.
func (m *Metrics) IncrementHandoffsDiscarded() {
	atomic.AddInt64(&m.handoffsDiscarded, 1)
}

// IncrementHandoffsForwarded counts a request this process forwarded to a primary.
func (m *Metrics) IncrementHandoffsForwarded() {
	atomic.AddInt64(&m.handoffsForwarded, 1)
}

// GetSnapshot returns the current counter values.
func (m *Metrics) GetSnapshot() Snapshot {
	last := "never"
	if ns := atomic.LoadInt64(&m.lastRecoveryNs); ns != 0 {
		last = time.Unix(0, ns).Format(time.RFC3339)
	}

	return Snapshot{
		RecoveriesScheduled:  atomic.LoadInt64(&m.recoveriesScheduled),
		RecoveriesSucceeded:  atomic.LoadInt64(&m.recoveriesSucceeded),
		RecoveriesUnresolved: atomic.LoadInt64(&m.recoveriesUnresolved),
		Collisions:           atomic.LoadInt64(&m.collisions),
		WatchFailures:        atomic.LoadInt64(&m.watchFailures),
		HandoffsReceived:     atomic.LoadInt64(&m.handoffsReceived),
		HandoffsDiscarded:    atomic.LoadInt64(&m.handoffsDiscarded),
		HandoffsForwarded:    atomic.LoadInt64(&m.handoffsForwarded),
		LastRecovery:         last,
		Uptime:               time.Since(m.startTime).String(),
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range m.descs {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	s := m.GetSnapshot()
	for name, value := range map[string]int64{
		"recoveries_scheduled_total":  s.RecoveriesScheduled,
		"recoveries_succeeded_total":  s.RecoveriesSucceeded,
		"recoveries_unresolved_total": s.RecoveriesUnresolved,
		"recovery_collisions_total":   s.Collisions,
		"watch_failures_total":        s.WatchFailures,
		"handoffs_received_total":     s.HandoffsReceived,
		"handoffs_discarded_total":    s.HandoffsDiscarded,
		"handoffs_forwarded_total":    s.HandoffsForwarded,
	} {
		ch <- prometheus.MustNewConstMetric(m.descs[name], prometheus.CounterValue, float64(value))
	}
}
