package monitoring

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Metrics creation
func TestNewMetrics(t *testing.T) {
	metrics := NewMetrics(logrus.New())

	assert.NotNil(t, metrics)
	assert.WithinDuration(t, time.Now(), metrics.startTime, time.Second)

	s := metrics.GetSnapshot()
	assert.Equal(t, Snapshot{LastRecovery: "never", Uptime: s.Uptime}, s)
}

func TestNewMetrics_NilLogger(t *testing.T) {
	metrics := NewMetrics(nil)
	assert.NotNil(t, metrics.logger)
}

// Test each counter moves only its own field
func TestMetrics_Increments(t *testing.T) {
	tests := []struct {
		name  string
		bump  func(*Metrics)
		value func(Snapshot) int64
	}{
		{"recoveries scheduled", (*Metrics).IncrementRecoveriesScheduled, func(s Snapshot) int64 { return s.RecoveriesScheduled }},
		{"recoveries succeeded", (*Metrics).IncrementRecoveriesSucceeded, func(s Snapshot) int64 { return s.RecoveriesSucceeded }},
		{"recoveries unresolved", (*Metrics).IncrementRecoveriesUnresolved, func(s Snapshot) int64 { return s.RecoveriesUnresolved }},
		{"collisions", (*Metrics).IncrementCollisions, func(s Snapshot) int64 { return s.Collisions }},
		{"watch failures", (*Metrics).IncrementWatchFailures, func(s Snapshot) int64 { return s.WatchFailures }},
		{"handoffs received", (*Metrics).IncrementHandoffsReceived, func(s Snapshot) int64 { return s.HandoffsReceived }},
		{"handoffs discarded", (*Metrics).IncrementHandoffsDiscarded, func(s Snapshot) int64 { return s.HandoffsDiscarded }},
		{"handoffs forwarded", (*Metrics).IncrementHandoffsForwarded, func(s Snapshot) int64 { return s.HandoffsForwarded }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := NewMetrics(nil)
			tt.bump(metrics)
			tt.bump(metrics)
			assert.Equal(t, int64(2), tt.value(metrics.GetSnapshot()))
		})
	}
}

// Test last recovery timestamp
func TestMetrics_LastRecovery(t *testing.T) {
	metrics := NewMetrics(nil)
	assert.Equal(t, "never", metrics.GetSnapshot().LastRecovery)

	metrics.IncrementRecoveriesSucceeded()
	last, err := time.Parse(time.RFC3339, metrics.GetSnapshot().LastRecovery)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), last, 2*time.Second)
}

// Test concurrent access
func TestMetrics_ConcurrentAccess(t *testing.T) {
	metrics := NewMetrics(nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				metrics.IncrementHandoffsReceived()
				metrics.IncrementRecoveriesScheduled()
				_ = metrics.GetSnapshot()
			}
		}()
	}
	wg.Wait()

	s := metrics.GetSnapshot()
	assert.Equal(t, int64(1000), s.HandoffsReceived)
	assert.Equal(t, int64(1000), s.RecoveriesScheduled)
}

// Test Prometheus collector output
func TestMetrics_Collector(t *testing.T) {
	metrics := NewMetrics(nil)
	metrics.IncrementCollisions()
	metrics.IncrementHandoffsForwarded()
	metrics.IncrementHandoffsForwarded()

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(metrics))

	assert.Equal(t, 8, testutil.CollectAndCount(metrics))

	expected := `
# HELP vertview_handoffs_forwarded_total Open requests forwarded to a primary instance
# TYPE vertview_handoffs_forwarded_total counter
vertview_handoffs_forwarded_total 2
# HELP vertview_recovery_collisions_total Recoveries whose destination was already open
# TYPE vertview_recovery_collisions_total counter
vertview_recovery_collisions_total 1
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"vertview_handoffs_forwarded_total", "vertview_recovery_collisions_total")
	assert.NoError(t, err)
}
