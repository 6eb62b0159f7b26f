package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Status describes the reconciliation state of the running instance.
type Status struct {
	Primary          bool      `json:"primary"`
	Endpoint         string    `json:"endpoint"`
	TrackedDocuments int       `json:"tracked_documents"`
	Unresolved       int       `json:"unresolved"`
	WatchedFiles     int       `json:"watched_files"`
	WatchedDirs      int       `json:"watched_dirs"`
	Uptime           string    `json:"uptime"`
	Timestamp        time.Time `json:"timestamp"`
}

// StatusFunc reports the current Status.
type StatusFunc func(ctx context.Context) (Status, error)

// Monitor exposes Metrics and Status over HTTP and in the log.
type Monitor struct {
	metrics  *Metrics
	status   StatusFunc
	registry *prometheus.Registry
	logger   *logrus.Logger
}

// NewMonitor creates a monitor and registers its collectors on a private registry.
func NewMonitor(metrics *Metrics, status StatusFunc, logger *logrus.Logger) *Monitor {
	if logger == nil {
		logger = logrus.New()
	}
	if metrics == nil {
		metrics = NewMetrics(logger)
	}

	mon := &Monitor{
		metrics:  metrics,
		status:   status,
		registry: prometheus.NewRegistry(),
		logger:   logger,
	}
	mon.registry.MustRegister(metrics)
	mon.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_documents",
			Help:      "Documents currently tracked",
		},
		func() float64 { return float64(mon.currentStatus().TrackedDocuments) },
	))
	mon.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unresolved_documents",
			Help:      "Tracked documents whose file is missing with no match found",
		},
		func() float64 { return float64(mon.currentStatus().Unresolved) },
	))
	mon.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watched_files",
			Help:      "Tracked files with a native watch",
		},
		func() float64 { return float64(mon.currentStatus().WatchedFiles) },
	))
	mon.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watched_directories",
			Help:      "Directories with a native watch",
		},
		func() float64 { return float64(mon.currentStatus().WatchedDirs) },
	))
	return mon
}

// Handler returns the HTTP handler serving /metrics, /health and /live.
func (mon *Monitor) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.HandlerFor(mon.registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status, err := mon.statusWithContext(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	mux.HandleFunc("/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("alive"))
	})

	return mux
}

// Serve listens on addr until ctx is cancelled.
func (mon *Monitor) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           mon.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	mon.logger.Infof("📊 Monitoring server listening on http://%s", ln.Addr())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// LogMetrics logs counters and status every interval until ctx is cancelled.
func (mon *Monitor) LogMetrics(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := mon.metrics.GetSnapshot()
			status := mon.currentStatus()

			mon.logger.WithFields(logrus.Fields{
				"tracked":    status.TrackedDocuments,
				"unresolved": status.Unresolved,
				"dirs":       status.WatchedDirs,
				"recovered":  s.RecoveriesSucceeded,
				"scheduled":  s.RecoveriesScheduled,
				"handoffs":   s.HandoffsReceived,
			}).Info("Reconciliation metrics")
		}
	}
}

// GetMetrics returns the underlying metrics instance.
func (mon *Monitor) GetMetrics() *Metrics {
	return mon.metrics
}

func (mon *Monitor) currentStatus() Status {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	status, err := mon.statusWithContext(ctx)
	if err != nil {
		mon.logger.WithError(err).Debug("Status unavailable")
	}
	return status
}

func (mon *Monitor) statusWithContext(ctx context.Context) (Status, error) {
	if mon.status == nil {
		return Status{Uptime: time.Since(mon.metrics.startTime).String(), Timestamp: time.Now()}, nil
	}
	status, err := mon.status(ctx)
	if err != nil {
		return Status{}, err
	}
	status.Uptime = time.Since(mon.metrics.startTime).String()
	status.Timestamp = time.Now()
	return status, nil
}
