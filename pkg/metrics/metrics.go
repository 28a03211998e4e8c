// Package metrics exposes Prometheus instrumentation for ledger, cleanup and
// export operations.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "audittrail"

var (
	enabled         bool
	enabledMutex    sync.RWMutex
	defaultRegistry *Registry
)

// Init initializes the default registry.
func Init() {
	enabledMutex.Lock()
	defer enabledMutex.Unlock()
	enabled = true
	defaultRegistry = NewRegistry(DefaultNamespace)
}

// Enabled returns true if metrics are enabled.
func Enabled() bool {
	enabledMutex.RLock()
	defer enabledMutex.RUnlock()
	return enabled
}

// Default returns the default metrics registry.
func Default() *Registry {
	enabledMutex.RLock()
	r := defaultRegistry
	enabledMutex.RUnlock()
	if r == nil {
		Init()
		return Default()
	}
	return r
}

// Registry holds the trail's collectors on a private prometheus registry.
// A nil *Registry is valid and records nothing.
type Registry struct {
	reg *prometheus.Registry

	appends           prometheus.Counter
	verifications     *prometheus.CounterVec
	cleanupRuns       *prometheus.CounterVec
	recordsIdentified *prometheus.CounterVec
	recordsDeleted    *prometheus.CounterVec
	deletionReports   *prometheus.CounterVec
	exports           *prometheus.CounterVec
	cleanupDuration   prometheus.Histogram
	exportDuration    prometheus.Histogram
}

// NewRegistry creates a registry with all collectors registered under namespace.
func NewRegistry(namespace string) *Registry {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Registry{
		reg: reg,
		appends: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "appends_total",
			Help:      "Entries appended to the audit ledger",
		}),
		verifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "verifications_total",
			Help:      "Hash chain verifications by result",
		}, []string{"result"}),
		cleanupRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cleanup",
			Name:      "runs_total",
			Help:      "Retention cleanup runs",
		}, []string{"dry_run", "success"}),
		recordsIdentified: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cleanup",
			Name:      "records_identified_total",
			Help:      "Records found past their retention cutoff",
		}, []string{"category"}),
		recordsDeleted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cleanup",
			Name:      "records_deleted_total",
			Help:      "Records removed by retention cleanup",
		}, []string{"category"}),
		deletionReports: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cleanup",
			Name:      "deletion_reports_total",
			Help:      "Signed deletion reports created",
		}, []string{"category"}),
		exports: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "generated_total",
			Help:      "Tamper-evident exports generated",
		}, []string{"chain_valid"}),
		cleanupDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cleanup",
			Name:      "duration_seconds",
			Help:      "Retention cleanup run duration",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}),
		exportDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "duration_seconds",
			Help:      "Export generation duration",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}),
	}
}

// Registerer returns the underlying prometheus registry for HTTP exposition.
func (r *Registry) Registerer() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

// Gather collects the current metric families.
func (r *Registry) Gather() ([]*dto.MetricFamily, error) {
	if r == nil {
		return nil, nil
	}
	return r.reg.Gather()
}

// RecordAppend counts one ledger append.
func (r *Registry) RecordAppend() {
	if r == nil {
		return
	}
	r.appends.Inc()
}

// RecordVerification counts a chain verification outcome.
func (r *Registry) RecordVerification(valid bool) {
	if r == nil {
		return
	}
	result := "valid"
	if !valid {
		result = "broken"
	}
	r.verifications.WithLabelValues(result).Inc()
}

// RecordCleanupRun records a finished cleanup run.
func (r *Registry) RecordCleanupRun(dryRun, success bool, duration time.Duration) {
	if r == nil {
		return
	}
	r.cleanupRuns.WithLabelValues(strconv.FormatBool(dryRun), strconv.FormatBool(success)).Inc()
	r.cleanupDuration.Observe(duration.Seconds())
}

// RecordCleanupCategory records per-category identification and deletion counts.
func (r *Registry) RecordCleanupCategory(category string, identified, deleted int) {
	if r == nil {
		return
	}
	r.recordsIdentified.WithLabelValues(category).Add(float64(identified))
	r.recordsDeleted.WithLabelValues(category).Add(float64(deleted))
}

// RecordDeletionReport counts a signed deletion report.
func (r *Registry) RecordDeletionReport(category string) {
	if r == nil {
		return
	}
	r.deletionReports.WithLabelValues(category).Inc()
}

// RecordExport records a generated export.
func (r *Registry) RecordExport(chainValid bool, duration time.Duration) {
	if r == nil {
		return
	}
	r.exports.WithLabelValues(strconv.FormatBool(chainValid)).Inc()
	r.exportDuration.Observe(duration.Seconds())
}
