// Package metrics exposes Prometheus collectors for the attendance engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the engine's collectors.
type Metrics struct {
	Scans           *prometheus.CounterVec
	ScanDuration    prometheus.Histogram
	LeaveDecisions  *prometheus.CounterVec
	ReconciledDays  *prometheus.CounterVec
	AbsentsWritten  prometheus.Counter
	ScheduleChanges prometheus.Counter
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in
// binaries and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Scans: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "internattend",
			Name:      "scans_total",
			Help:      "QR scans by outcome (check_in, check_out or rejection code).",
		}, []string{"outcome"}),
		ScanDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "internattend",
			Name:      "scan_duration_seconds",
			Help:      "Time spent recording a scan, lock and transaction included.",
			Buckets:   prometheus.DefBuckets,
		}),
		LeaveDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "internattend",
			Name:      "leave_decisions_total",
			Help:      "Leave request decisions by result.",
		}, []string{"decision"}),
		ReconciledDays: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "internattend",
			Name:      "leave_reconciled_days_total",
			Help:      "Ledger days written by leave reconciliation.",
		}, []string{"op"}),
		AbsentsWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: "internattend",
			Name:      "absences_materialized_total",
			Help:      "Absent rows materialized for days without a record.",
		}),
		ScheduleChanges: f.NewCounter(prometheus.CounterOpts{
			Namespace: "internattend",
			Name:      "schedule_versions_total",
			Help:      "Attendance schedule versions activated.",
		}),
	}
}
