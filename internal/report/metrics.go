package report

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"okrdash/internal/okr"
)

// Metrics exposes Prometheus collectors for check-in activity and objective
// progress.
type Metrics struct {
	checkIns          *prometheus.CounterVec
	statusChanges     *prometheus.CounterVec
	objectiveProgress *prometheus.GaugeVec
	averageProgress   prometheus.Gauge
}

// MustNewMetrics registers the collectors with reg, reusing collectors that
// are already registered under the same name. It panics on any other
// registration error.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		checkIns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "okrdash",
				Name:      "checkins_total",
				Help:      "Key-result check-ins by outcome.",
			},
			[]string{"result"},
		),
		statusChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "okrdash",
				Name:      "kr_status_changes_total",
				Help:      "Key-result status transitions by new status.",
			},
			[]string{"status"},
		),
		objectiveProgress: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "okrdash",
				Name:      "objective_progress_percent",
				Help:      "Effective progress of each objective.",
			},
			[]string{"objective_id", "owner_type"},
		),
		averageProgress: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "okrdash",
				Name:      "average_progress_percent",
				Help:      "Mean effective progress across the dashboard.",
			},
		),
	}

	m.checkIns = register(reg, m.checkIns)
	m.statusChanges = register(reg, m.statusChanges)
	m.objectiveProgress = register(reg, m.objectiveProgress)
	m.averageProgress = register(reg, m.averageProgress)
	return m
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ObserveCheckIn counts a check-in attempt by outcome: applied, denied,
// rejected or failed.
func (m *Metrics) ObserveCheckIn(result string) {
	if m == nil {
		return
	}
	m.checkIns.WithLabelValues(result).Inc()
}

// ObserveStatusChange counts a key-result status transition.
func (m *Metrics) ObserveStatusChange(status okr.KRStatus) {
	if m == nil {
		return
	}
	m.statusChanges.WithLabelValues(string(status)).Inc()
}

// ObserveDashboard publishes every row's effective progress.
func (m *Metrics) ObserveDashboard(d Dashboard) {
	if m == nil {
		return
	}
	m.objectiveProgress.Reset()
	for _, row := range d.Objectives {
		m.objectiveProgress.WithLabelValues(row.ID, string(row.OwnerType)).Set(float64(row.EffectiveProgress))
	}
	m.averageProgress.Set(float64(d.Average))
}
