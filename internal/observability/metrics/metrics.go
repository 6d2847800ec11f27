package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	metricPrefix = "guardduty_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	incidentOperationsTotal  *prometheus.CounterVec
	incidentOperationLatency *prometheus.HistogramVec
	incidentTransitionsTotal *prometheus.CounterVec

	rateSimulationsTotal *prometheus.CounterVec
	applicableLookups    *prometheus.CounterVec

	settlementGenerateTotal   *prometheus.CounterVec
	settlementGenerateLatency *prometheus.HistogramVec
	settlementExportTotal     *prometheus.CounterVec
	settlementExportLatency   *prometheus.HistogramVec

	notificationsTotal *prometheus.CounterVec
)

// Init registers service metrics and DB-backed gauges.
func Init(db *sql.DB, logger *zap.Logger) {
	registerOnce.Do(func() {
		incidentOperationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "incident_operations_total",
				Help: "Total incident operations by operation and result",
			},
			[]string{"operation", "result"},
		)
		incidentOperationLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "incident_operation_latency_seconds",
				Help:    "Incident operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "result"},
		)
		incidentTransitionsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "incident_transitions_total",
				Help: "Total applied incident state transitions",
			},
			[]string{"from", "to"},
		)

		rateSimulationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "rate_simulations_total",
				Help: "Total rate simulations by result",
			},
			[]string{"result"},
		)
		applicableLookups = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "applicable_code_lookups_total",
				Help: "Total applicable billing code lookups by result",
			},
			[]string{"result"},
		)

		settlementGenerateTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "settlement_generate_total",
				Help: "Total settlement generate operations by result",
			},
			[]string{"result"},
		)
		settlementGenerateLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "settlement_generate_latency_seconds",
				Help:    "Settlement generate latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		settlementExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "settlement_export_total",
				Help: "Total settlement export operations by format and result",
			},
			[]string{"format", "result"},
		)
		settlementExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "settlement_export_latency_seconds",
				Help:    "Settlement export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		notificationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notifications_total",
				Help: "Total supervisor notifications by outcome",
			},
			[]string{"outcome"},
		)

		prometheus.MustRegister(
			incidentOperationsTotal,
			incidentOperationLatency,
			incidentTransitionsTotal,
			rateSimulationsTotal,
			applicableLookups,
			settlementGenerateTotal,
			settlementGenerateLatency,
			settlementExportTotal,
			settlementExportLatency,
			notificationsTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveIncidentOperation records an incident operation latency and result.
func ObserveIncidentOperation(operation, result string, duration time.Duration) {
	if operation == "" {
		operation = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if incidentOperationsTotal != nil {
		incidentOperationsTotal.WithLabelValues(operation, result).Inc()
	}
	if incidentOperationLatency != nil {
		incidentOperationLatency.WithLabelValues(operation, result).Observe(duration.Seconds())
	}
}

// IncIncidentTransition counts an applied state transition.
func IncIncidentTransition(from, to string) {
	if from == "" {
		from = "none"
	}
	if incidentTransitionsTotal != nil {
		incidentTransitionsTotal.WithLabelValues(from, to).Inc()
	}
}

// IncRateSimulation counts a rate simulation.
func IncRateSimulation(result string) {
	if result == "" {
		result = resultSuccess
	}
	if rateSimulationsTotal != nil {
		rateSimulationsTotal.WithLabelValues(result).Inc()
	}
}

// IncApplicableLookup counts an applicable code lookup.
func IncApplicableLookup(result string) {
	if result == "" {
		result = resultSuccess
	}
	if applicableLookups != nil {
		applicableLookups.WithLabelValues(result).Inc()
	}
}

// ObserveSettlementGenerate records generate latency and result.
func ObserveSettlementGenerate(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if settlementGenerateTotal != nil {
		settlementGenerateTotal.WithLabelValues(result).Inc()
	}
	if settlementGenerateLatency != nil {
		settlementGenerateLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveSettlementExport records export latency and result.
func ObserveSettlementExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if settlementExportTotal != nil {
		settlementExportTotal.WithLabelValues(format, result).Inc()
	}
	if settlementExportLatency != nil {
		settlementExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// IncNotification counts a notification outcome.
func IncNotification(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	if notificationsTotal != nil {
		notificationsTotal.WithLabelValues(outcome).Inc()
	}
}

// Result maps an error to a result label.
func Result(err error) string {
	if err != nil {
		return resultError
	}
	return resultSuccess
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	NotificationSent    = "sent"
	NotificationFailed  = "failed"
	NotificationDropped = "dropped"
)
