// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	SessionInits    *prometheus.CounterVec // result=ok|error
	SessionRestarts *prometheus.CounterVec // reason
	EventsReceived  *prometheus.CounterVec // kind
	QRCodesIssued   prometheus.Counter
	PersistErrors   *prometheus.CounterVec // table

	// Histograms (seconds)
	PersistDuration *prometheus.HistogramVec // table

	// Gauges
	SessionStateGauge *prometheus.GaugeVec // 1 for the current state, 0 otherwise
	DBOpenConns       prometheus.Gauge
	DBInUseConns      prometheus.Gauge
)

// SessionStates lists every value exported on the session state gauge.
var SessionStates = []string{"idle", "initializing", "awaiting_scan", "ready", "disconnected"}

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		SessionInits = promauto.NewCounterVec(prometheus.CounterOpts{Name: "wa_session_initializations_total", Help: "Session initialization attempts by result"}, []string{"result"})
		SessionRestarts = promauto.NewCounterVec(prometheus.CounterOpts{Name: "wa_session_restarts_total", Help: "Scheduled session restarts by reason"}, []string{"reason"})
		EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{Name: "wa_events_received_total", Help: "Events received from the live session handle"}, []string{"kind"})
		QRCodesIssued = promauto.NewCounter(prometheus.CounterOpts{Name: "wa_qr_codes_issued_total", Help: "Login QR codes issued by the network"})
		PersistErrors = promauto.NewCounterVec(prometheus.CounterOpts{Name: "wa_persist_errors_total", Help: "Failed persistence writes by table"}, []string{"table"})
		PersistDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wa_persist_duration_seconds",
			Help:    "Persistence write duration seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"table"})
		SessionStateGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "wa_session_state", Help: "Current session state (1=current)"}, []string{"state"})
		DBOpenConns = promauto.NewGauge(prometheus.GaugeOpts{Name: "wa_db_open_connections", Help: "Open database connections"})
		DBInUseConns = promauto.NewGauge(prometheus.GaugeOpts{Name: "wa_db_in_use_connections", Help: "Database connections currently in use"})
	})
}

// SetSessionState marks state as current on the state gauge.
func SetSessionState(state string) {
	if SessionStateGauge == nil {
		return
	}
	for _, s := range SessionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		SessionStateGauge.WithLabelValues(s).Set(v)
	}
}

// IncSessionInit counts one initialization attempt.
func IncSessionInit(ok bool) {
	if SessionInits == nil {
		return
	}
	result := "error"
	if ok {
		result = "ok"
	}
	SessionInits.WithLabelValues(result).Inc()
}

// IncSessionRestart counts a restart that fired.
func IncSessionRestart(reason string) {
	if SessionRestarts != nil {
		SessionRestarts.WithLabelValues(reason).Inc()
	}
}

// IncEvent counts one event from the live handle.
func IncEvent(kind string) {
	if EventsReceived != nil {
		EventsReceived.WithLabelValues(kind).Inc()
	}
}

// IncQRIssued counts one login code.
func IncQRIssued() {
	if QRCodesIssued != nil {
		QRCodesIssued.Inc()
	}
}

// ObservePersist records a write against table and counts it as failed if err is non-nil.
func ObservePersist(table string, d time.Duration, err error) {
	if PersistDuration != nil {
		PersistDuration.WithLabelValues(table).Observe(d.Seconds())
	}
	if err != nil && PersistErrors != nil {
		PersistErrors.WithLabelValues(table).Inc()
	}
}

// UpdateDatabasePoolMetrics exports sql.DBStats style pool counters.
func UpdateDatabasePoolMetrics(open, inUse int) {
	if DBOpenConns != nil {
		DBOpenConns.Set(float64(open))
	}
	if DBInUseConns != nil {
		DBInUseConns.Set(float64(inUse))
	}
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
