package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the keeper protocol.
type Metrics struct {
	config MetricsConfig

	// Condition lifecycle metrics
	conditionsRegistered *prometheus.CounterVec
	conditionsExecuted   *prometheus.CounterVec
	conditionsCancelled  prometheus.Counter
	conditionsSlashed    prometheus.Counter

	// Challenge metrics
	challengesOpened   prometheus.Counter
	challengesResolved *prometheus.CounterVec

	// Collateral metrics
	slashesApplied *prometheus.CounterVec
	slashedTotal   prometheus.Counter

	// Relay metrics
	relayCalls    *prometheus.CounterVec
	relayDuration *prometheus.HistogramVec
	relayErrors   *prometheus.CounterVec

	// Error metrics
	errorsByKind *prometheus.CounterVec
	errorsByCode *prometheus.CounterVec

	// State gauges
	activeConditions prometheus.Gauge
	openChallenges   prometheus.Gauge
	totalStaked      prometheus.Gauge
	totalEscrow      prometheus.Gauge
	executorCount    prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	// Create a new registry
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		// Condition lifecycle metrics
		conditionsRegistered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "conditions_registered_total",
				Help:      "Total number of conditions registered",
			},
			[]string{"trigger_type"},
		),
		conditionsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "conditions_executed_total",
				Help:      "Total number of condition executions recorded",
			},
			[]string{"trigger_type"},
		),
		conditionsCancelled: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "conditions_cancelled_total",
				Help:      "Total number of conditions cancelled",
			},
		),
		conditionsSlashed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "conditions_slashed_total",
				Help:      "Total number of conditions terminated by adverse resolution",
			},
		),

		// Challenge metrics
		challengesOpened: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "challenges_opened_total",
				Help:      "Total number of execution challenges opened",
			},
		),
		challengesResolved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "challenges_resolved_total",
				Help:      "Total number of challenges resolved by verdict",
			},
			[]string{"verdict"},
		),

		// Collateral metrics
		slashesApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "slashes_applied_total",
				Help:      "Total number of slashes applied by kind",
			},
			[]string{"kind"},
		),
		slashedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "slashed_amount_total",
				Help:      "Total amount slashed, in smallest units",
			},
		),

		// Relay metrics
		relayCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "relay_calls_total",
				Help:      "Total number of relay dispatches",
			},
			[]string{"target"},
		),
		relayDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "relay_call_duration_seconds",
				Help:      "Duration of relay dispatches in seconds",
				Buckets:   buckets,
			},
			[]string{"target"},
		),
		relayErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "relay_errors_total",
				Help:      "Total number of relay dispatch errors",
			},
			[]string{"target"},
		),

		// Error metrics
		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_kind_total",
				Help:      "Total number of errors by error kind",
			},
			[]string{"kind"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),

		// State gauges
		activeConditions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_conditions",
				Help:      "Current number of conditions in the active state",
			},
		),
		openChallenges: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "open_challenges",
				Help:      "Current number of unresolved challenges",
			},
		),
		totalStaked: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "executor_stake_total",
				Help:      "Total executor collateral currently held",
			},
		),
		totalEscrow: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "condition_escrow_total",
				Help:      "Total condition stake currently escrowed",
			},
		),
		executorCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_executors",
				Help:      "Current number of executors with active stake",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.conditionsRegistered,
		m.conditionsExecuted,
		m.conditionsCancelled,
		m.conditionsSlashed,
		m.challengesOpened,
		m.challengesResolved,
		m.slashesApplied,
		m.slashedTotal,
		m.relayCalls,
		m.relayDuration,
		m.relayErrors,
		m.errorsByKind,
		m.errorsByCode,
		m.activeConditions,
		m.openChallenges,
		m.totalStaked,
		m.totalEscrow,
		m.executorCount,
	)

	return m, nil
}

// Condition Metrics

// RecordConditionRegistered increments the registration counter.
func (m *Metrics) RecordConditionRegistered(triggerType string) {
	if m.conditionsRegistered == nil {
		return
	}
	m.conditionsRegistered.WithLabelValues(triggerType).Inc()
}

// RecordConditionExecuted increments the execution counter.
func (m *Metrics) RecordConditionExecuted(triggerType string) {
	if m.conditionsExecuted == nil {
		return
	}
	m.conditionsExecuted.WithLabelValues(triggerType).Inc()
}

// RecordConditionCancelled increments the cancellation counter.
func (m *Metrics) RecordConditionCancelled() {
	if m.conditionsCancelled == nil {
		return
	}
	m.conditionsCancelled.Inc()
}

// RecordConditionSlashed increments the terminal-slash counter.
func (m *Metrics) RecordConditionSlashed() {
	if m.conditionsSlashed == nil {
		return
	}
	m.conditionsSlashed.Inc()
}

// Challenge Metrics

// RecordChallengeOpened increments the challenge counter and gauge.
func (m *Metrics) RecordChallengeOpened() {
	if m.challengesOpened == nil {
		return
	}
	m.challengesOpened.Inc()
	m.openChallenges.Inc()
}

// RecordChallengeResolved records a resolved challenge with its verdict.
func (m *Metrics) RecordChallengeResolved(valid bool) {
	if m.challengesResolved == nil {
		return
	}
	verdict := "upheld"
	if !valid {
		verdict = "fraud"
	}
	m.challengesResolved.WithLabelValues(verdict).Inc()
	m.openChallenges.Dec()
}

// Collateral Metrics

// RecordSlash records a slash of the given kind and effective amount.
func (m *Metrics) RecordSlash(kind string, amount uint64) {
	if m.slashesApplied == nil {
		return
	}
	m.slashesApplied.WithLabelValues(kind).Inc()
	m.slashedTotal.Add(float64(amount))
}

// SetTotalStaked sets the total executor collateral gauge.
func (m *Metrics) SetTotalStaked(amount uint64) {
	if m.totalStaked == nil {
		return
	}
	m.totalStaked.Set(float64(amount))
}

// SetTotalEscrow sets the total condition escrow gauge.
func (m *Metrics) SetTotalEscrow(amount uint64) {
	if m.totalEscrow == nil {
		return
	}
	m.totalEscrow.Set(float64(amount))
}

// SetExecutorCount sets the active executor gauge.
func (m *Metrics) SetExecutorCount(count int) {
	if m.executorCount == nil {
		return
	}
	m.executorCount.Set(float64(count))
}

// SetActiveConditions sets the active condition gauge.
func (m *Metrics) SetActiveConditions(count uint64) {
	if m.activeConditions == nil {
		return
	}
	m.activeConditions.Set(float64(count))
}

// Relay Metrics

// RecordRelayCall records a relay dispatch with its duration.
func (m *Metrics) RecordRelayCall(target string, duration time.Duration) {
	if m.relayCalls == nil {
		return
	}
	m.relayCalls.WithLabelValues(target).Inc()
	m.relayDuration.WithLabelValues(target).Observe(duration.Seconds())
}

// RecordRelayError records a relay dispatch error.
func (m *Metrics) RecordRelayError(target string) {
	if m.relayErrors == nil {
		return
	}
	m.relayErrors.WithLabelValues(target).Inc()
}

// Error Metrics

// RecordError records an error by kind and optionally by code.
func (m *Metrics) RecordError(kind, code string) {
	if m.errorsByKind == nil {
		return
	}
	m.errorsByKind.WithLabelValues(kind).Inc()
	if code != "" && m.errorsByCode != nil {
		m.errorsByCode.WithLabelValues(code).Inc()
	}
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't fail the application
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
