package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
//
// All Record* helpers are safe to call on a nil *Metrics so components
// can be constructed without instrumentation in tests.
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal   *prometheus.CounterVec
	solanaRPCCallDuration *prometheus.HistogramVec

	// Confirmation Metrics
	confirmationPollsTotal    *prometheus.CounterVec
	confirmationOutcomesTotal *prometheus.CounterVec
	confirmationDuration      *prometheus.HistogramVec

	// Action Chain Metrics
	actionStepsTotal       *prometheus.CounterVec
	actionStepDuration     *prometheus.HistogramVec
	transactionsBuiltTotal *prometheus.CounterVec

	// Domain Collaborator Metrics
	generationDuration *prometheus.HistogramVec
	generationsTotal   *prometheus.CounterVec
	mintDuration       *prometheus.HistogramVec
	mintsTotal         *prometheus.CounterVec
	analyticsFailures  *prometheus.CounterVec

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Solana RPC Metrics
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method"},
		),

		// Confirmation Metrics
		confirmationPollsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confirmation_polls_total",
				Help: "Total number of signature status polls by observed status",
			},
			[]string{"status"},
		),
		confirmationOutcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confirmation_outcomes_total",
				Help: "Total number of signature confirmations by final outcome",
			},
			[]string{"outcome"},
		),
		confirmationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "confirmation_duration_seconds",
				Help:    "Time spent waiting for a signature to confirm",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"outcome"},
		),

		// Action Chain Metrics
		actionStepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "action_steps_total",
				Help: "Total number of action step executions by step and outcome",
			},
			[]string{"step", "outcome"},
		),
		actionStepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "action_step_duration_seconds",
				Help:    "Duration of action step executions in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"step"},
		),
		transactionsBuiltTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_built_total",
				Help: "Total number of unsigned transactions built",
			},
			[]string{"step"},
		),

		// Domain Collaborator Metrics
		generationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "image_generation_duration_seconds",
				Help:    "Duration of image generation requests in seconds",
				Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120},
			},
			[]string{"tier"},
		),
		generationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "image_generations_total",
				Help: "Total number of image generation requests",
			},
			[]string{"tier", "status"},
		),
		mintDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nft_mint_duration_seconds",
				Help:    "Duration of compressed NFT mint requests in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"status"},
		),
		mintsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nft_mints_total",
				Help: "Total number of compressed NFT mint requests",
			},
			[]string{"status"},
		),
		analyticsFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytics_failures_total",
				Help: "Total number of analytics failures by operation",
			},
			[]string{"operation"},
		),

		// Database Metrics
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 10, 30},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method string, err error, duration float64) {
	if m == nil {
		return
	}
	m.solanaRPCCallsTotal.WithLabelValues(method, errorStatus(err)).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method).Observe(duration)
}

// Confirmation metric helpers

// RecordConfirmationPoll records a single signature status poll.
func (m *Metrics) RecordConfirmationPoll(status string) {
	if m == nil {
		return
	}
	m.confirmationPollsTotal.WithLabelValues(status).Inc()
}

// RecordConfirmation records the final outcome of a confirmation loop.
func (m *Metrics) RecordConfirmation(outcome string, duration float64) {
	if m == nil {
		return
	}
	m.confirmationOutcomesTotal.WithLabelValues(outcome).Inc()
	m.confirmationDuration.WithLabelValues(outcome).Observe(duration)
}

// Action chain metric helpers

// RecordStep records one POST step execution.
func (m *Metrics) RecordStep(step, outcome string, duration float64) {
	if m == nil {
		return
	}
	m.actionStepsTotal.WithLabelValues(step, outcome).Inc()
	m.actionStepDuration.WithLabelValues(step).Observe(duration)
}

// RecordTransactionBuilt records an unsigned transaction handed back to a client.
func (m *Metrics) RecordTransactionBuilt(step string) {
	if m == nil {
		return
	}
	m.transactionsBuiltTotal.WithLabelValues(step).Inc()
}

// Domain collaborator metric helpers

// RecordGeneration records an image generation request.
func (m *Metrics) RecordGeneration(tier string, err error, duration float64) {
	if m == nil {
		return
	}
	m.generationsTotal.WithLabelValues(tier, errorStatus(err)).Inc()
	m.generationDuration.WithLabelValues(tier).Observe(duration)
}

// RecordMint records a compressed NFT mint request.
func (m *Metrics) RecordMint(err error, duration float64) {
	if m == nil {
		return
	}
	status := errorStatus(err)
	m.mintsTotal.WithLabelValues(status).Inc()
	m.mintDuration.WithLabelValues(status).Observe(duration)
}

// RecordAnalyticsFailure records a failed analytics operation ("instruction" or "track").
func (m *Metrics) RecordAnalyticsFailure(operation string) {
	if m == nil {
		return
	}
	m.analyticsFailures.WithLabelValues(operation).Inc()
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, errorStatus(err)).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	if m == nil {
		return
	}
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	if m == nil {
		return
	}
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func errorStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
