package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// It is passed explicitly to every component that records metrics.
// All helpers are safe to call on a nil *Metrics.
type Metrics struct {
	// Solana RPC
	solanaRPCCallsTotal    *prometheus.CounterVec
	solanaRPCCallDuration  *prometheus.HistogramVec
	solanaRPCRateLimitHits *prometheus.CounterVec
	solanaRPCRetries       *prometheus.CounterVec

	// Transactions
	transactionsTotal        *prometheus.CounterVec
	confirmationPolls        *prometheus.HistogramVec
	confirmationDuration     *prometheus.HistogramVec
	priorityFeeLamports      prometheus.Histogram
	blockhashRecompilesTotal prometheus.Counter

	// Orchestrator
	walletsInFlight         prometheus.Gauge
	workflowDuration        *prometheus.HistogramVec
	workflowExecutionsTotal *prometheus.CounterVec
	actionDuration          *prometheus.HistogramVec
	cyclesTotal             prometheus.Counter

	// Database
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS
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
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),
		solanaRPCRateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_rate_limit_hits_total",
				Help: "Total number of Solana RPC rate limit hits (429 errors)",
			},
			[]string{"endpoint"},
		),
		solanaRPCRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_retries_total",
				Help: "Total number of Solana RPC retry attempts",
			},
			[]string{"method", "reason"},
		),

		transactionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_total",
				Help: "Total number of submitted transactions by terminal outcome",
			},
			[]string{"outcome"},
		),
		confirmationPolls: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "transaction_confirmation_polls",
				Help:    "Number of status polls until a terminal outcome",
				Buckets: []float64{1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"outcome"},
		),
		confirmationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "transaction_confirmation_duration_seconds",
				Help:    "Time from submission to terminal outcome in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"outcome"},
		),
		priorityFeeLamports: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "transaction_priority_fee_lamports",
				Help:    "Maximum priority fee requested per transaction in lamports",
				Buckets: []float64{0, 100, 1_000, 10_000, 100_000, 1_000_000, 10_000_000},
			},
		),
		blockhashRecompilesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "transaction_blockhash_recompiles_total",
				Help: "Total number of messages recompiled because their blockhash expired",
			},
		),

		walletsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "orchestrator_wallets_in_flight",
				Help: "Number of wallet workflows currently admitted",
			},
		),
		workflowDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wallet_workflow_duration_seconds",
				Help:    "Duration of wallet workflow execution in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 900},
			},
			[]string{"workflow", "status"},
		),
		workflowExecutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_workflow_executions_total",
				Help: "Total number of wallet workflow executions",
			},
			[]string{"workflow", "status"},
		),
		actionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wallet_action_duration_seconds",
				Help:    "Duration of individual plan actions in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 360},
			},
			[]string{"action", "status"},
		),
		cyclesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "orchestrator_cycles_total",
				Help: "Total number of completed orchestration cycles",
			},
		),

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

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
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
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	if m == nil {
		return
	}
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRateLimitHit records a rate limit hit (429 error).
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	if m == nil {
		return
	}
	m.solanaRPCRateLimitHits.WithLabelValues(endpoint).Inc()
}

// RecordRPCRetry records a retry attempt.
func (m *Metrics) RecordRPCRetry(method, reason string) {
	if m == nil {
		return
	}
	m.solanaRPCRetries.WithLabelValues(method, reason).Inc()
}

// Transaction metric helpers

// RecordTransactionOutcome records the terminal outcome of a submitted transaction.
func (m *Metrics) RecordTransactionOutcome(outcome string, polls int, duration float64) {
	if m == nil {
		return
	}
	m.transactionsTotal.WithLabelValues(outcome).Inc()
	m.confirmationPolls.WithLabelValues(outcome).Observe(float64(polls))
	m.confirmationDuration.WithLabelValues(outcome).Observe(duration)
}

// RecordPriorityFee records the maximum priority fee of a transaction.
func (m *Metrics) RecordPriorityFee(lamports uint64) {
	if m == nil {
		return
	}
	m.priorityFeeLamports.Observe(float64(lamports))
}

// RecordBlockhashRecompile records a recompilation caused by an expired blockhash.
func (m *Metrics) RecordBlockhashRecompile() {
	if m == nil {
		return
	}
	m.blockhashRecompilesTotal.Inc()
}

// Orchestrator metric helpers

// RecordWalletAdmitted adjusts the in-flight gauge by delta.
func (m *Metrics) RecordWalletAdmitted(delta float64) {
	if m == nil {
		return
	}
	m.walletsInFlight.Add(delta)
}

// RecordWorkflowDuration records a wallet workflow execution.
func (m *Metrics) RecordWorkflowDuration(workflow, status string, duration float64) {
	if m == nil {
		return
	}
	m.workflowDuration.WithLabelValues(workflow, status).Observe(duration)
	m.workflowExecutionsTotal.WithLabelValues(workflow, status).Inc()
}

// RecordActionDuration records a single plan action.
func (m *Metrics) RecordActionDuration(action, status string, duration float64) {
	if m == nil {
		return
	}
	m.actionDuration.WithLabelValues(action, status).Observe(duration)
}

// RecordCycle records a completed orchestration cycle.
func (m *Metrics) RecordCycle() {
	if m == nil {
		return
	}
	m.cyclesTotal.Inc()
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
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

func statusCodeToString(code int) string {
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
