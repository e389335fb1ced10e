package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Turn throughput and thread lifecycle
//   - Model request performance and token usage
//   - Tool dispatch patterns and latencies, including sandbox/netpolicy denials
//   - Error rates categorized by type and component
//   - Active thread counts for capacity planning
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.TurnStarted("thread-123")
//	defer metrics.ModelRequestDuration("bedrock", "claude-3-opus").Observe(time.Since(start).Seconds())
type Metrics struct {
	// TurnCounter tracks turns by thread source and direction.
	// Labels: source (user|cron|subagent), outcome (queued|completed)
	TurnCounter *prometheus.CounterVec

	// ModelRequestDuration measures model API call latency in seconds.
	// Labels: provider (bedrock|openai), model
	// Buckets: 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s, 60s
	ModelRequestDuration *prometheus.HistogramVec

	// ModelRequestCounter counts model requests by provider and model.
	// Labels: provider (bedrock|openai), model, status (success|error)
	ModelRequestCounter *prometheus.CounterVec

	// ModelTokensUsed tracks token consumption.
	// Labels: provider, model, type (prompt|completion)
	ModelTokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	// Buckets: 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s, 10s, 30s, 60s
	ToolExecutionDuration *prometheus.HistogramVec

	// ErrorCounter tracks errors by type and component.
	// Labels: component (turn|dispatch|thread|model), error_type
	ErrorCounter *prometheus.CounterVec

	// ActiveThreads is a gauge tracking current active threads.
	ActiveThreads *prometheus.GaugeVec

	// ThreadDuration measures thread lifetime in seconds.
	// Buckets: 60s, 300s, 600s, 1800s, 3600s, 7200s, 14400s, 28800s
	ThreadDuration *prometheus.HistogramVec

	// HTTPRequestDuration measures RPC gateway request latency.
	// Labels: method, path, status_code
	// Buckets: 0.001s, 0.005s, 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestCounter counts RPC gateway requests.
	// Labels: method, path, status_code
	HTTPRequestCounter *prometheus.CounterVec

	// StateDBQueryDuration measures statedb query latency.
	// Labels: operation (select|insert|update|delete), table
	// Buckets: 0.001s, 0.005s, 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s
	StateDBQueryDuration *prometheus.HistogramVec

	// StateDBQueryCounter counts statedb queries.
	// Labels: operation, table, status (success|error)
	StateDBQueryCounter *prometheus.CounterVec

	// DispatchReceived counts tool-call dispatches received.
	// Labels: tool_name, kind
	DispatchReceived *prometheus.CounterVec

	// DispatchDuration measures dispatch handler latency.
	// Labels: tool_name, kind
	// Buckets: 0.01s, 0.05s, 0.1s, 0.5s, 1s, 2s, 5s, 10s
	DispatchDuration *prometheus.HistogramVec

	// DispatchErrors counts dispatch handler errors.
	// Labels: tool_name, kind
	DispatchErrors *prometheus.CounterVec

	// SandboxDenied counts exec calls rejected by the sandbox policy.
	// Labels: reason
	SandboxDenied *prometheus.CounterVec

	// NetPolicyDenied counts outbound connections rejected by the network policy gate.
	// Labels: reason
	NetPolicyDenied *prometheus.CounterVec

	// TurnQueueDepth tracks current turn queue depth per thread.
	TurnQueueDepth *prometheus.GaugeVec

	// TurnQueueWait measures time spent waiting in a thread's turn queue.
	// Buckets: 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s, 60s
	TurnQueueWait *prometheus.HistogramVec

	// TurnProcessed counts turns by outcome.
	// Labels: outcome (completed|aborted|error)
	TurnProcessed *prometheus.CounterVec

	// ModelCostUSD tracks estimated cost in USD.
	// Labels: provider, model
	ModelCostUSD *prometheus.CounterVec

	// ContextWindowUsed tracks context window utilization.
	// Labels: provider, model
	// Buckets: 1000, 4000, 8000, 16000, 32000, 64000, 128000
	ContextWindowUsed *prometheus.HistogramVec

	// TurnStuck counts turns stuck in processing past their expected duration.
	TurnStuck *prometheus.CounterVec

	// RunAttempts counts run attempts (for retry tracking).
	// Labels: status (success|retry|failed)
	RunAttempts *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
// This should be called once at application startup.
//
// All metrics are automatically registered with Prometheus's default registry
// and will be available at the /metrics endpoint when using prometheus HTTP handler.
func NewMetrics() *Metrics {
	return &Metrics{
		TurnCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_core_turns_total",
				Help: "Total number of turns by source and outcome",
			},
			[]string{"source", "outcome"},
		),

		ModelRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexus_core_model_request_duration_seconds",
				Help:    "Duration of model API requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		ModelRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_core_model_requests_total",
				Help: "Total number of model requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		ModelTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_core_model_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_core_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexus_core_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_core_errors_total",
				Help: "Total number of errors by component and error type",
			},
			[]string{"component", "error_type"},
		),

		ActiveThreads: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nexus_core_active_threads",
				Help: "Current number of active threads",
			},
			[]string{"status"},
		),

		ThreadDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexus_core_thread_duration_seconds",
				Help:    "Duration of threads in seconds",
				Buckets: []float64{60, 300, 600, 1800, 3600, 7200, 14400, 28800},
			},
			[]string{"status"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexus_core_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status_code"},
		),

		HTTPRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_core_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),

		StateDBQueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexus_core_statedb_query_duration_seconds",
				Help:    "Duration of statedb queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"operation", "table"},
		),

		StateDBQueryCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_core_statedb_queries_total",
				Help: "Total number of statedb queries",
			},
			[]string{"operation", "table", "status"},
		),

		DispatchReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_core_dispatch_received_total",
				Help: "Total number of tool-call dispatches received",
			},
			[]string{"tool_name", "kind"},
		),

		DispatchDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexus_core_dispatch_duration_seconds",
				Help:    "Duration of dispatch handler execution in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"tool_name", "kind"},
		),

		DispatchErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_core_dispatch_errors_total",
				Help: "Total number of dispatch handler errors",
			},
			[]string{"tool_name", "kind"},
		),

		SandboxDenied: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_core_sandbox_denied_total",
				Help: "Total number of exec calls rejected by sandbox policy",
			},
			[]string{"reason"},
		),

		NetPolicyDenied: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_core_netpolicy_denied_total",
				Help: "Total number of outbound connections rejected by network policy",
			},
			[]string{"reason"},
		),

		TurnQueueDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nexus_core_turn_queue_depth",
				Help: "Current turn queue depth by thread",
			},
			[]string{"thread_id"},
		),

		TurnQueueWait: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexus_core_turn_queue_wait_seconds",
				Help:    "Time spent waiting in a thread's turn queue",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"thread_id"},
		),

		TurnProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_core_turns_processed_total",
				Help: "Total number of turns processed by outcome",
			},
			[]string{"outcome"},
		),

		ModelCostUSD: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_core_model_cost_usd_total",
				Help: "Estimated model API cost in USD",
			},
			[]string{"provider", "model"},
		),

		ContextWindowUsed: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexus_core_context_window_tokens",
				Help:    "Context window tokens used",
				Buckets: []float64{1000, 4000, 8000, 16000, 32000, 64000, 128000},
			},
			[]string{"provider", "model"},
		),

		TurnStuck: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_core_turn_stuck_total",
				Help: "Number of turns stuck in processing",
			},
			[]string{"thread_id"},
		),

		RunAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_core_run_attempts_total",
				Help: "Total number of run attempts by status",
			},
			[]string{"status"},
		),
	}
}

// TurnStarted increments the turn counter for a given source.
func (m *Metrics) TurnStarted(source string) {
	m.TurnCounter.WithLabelValues(source, "queued").Inc()
}

// RecordModelRequest records metrics for a model API request.
func (m *Metrics) RecordModelRequest(provider, model, status string, durationSeconds float64, promptTokens, completionTokens int) {
	m.ModelRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.ModelRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.ModelTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.ModelTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordToolExecution records metrics for a tool execution.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordError increments the error counter for a given component and error type.
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}

// ThreadStarted increments the active threads gauge.
func (m *Metrics) ThreadStarted() {
	m.ActiveThreads.WithLabelValues("active").Inc()
}

// ThreadEnded decrements the active threads gauge and records thread duration.
func (m *Metrics) ThreadEnded(durationSeconds float64) {
	m.ActiveThreads.WithLabelValues("active").Dec()
	m.ThreadDuration.WithLabelValues("closed").Observe(durationSeconds)
}

// RecordHTTPRequest records metrics for an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, durationSeconds float64) {
	m.HTTPRequestCounter.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
}

// RecordStateDBQuery records metrics for a statedb query.
func (m *Metrics) RecordStateDBQuery(operation, table, status string, durationSeconds float64) {
	m.StateDBQueryCounter.WithLabelValues(operation, table, status).Inc()
	m.StateDBQueryDuration.WithLabelValues(operation, table).Observe(durationSeconds)
}

// RecordDispatchReceived records a tool-call dispatch receipt.
func (m *Metrics) RecordDispatchReceived(toolName, kind string) {
	m.DispatchReceived.WithLabelValues(toolName, kind).Inc()
}

// RecordDispatchProcessed records dispatch handler completion.
func (m *Metrics) RecordDispatchProcessed(toolName, kind string, durationSeconds float64, err error) {
	m.DispatchDuration.WithLabelValues(toolName, kind).Observe(durationSeconds)
	if err != nil {
		m.DispatchErrors.WithLabelValues(toolName, kind).Inc()
	}
}

// RecordSandboxDenied records a sandbox policy rejection.
func (m *Metrics) RecordSandboxDenied(reason string) {
	m.SandboxDenied.WithLabelValues(reason).Inc()
}

// RecordNetPolicyDenied records a network policy rejection.
func (m *Metrics) RecordNetPolicyDenied(reason string) {
	m.NetPolicyDenied.WithLabelValues(reason).Inc()
}

// SetTurnQueueDepth sets the current turn queue depth for a thread.
func (m *Metrics) SetTurnQueueDepth(threadID string, depth int) {
	m.TurnQueueDepth.WithLabelValues(threadID).Set(float64(depth))
}

// RecordTurnQueued records a turn being queued on a thread.
func (m *Metrics) RecordTurnQueued(threadID string) {
	m.TurnQueueDepth.WithLabelValues(threadID).Inc()
}

// RecordTurnDequeued records a turn being picked up from a thread's queue.
func (m *Metrics) RecordTurnDequeued(threadID string, waitSeconds float64) {
	m.TurnQueueDepth.WithLabelValues(threadID).Dec()
	m.TurnQueueWait.WithLabelValues(threadID).Observe(waitSeconds)
}

// RecordTurnProcessed records turn processing completion.
func (m *Metrics) RecordTurnProcessed(outcome string) {
	m.TurnProcessed.WithLabelValues(outcome).Inc()
}

// RecordModelCost records estimated API cost.
func (m *Metrics) RecordModelCost(provider, model string, costUSD float64) {
	m.ModelCostUSD.WithLabelValues(provider, model).Add(costUSD)
}

// RecordContextWindow records context window utilization.
func (m *Metrics) RecordContextWindow(provider, model string, tokensUsed int) {
	m.ContextWindowUsed.WithLabelValues(provider, model).Observe(float64(tokensUsed))
}

// RecordTurnStuck records a turn detected as stuck.
func (m *Metrics) RecordTurnStuck(threadID string) {
	m.TurnStuck.WithLabelValues(threadID).Inc()
}

// RecordRunAttempt records a run attempt.
func (m *Metrics) RecordRunAttempt(status string) {
	m.RunAttempts.WithLabelValues(status).Inc()
}
