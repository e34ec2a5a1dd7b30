// Package observability exposes Prometheus metrics for the harness.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type harnessMetrics struct {
	agentRunTotal    *prometheus.CounterVec
	agentRunDuration *prometheus.HistogramVec
	agentTurnsTotal  prometheus.Counter

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec

	mcpRequestTotal   *prometheus.CounterVec
	mcpServersReady   prometheus.Gauge
	activeSessions    prometheus.Gauge
	compactionsTotal  prometheus.Counter
	subagentRunsTotal *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *harnessMetrics
)

func getMetrics() *harnessMetrics {
	metricsOnce.Do(func() {
		m := &harnessMetrics{
			agentRunTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "rune_agent_run_total",
					Help: "Total agent runs by agent name and status.",
				},
				[]string{"agent", "status"},
			),
			agentRunDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "rune_agent_run_duration_seconds",
					Help:    "Agent run duration in seconds by agent name.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"agent"},
			),
			agentTurnsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "rune_agent_turns_total",
					Help: "Total model-backend turns across all agent runs.",
				},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "rune_tool_execution_total",
					Help: "Total tool executions by tool name and outcome.",
				},
				[]string{"tool", "outcome"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "rune_tool_execution_duration_seconds",
					Help:    "Tool execution duration in seconds by tool name.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			mcpRequestTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "rune_mcp_request_total",
					Help: "Total MCP requests by server and outcome.",
				},
				[]string{"server", "outcome"},
			),
			mcpServersReady: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "rune_mcp_servers_ready",
					Help: "Number of MCP servers currently ready.",
				},
			),
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "rune_active_sessions",
					Help: "Number of persisted sessions.",
				},
			),
			compactionsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "rune_session_compactions_total",
					Help: "Total session compactions performed.",
				},
			),
			subagentRunsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "rune_subagent_runs_total",
					Help: "Total subagent runs by status.",
				},
				[]string{"status"},
			),
		}

		prometheus.MustRegister(
			m.agentRunTotal,
			m.agentRunDuration,
			m.agentTurnsTotal,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.mcpRequestTotal,
			m.mcpServersReady,
			m.activeSessions,
			m.compactionsTotal,
			m.subagentRunsTotal,
		)

		metricsInst = m
	})
	return metricsInst
}

// EnsureRegistered forces metric registration. Safe to call from any package init path.
func EnsureRegistered() {
	getMetrics()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

// RecordAgentRun records one completed agent run.
func RecordAgentRun(agent string, d time.Duration, success bool) {
	m := getMetrics()
	status := "success"
	if !success {
		status = "error"
	}
	m.agentRunTotal.WithLabelValues(agent, status).Inc()
	m.agentRunDuration.WithLabelValues(agent).Observe(d.Seconds())
}

// RecordAgentTurn records one model-backend turn.
func RecordAgentTurn() {
	getMetrics().agentTurnsTotal.Inc()
}

// RecordToolExecution records one tool execution.
func RecordToolExecution(tool string, d time.Duration, success bool) {
	m := getMetrics()
	outcome := "success"
	if !success {
		outcome = "error"
	}
	m.toolExecutionTotal.WithLabelValues(tool, outcome).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// RecordMCPRequest records one MCP request.
func RecordMCPRequest(server, outcome string) {
	getMetrics().mcpRequestTotal.WithLabelValues(server, outcome).Inc()
}

// SetMCPServersReady sets the count of ready MCP servers.
func SetMCPServersReady(n int) {
	getMetrics().mcpServersReady.Set(float64(n))
}

// SetActiveSessions sets the persisted session count.
func SetActiveSessions(n int) {
	getMetrics().activeSessions.Set(float64(n))
}

// RecordCompaction records one session compaction.
func RecordCompaction() {
	getMetrics().compactionsTotal.Inc()
}

// RecordSubagentRun records one subagent run.
func RecordSubagentRun(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	getMetrics().subagentRunsTotal.WithLabelValues(status).Inc()
}
