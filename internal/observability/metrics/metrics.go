// Package metrics wires Prometheus counters for the inbound pipeline.
// All methods are nil-safe so code under test can pass a nil receiver.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics covers the inbound event path: events accepted, agent
// failures, and reply outcomes.
type PipelineMetrics struct {
	inboundEvents *prometheus.CounterVec
	agentFailures *prometheus.CounterVec
	replyOutcomes *prometheus.CounterVec
}

// NewPipelineMetrics registers the pipeline counters on reg.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		inboundEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tint_inbound_events_total",
			Help: "Inbound events accepted for dispatch, by channel.",
		}, []string{"channel"}),
		agentFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tint_agent_failures_total",
			Help: "Agent handler errors swallowed by the dispatcher, by agent.",
		}, []string{"agent"}),
		replyOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tint_reply_outcomes_total",
			Help: "Terminal outcomes of debounced reply attempts.",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.inboundEvents, m.agentFailures, m.replyOutcomes)
	}
	return m
}

// ObserveInbound counts one accepted inbound event on a channel ("sms",
// "voice").
func (m *PipelineMetrics) ObserveInbound(channel string) {
	if m == nil {
		return
	}
	m.inboundEvents.WithLabelValues(channel).Inc()
}

// ObserveAgentFailure counts one swallowed handler error.
func (m *PipelineMetrics) ObserveAgentFailure(agent string) {
	if m == nil {
		return
	}
	m.agentFailures.WithLabelValues(agent).Inc()
}

// ObserveReply counts a terminal reply outcome ("sent", "stale",
// "generation_error", "send_error", "storage_error").
func (m *PipelineMetrics) ObserveReply(outcome string) {
	if m == nil {
		return
	}
	m.replyOutcomes.WithLabelValues(outcome).Inc()
}
