package agents

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/obsidianauto/tint-ai-platform/internal/observability/metrics"
	"github.com/obsidianauto/tint-ai-platform/pkg/logging"
)

var tracer = otel.Tracer("tint.internal.agents")

// Registry multicasts inbound events to every registered agent, in
// registration order. A handler error is logged and counted, never
// propagated: one broken agent must not starve the rest.
type Registry struct {
	agents  []Agent
	metrics *metrics.PipelineMetrics
	logger  *logging.Logger
}

func NewRegistry(m *metrics.PipelineMetrics, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Default()
	}
	return &Registry{metrics: m, logger: logger}
}

// Register appends an agent. Registration order is dispatch order.
func (r *Registry) Register(a Agent) {
	if a == nil {
		panic("agents: cannot register nil agent")
	}
	r.agents = append(r.agents, a)
	r.logger.Info("agent registered", "agent_id", a.ID(), "name", a.Name())
}

// Agents returns the registered agents in dispatch order.
func (r *Registry) Agents() []Agent {
	return append([]Agent(nil), r.agents...)
}

// DispatchMessage runs every message-capable agent sequentially against the
// event. Agents without message capability are skipped.
func (r *Registry) DispatchMessage(ctx context.Context, mc MessageContext) {
	ctx, span := tracer.Start(ctx, "agents.dispatch_message")
	defer span.End()
	span.SetAttributes(attribute.String("tint.phone", mc.Conversation.Phone))

	for _, a := range r.agents {
		handler, ok := a.(MessageAgent)
		if !ok {
			continue
		}
		if err := handler.HandleMessage(ctx, mc); err != nil {
			r.metrics.ObserveAgentFailure(a.ID())
			r.logger.Error("agent failed on message",
				"agent_id", a.ID(),
				"phone", mc.Conversation.Phone,
				"error", err)
		}
	}
}

// DispatchCall runs every call-capable agent sequentially against the event.
func (r *Registry) DispatchCall(ctx context.Context, cc CallContext) {
	ctx, span := tracer.Start(ctx, "agents.dispatch_call")
	defer span.End()
	span.SetAttributes(attribute.String("tint.call_sid", cc.CallSID))

	for _, a := range r.agents {
		handler, ok := a.(CallAgent)
		if !ok {
			continue
		}
		if err := handler.HandleCall(ctx, cc); err != nil {
			r.metrics.ObserveAgentFailure(a.ID())
			r.logger.Error("agent failed on call",
				"agent_id", a.ID(),
				"call_sid", cc.CallSID,
				"error", err)
		}
	}
}
