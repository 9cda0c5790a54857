package agents

import (
	"context"
	"fmt"

	"github.com/obsidianauto/tint-ai-platform/internal/store"
	"github.com/obsidianauto/tint-ai-platform/internal/workflow"
	"github.com/obsidianauto/tint-ai-platform/pkg/logging"
)

// WorkflowUpdater is the engine slice the workflow manager drives.
type WorkflowUpdater interface {
	UpdateFromInbound(ctx context.Context, conv store.Conversation) (workflow.Context, store.Conversation, error)
}

// WorkflowManager recomputes the sales-stage snapshot on every inbound
// message. It must be registered before the auto responder so the responder
// schedules against fresh state.
type WorkflowManager struct {
	Identity
	engine WorkflowUpdater
	logger *logging.Logger
}

func NewWorkflowManager(engine WorkflowUpdater, logger *logging.Logger) *WorkflowManager {
	if engine == nil {
		panic("agents: workflow engine cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WorkflowManager{
		Identity: Identity{
			AgentID:   "workflow-manager",
			AgentName: "Workflow Manager",
			AgentDesc: "Tracks each customer's sales stage and booking signals",
		},
		engine: engine,
		logger: logger,
	}
}

func (w *WorkflowManager) HandleMessage(ctx context.Context, mc MessageContext) error {
	wctx, _, err := w.engine.UpdateFromInbound(ctx, mc.Conversation)
	if err != nil {
		return fmt.Errorf("workflow manager: update: %w", err)
	}
	w.logger.Debug("workflow state updated",
		"phone", mc.Conversation.Phone,
		"stage", wctx.Stage,
		"intent", wctx.Intent)
	return nil
}
