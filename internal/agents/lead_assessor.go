package agents

import (
	"context"

	"github.com/google/uuid"

	"github.com/obsidianauto/tint-ai-platform/pkg/logging"
)

// AssessmentTrigger fires one lead-scoring pass; overlapping triggers for a
// conversation are dropped inside the assessor.
type AssessmentTrigger interface {
	Trigger(ctx context.Context, conversationID uuid.UUID)
}

// LeadAssessor kicks off background lead scoring after each inbound message.
// The pass runs detached so a slow model call never delays dispatch.
type LeadAssessor struct {
	Identity
	assessor AssessmentTrigger
	logger   *logging.Logger
}

func NewLeadAssessor(assessor AssessmentTrigger, logger *logging.Logger) *LeadAssessor {
	if assessor == nil {
		panic("agents: assessor cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &LeadAssessor{
		Identity: Identity{
			AgentID:   "lead-assessor",
			AgentName: "Lead Assessor",
			AgentDesc: "Scores booking probability and sentiment per conversation",
		},
		assessor: assessor,
		logger:   logger,
	}
}

func (l *LeadAssessor) HandleMessage(ctx context.Context, mc MessageContext) error {
	go l.assessor.Trigger(context.WithoutCancel(ctx), mc.Conversation.ID)
	return nil
}
