package agents

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/obsidianauto/tint-ai-platform/internal/respond"
	"github.com/obsidianauto/tint-ai-platform/internal/store"
	"github.com/obsidianauto/tint-ai-platform/internal/workflow"
	"github.com/obsidianauto/tint-ai-platform/pkg/logging"
)

// ConversationReader re-reads a conversation at dispatch time; an earlier
// agent or the operator may have toggled AI since the event was built.
type ConversationReader interface {
	GetConversationByPhone(ctx context.Context, phone string) (*store.Conversation, error)
}

// ContextProvider returns the current workflow snapshot for a conversation.
type ContextProvider interface {
	ContextFor(ctx context.Context, conversationID uuid.UUID) (*workflow.Context, error)
}

// ReplyScheduler debounces reply jobs per phone.
type ReplyScheduler interface {
	Schedule(job respond.Job)
	Cancel(phone string)
}

// AutoResponder schedules a debounced AI reply for each inbound message,
// and cancels pending replies when AI is off or a human call connected.
type AutoResponder struct {
	Identity
	conversations ConversationReader
	contexts      ContextProvider
	scheduler     ReplyScheduler
	logger        *logging.Logger
}

func NewAutoResponder(conversations ConversationReader, contexts ContextProvider, scheduler ReplyScheduler, logger *logging.Logger) *AutoResponder {
	if conversations == nil {
		panic("agents: conversation reader cannot be nil")
	}
	if contexts == nil {
		panic("agents: context provider cannot be nil")
	}
	if scheduler == nil {
		panic("agents: scheduler cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AutoResponder{
		Identity: Identity{
			AgentID:   "auto-responder",
			AgentName: "Auto Responder",
			AgentDesc: "Sends debounced AI replies to inbound texts",
		},
		conversations: conversations,
		contexts:      contexts,
		scheduler:     scheduler,
		logger:        logger,
	}
}

func (a *AutoResponder) HandleMessage(ctx context.Context, mc MessageContext) error {
	conv, err := a.conversations.GetConversationByPhone(ctx, mc.Conversation.Phone)
	if err != nil {
		return fmt.Errorf("auto responder: reload conversation: %w", err)
	}
	if conv == nil || !conv.AIEnabled {
		a.scheduler.Cancel(mc.Conversation.Phone)
		a.logger.Debug("auto reply suppressed: ai disabled", "phone", mc.Conversation.Phone)
		return nil
	}

	wctx, err := a.contexts.ContextFor(ctx, conv.ID)
	if err != nil {
		return fmt.Errorf("auto responder: workflow context: %w", err)
	}

	a.scheduler.Schedule(respond.Job{
		Phone:             conv.Phone,
		Context:           wctx,
		ExpectedInboundID: mc.Message.ID,
	})
	return nil
}

// HandleCall cancels any pending reply once a human conversation happened;
// texting over a live call reads as tone deaf.
func (a *AutoResponder) HandleCall(_ context.Context, cc CallContext) error {
	if cc.Answered {
		a.scheduler.Cancel(cc.Conversation.Phone)
	}
	return nil
}
