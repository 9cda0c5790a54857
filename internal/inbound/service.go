// Package inbound turns raw Twilio events into persisted conversation state
// and fans them out to the agent registry.
package inbound

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/obsidianauto/tint-ai-platform/internal/agents"
	"github.com/obsidianauto/tint-ai-platform/internal/messaging"
	"github.com/obsidianauto/tint-ai-platform/internal/observability/metrics"
	"github.com/obsidianauto/tint-ai-platform/internal/store"
	"github.com/obsidianauto/tint-ai-platform/internal/workflow"
	"github.com/obsidianauto/tint-ai-platform/pkg/logging"
)

var tracer = otel.Tracer("tint.internal.inbound")

// Storage is the persistence slice the inbound service needs.
type Storage interface {
	UpsertConversationByPhone(ctx context.Context, nc store.NewConversation) (store.Conversation, bool, error)
	InsertMessage(ctx context.Context, m store.Message) (store.Message, error)
	GetMessageByExternalID(ctx context.Context, source, externalID string) (*store.Message, error)
	UpdateMessageStatus(ctx context.Context, id uuid.UUID, status store.MessageStatus) error
	UpdateConversation(ctx context.Context, phone string, upd store.ConversationUpdate) (store.Conversation, error)
}

// Dispatcher multicasts the event to registered agents.
type Dispatcher interface {
	DispatchMessage(ctx context.Context, mc agents.MessageContext)
	DispatchCall(ctx context.Context, cc agents.CallContext)
}

// Sender transmits the call follow-up text.
type Sender interface {
	Send(ctx context.Context, to, body string) error
}

// FlagMarker records the follow-up text in workflow flags.
type FlagMarker interface {
	MarkOutbound(ctx context.Context, conversationID uuid.UUID, responseText string, wctx *workflow.Context) error
}

// CallPolicy decides when a call counts as answered and what follow-up text
// each outcome gets.
type CallPolicy struct {
	MinAnswerSeconds int
	AnsweredReply    string
	MissedReply      string
}

// Service is the entry point for webhook-delivered events.
type Service struct {
	store      Storage
	dispatcher Dispatcher
	sender     Sender
	marker     FlagMarker
	callPolicy CallPolicy
	metrics    *metrics.PipelineMetrics
	logger     *logging.Logger
}

func NewService(storage Storage, dispatcher Dispatcher, sender Sender, marker FlagMarker, callPolicy CallPolicy, m *metrics.PipelineMetrics, logger *logging.Logger) *Service {
	if storage == nil {
		panic("inbound: storage cannot be nil")
	}
	if dispatcher == nil {
		panic("inbound: dispatcher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		store:      storage,
		dispatcher: dispatcher,
		sender:     sender,
		marker:     marker,
		callPolicy: callPolicy,
		metrics:    m,
		logger:     logger,
	}
}

// HandleMessage persists one inbound SMS and dispatches it. Redelivered
// webhooks (same MessageSid) are dropped silently.
func (s *Service) HandleMessage(ctx context.Context, sms messaging.InboundSMS) error {
	ctx, span := tracer.Start(ctx, "inbound.message")
	defer span.End()
	span.SetAttributes(attribute.String("tint.phone", sms.From))

	if sms.MessageSID != "" {
		existing, err := s.store.GetMessageByExternalID(ctx, "twilio", sms.MessageSID)
		if err != nil {
			return fmt.Errorf("inbound: dedup lookup: %w", err)
		}
		if existing != nil {
			s.logger.Debug("duplicate sms webhook dropped", "message_sid", sms.MessageSID)
			return nil
		}
	}

	conv, created, err := s.store.UpsertConversationByPhone(ctx, store.NewConversation{
		Phone:         sms.From,
		ChannelHandle: sms.To,
		LastMessage:   sms.Body,
		NeedsReply:    true,
	})
	if err != nil {
		return fmt.Errorf("inbound: upsert conversation: %w", err)
	}

	msg, err := s.store.InsertMessage(ctx, store.Message{
		ConversationID: conv.ID,
		Text:           sms.Body,
		Direction:      store.DirectionInbound,
		Status:         store.StatusSent,
		Source:         "twilio",
		ExternalID:     sms.MessageSID,
	})
	if err != nil {
		return fmt.Errorf("inbound: persist message: %w", err)
	}

	s.metrics.ObserveInbound("sms")
	s.logger.Info("inbound sms accepted",
		"phone", sms.From,
		"new_conversation", created,
		"chars", len(sms.Body))

	s.dispatcher.DispatchMessage(ctx, agents.MessageContext{
		Message:           msg,
		Conversation:      conv,
		IsNewConversation: created,
	})
	return nil
}

// HandleCall processes a completed voice call. An answered call hands the
// thread to the human who took it: AI replies stop until the operator turns
// them back on. Both outcomes send a follow-up text.
func (s *Service) HandleCall(ctx context.Context, call messaging.InboundCall) error {
	ctx, span := tracer.Start(ctx, "inbound.call")
	defer span.End()
	span.SetAttributes(
		attribute.String("tint.phone", call.From),
		attribute.String("tint.call_status", call.CallStatus),
	)

	conv, _, err := s.store.UpsertConversationByPhone(ctx, store.NewConversation{
		Phone:         call.From,
		ChannelHandle: call.To,
	})
	if err != nil {
		return fmt.Errorf("inbound: upsert conversation: %w", err)
	}

	answered := call.CallStatus == "completed" && call.DurationSeconds >= s.callPolicy.MinAnswerSeconds

	if answered {
		aiOff := false
		now := time.Now().UTC()
		conv, err = s.store.UpdateConversation(ctx, conv.Phone, store.ConversationUpdate{
			AIEnabled:        &aiOff,
			CallSuppressedAt: &now,
		})
		if err != nil {
			return fmt.Errorf("inbound: suppress ai after call: %w", err)
		}
		s.logger.Info("ai suppressed after answered call",
			"phone", call.From,
			"duration_s", call.DurationSeconds)
	}

	s.metrics.ObserveInbound("voice")

	followUp := s.callPolicy.MissedReply
	if answered {
		followUp = s.callPolicy.AnsweredReply
	}
	if followUp != "" && s.sender != nil {
		s.sendFollowUp(ctx, conv, followUp)
	}

	s.dispatcher.DispatchCall(ctx, agents.CallContext{
		Conversation:    conv,
		CallSID:         call.CallSID,
		CallStatus:      call.CallStatus,
		DurationSeconds: call.DurationSeconds,
		Answered:        answered,
	})
	return nil
}

func (s *Service) sendFollowUp(ctx context.Context, conv store.Conversation, body string) {
	record, err := s.store.InsertMessage(ctx, store.Message{
		ConversationID: conv.ID,
		Text:           body,
		Direction:      store.DirectionOutbound,
		Status:         store.StatusSending,
		Source:         "system",
	})
	if err != nil {
		s.logger.Error("call follow-up: persist", "phone", conv.Phone, "error", err)
		return
	}

	if err := s.sender.Send(ctx, conv.Phone, body); err != nil {
		s.logger.Error("call follow-up: send", "phone", conv.Phone, "error", err)
		if err := s.store.UpdateMessageStatus(ctx, record.ID, store.StatusFailed); err != nil {
			s.logger.Error("call follow-up: mark failed", "phone", conv.Phone, "error", err)
		}
		return
	}
	if err := s.store.UpdateMessageStatus(ctx, record.ID, store.StatusSent); err != nil {
		s.logger.Error("call follow-up: mark sent", "phone", conv.Phone, "error", err)
	}

	if s.marker != nil {
		if err := s.marker.MarkOutbound(ctx, conv.ID, body, nil); err != nil {
			s.logger.Error("call follow-up: mark workflow outbound", "phone", conv.Phone, "error", err)
		}
	}
}
