package respond

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/obsidianauto/tint-ai-platform/internal/observability/metrics"
	"github.com/obsidianauto/tint-ai-platform/internal/store"
	"github.com/obsidianauto/tint-ai-platform/internal/workflow"
	"github.com/obsidianauto/tint-ai-platform/pkg/logging"
)

var responderTracer = otel.Tracer("tint.internal.respond")

// Storage is the persistence slice the responder needs.
type Storage interface {
	GetConversationByPhone(ctx context.Context, phone string) (*store.Conversation, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID) ([]store.Message, error)
	InsertMessage(ctx context.Context, m store.Message) (store.Message, error)
	UpdateMessageStatus(ctx context.Context, id uuid.UUID, status store.MessageStatus) error
	UpdateConversation(ctx context.Context, phone string, upd store.ConversationUpdate) (store.Conversation, error)
}

// Generator produces a candidate reply from history plus workflow context.
type Generator interface {
	GenerateReply(ctx context.Context, messages []store.Message, wctx *workflow.Context) (string, error)
}

// Sender transmits one outbound text to a customer.
type Sender interface {
	Send(ctx context.Context, to, body string) error
}

// FlagMarker sticky-updates workflow flags after an outbound send.
type FlagMarker interface {
	MarkOutbound(ctx context.Context, conversationID uuid.UUID, responseText string, wctx *workflow.Context) error
}

// Responder runs one debounced reply attempt end to end: staleness guard,
// generation, response policy, link personalization, send, persistence.
type Responder struct {
	store     Storage
	generator Generator
	sender    Sender
	marker    FlagMarker
	metrics   *metrics.PipelineMetrics
	logger    *logging.Logger
}

func NewResponder(storage Storage, generator Generator, sender Sender, marker FlagMarker, m *metrics.PipelineMetrics, logger *logging.Logger) *Responder {
	if storage == nil {
		panic("respond: storage cannot be nil")
	}
	if generator == nil {
		panic("respond: generator cannot be nil")
	}
	if sender == nil {
		panic("respond: sender cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Responder{
		store:     storage,
		generator: generator,
		sender:    sender,
		marker:    marker,
		metrics:   m,
		logger:    logger,
	}
}

// Run executes a fired reply job. Every early return is deliberate: the core
// never retries; webhook redelivery owns that.
func (r *Responder) Run(ctx context.Context, job Job) {
	ctx, span := responderTracer.Start(ctx, "respond.run")
	defer span.End()
	span.SetAttributes(attribute.String("tint.phone", job.Phone))

	conv, err := r.store.GetConversationByPhone(ctx, job.Phone)
	if err != nil {
		r.logger.Error("reply attempt: load conversation", "phone", job.Phone, "error", err)
		r.metrics.ObserveReply("storage_error")
		return
	}
	if conv == nil {
		r.logger.Debug("reply attempt: conversation not found", "phone", job.Phone)
		return
	}

	messages, err := r.store.ListMessages(ctx, conv.ID)
	if err != nil {
		r.logger.Error("reply attempt: load history", "phone", job.Phone, "error", err)
		r.metrics.ObserveReply("storage_error")
		return
	}
	if len(messages) == 0 {
		return
	}

	lastInbound := lastMessage(messages, store.DirectionInbound, "")
	if lastInbound == nil {
		return
	}

	// Staleness guard: a newer inbound arrived after this job was scheduled;
	// its own dispatch owns the reply.
	if job.ExpectedInboundID != uuid.Nil && lastInbound.ID != job.ExpectedInboundID {
		r.logger.Debug("reply attempt superseded by newer inbound", "phone", job.Phone)
		r.metrics.ObserveReply("stale")
		return
	}

	if messages[len(messages)-1].Direction == store.DirectionOutbound {
		r.logger.Debug("reply attempt skipped: last message is outbound", "phone", job.Phone)
		return
	}

	candidate, err := r.generator.GenerateReply(ctx, messages, job.Context)
	if err != nil {
		r.logger.Error("reply generation failed", "phone", job.Phone, "error", err)
		r.metrics.ObserveReply("generation_error")
		return
	}

	prepared := ApplyPolicy(PolicyInput{
		Response:       candidate,
		Messages:       messages,
		ConversationID: conv.ID.String(),
		Context:        job.Context,
	})

	sendText := prepared
	if job.Context != nil && job.Context.BookingURL != "" && strings.Contains(prepared, job.Context.BookingURL) {
		personalized := workflow.BookingLinkFor(job.Context.BookingURL, conv.Phone, conv.ID.String())
		sendText = strings.ReplaceAll(prepared, job.Context.BookingURL, personalized)
	}

	record, err := r.store.InsertMessage(ctx, store.Message{
		ConversationID: conv.ID,
		Text:           prepared,
		Direction:      store.DirectionOutbound,
		Status:         store.StatusSending,
		Source:         "ai",
	})
	if err != nil {
		r.logger.Error("reply attempt: persist outbound", "phone", job.Phone, "error", err)
		r.metrics.ObserveReply("storage_error")
		return
	}

	if err := r.sender.Send(ctx, conv.Phone, sendText); err != nil {
		r.logger.Error("reply send failed", "phone", job.Phone, "error", err)
		r.metrics.ObserveReply("send_error")
		if err := r.store.UpdateMessageStatus(ctx, record.ID, store.StatusFailed); err != nil {
			r.logger.Error("reply attempt: mark failed", "phone", job.Phone, "error", err)
		}
		return
	}

	if err := r.store.UpdateMessageStatus(ctx, record.ID, store.StatusSent); err != nil {
		r.logger.Error("reply attempt: mark sent", "phone", job.Phone, "error", err)
	}

	needsReply := false
	if _, err := r.store.UpdateConversation(ctx, conv.Phone, store.ConversationUpdate{
		LastMessage: &prepared,
		NeedsReply:  &needsReply,
	}); err != nil {
		r.logger.Error("reply attempt: update conversation", "phone", job.Phone, "error", err)
	}

	if r.marker != nil {
		if err := r.marker.MarkOutbound(ctx, conv.ID, prepared, job.Context); err != nil {
			r.logger.Error("reply attempt: mark workflow outbound", "phone", job.Phone, "error", err)
		}
	}

	r.metrics.ObserveReply("sent")
	r.logger.Info("automated reply sent", "phone", job.Phone, "chars", len(prepared))
}
