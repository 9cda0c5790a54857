// Package assess scores conversations for the operator dashboard. One
// assessment runs per conversation at a time; overlapping triggers are
// dropped, not queued, because a later inbound will trigger a fresh pass
// anyway.
package assess

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/obsidianauto/tint-ai-platform/internal/store"
	"github.com/obsidianauto/tint-ai-platform/pkg/logging"
)

var tracer = otel.Tracer("tint.internal.assess")

// Storage is the persistence slice the assessor needs.
type Storage interface {
	ListMessages(ctx context.Context, conversationID uuid.UUID) ([]store.Message, error)
	GetWorkflowState(ctx context.Context, conversationID uuid.UUID) (*store.WorkflowState, error)
	UpsertAssessment(ctx context.Context, a store.LeadAssessment) error
}

// Analyzer turns a transcript into a scored assessment.
type Analyzer interface {
	AnalyzeLead(ctx context.Context, messages []store.Message, stage string) (store.LeadAssessment, error)
}

// Assessor runs lead scoring with per-conversation dedup.
type Assessor struct {
	store    Storage
	analyzer Analyzer
	logger   *logging.Logger

	mu       sync.Mutex
	inFlight map[uuid.UUID]struct{}
}

func New(storage Storage, analyzer Analyzer, logger *logging.Logger) *Assessor {
	if storage == nil {
		panic("assess: storage cannot be nil")
	}
	if analyzer == nil {
		panic("assess: analyzer cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Assessor{
		store:    storage,
		analyzer: analyzer,
		logger:   logger,
		inFlight: make(map[uuid.UUID]struct{}),
	}
}

// Trigger runs one assessment pass for the conversation. When a pass is
// already in flight for the same conversation, it returns immediately.
func (a *Assessor) Trigger(ctx context.Context, conversationID uuid.UUID) {
	a.mu.Lock()
	if _, busy := a.inFlight[conversationID]; busy {
		a.mu.Unlock()
		a.logger.Debug("lead assessment already in flight", "conversation_id", conversationID)
		return
	}
	a.inFlight[conversationID] = struct{}{}
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		delete(a.inFlight, conversationID)
		a.mu.Unlock()
	}()

	ctx, span := tracer.Start(ctx, "assess.trigger")
	defer span.End()
	span.SetAttributes(attribute.String("tint.conversation_id", conversationID.String()))

	messages, err := a.store.ListMessages(ctx, conversationID)
	if err != nil {
		a.logger.Error("lead assessment: load history", "conversation_id", conversationID, "error", err)
		return
	}
	if len(messages) == 0 {
		return
	}

	stage := ""
	if state, err := a.store.GetWorkflowState(ctx, conversationID); err != nil {
		a.logger.Error("lead assessment: load workflow state", "conversation_id", conversationID, "error", err)
	} else if state != nil {
		stage = state.Stage
	}

	assessment, err := a.analyzer.AnalyzeLead(ctx, messages, stage)
	if err != nil {
		a.logger.Error("lead assessment failed", "conversation_id", conversationID, "error", err)
		return
	}
	assessment.ConversationID = conversationID
	if assessment.Stage == "" {
		assessment.Stage = stage
	}

	if err := a.store.UpsertAssessment(ctx, assessment); err != nil {
		a.logger.Error("lead assessment: persist", "conversation_id", conversationID, "error", err)
		return
	}

	a.logger.Info("lead assessment updated",
		"conversation_id", conversationID,
		"probability", assessment.Probability,
		"sentiment", assessment.Sentiment)
}
