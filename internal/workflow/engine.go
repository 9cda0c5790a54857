package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/obsidianauto/tint-ai-platform/internal/store"
	"github.com/obsidianauto/tint-ai-platform/pkg/logging"
)

// Storage is the slice of the persistence layer the engine needs.
type Storage interface {
	ListMessages(ctx context.Context, conversationID uuid.UUID) ([]store.Message, error)
	GetWorkflowState(ctx context.Context, conversationID uuid.UUID) (*store.WorkflowState, error)
	UpsertWorkflowState(ctx context.Context, ws store.WorkflowState) error
	UpdateConversation(ctx context.Context, phone string, upd store.ConversationUpdate) (store.Conversation, error)
}

// Extractor turns tagged conversation history plus the known profile into
// intent signals and candidate profile fields. It may fail; the engine fails
// open on any error.
type Extractor interface {
	ExtractSignals(ctx context.Context, history string, known Profile) (Extraction, error)
}

// Notifier alerts a human operator that a customer looks ready to book.
// Best-effort: failures are logged, never propagated.
type Notifier interface {
	NotifyReadyToBook(ctx context.Context, phone, notes string) error
}

// historyWindow is how many trailing messages the extractor sees.
const historyWindow = 12

var pricePattern = regexp.MustCompile(`\$[0-9]`)

// Engine recomputes each conversation's stage, profile, and flags from
// message history on every inbound event.
type Engine struct {
	store      Storage
	extractor  Extractor
	notifier   Notifier
	bookingURL string
	logger     *logging.Logger
}

func NewEngine(storage Storage, extractor Extractor, notifier Notifier, bookingURL string, logger *logging.Logger) *Engine {
	if storage == nil {
		panic("workflow: storage cannot be nil")
	}
	if extractor == nil {
		panic("workflow: extractor cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		store:      storage,
		extractor:  extractor,
		notifier:   notifier,
		bookingURL: bookingURL,
		logger:     logger,
	}
}

// UpdateFromInbound recomputes the workflow snapshot for conv after a new
// inbound message. Extraction failure returns the prior persisted snapshot
// unchanged; storage failures propagate.
func (e *Engine) UpdateFromInbound(ctx context.Context, conv store.Conversation) (Context, store.Conversation, error) {
	messages, err := e.store.ListMessages(ctx, conv.ID)
	if err != nil {
		return Context{}, conv, fmt.Errorf("workflow: load history: %w", err)
	}
	history := buildHistory(messages)
	historyText := concatenateTexts(messages)

	existing, err := e.store.GetWorkflowState(ctx, conv.ID)
	if err != nil {
		return Context{}, conv, fmt.Errorf("workflow: load state: %w", err)
	}
	data := Data{}
	priorStage := StageNew
	priorIntent := Intent("")
	if existing != nil {
		data = decodeData(existing.Data)
		if s := Stage(existing.Stage); s.Valid() {
			priorStage = s
		}
		priorIntent = Intent(existing.Intent)
	}

	extraction, err := e.extractor.ExtractSignals(ctx, history, data.Profile)
	if err != nil {
		// Fail open: keep the last known stage and profile rather than
		// corrupting state or surfacing the error to dispatch.
		e.logger.Error("workflow extraction failed; keeping last known state",
			"phone", conv.Phone, "error", err)
		return e.buildContext(priorStage, priorIntent, data), conv, nil
	}

	merged := mergeData(data, extraction)
	merged.Flags.BookingLinkSent = merged.Flags.BookingLinkSent ||
		(e.bookingURL != "" && strings.Contains(historyText, e.bookingURL))
	merged.Flags.PriceQuoted = merged.Flags.PriceQuoted || pricePattern.MatchString(historyText)

	stage := determineStage(merged, extraction)
	intent := extraction.Intent
	if intent == "" {
		intent = priorIntent
	}

	encoded, err := json.Marshal(merged)
	if err != nil {
		return Context{}, conv, fmt.Errorf("workflow: encode state: %w", err)
	}
	if err := e.store.UpsertWorkflowState(ctx, store.WorkflowState{
		ConversationID: conv.ID,
		Stage:          string(stage),
		Intent:         string(intent),
		Data:           encoded,
	}); err != nil {
		return Context{}, conv, err
	}

	readyToBook := conv.ReadyToBook || extraction.BookingIntent ||
		extraction.ScheduleRequest || merged.Profile.HasSchedulePreference()

	if readyToBook && !conv.ReadyToBook && e.notifier != nil {
		// Exactly once per conversation: guarded by the persisted
		// ready_to_book flag flipped just below.
		notifyCtx := context.WithoutCancel(ctx)
		phone, notes := conv.Phone, extraction.Notes
		go func() {
			if err := e.notifier.NotifyReadyToBook(notifyCtx, phone, notes); err != nil {
				e.logger.Error("ready-to-book notification failed", "phone", phone, "error", err)
			}
		}()
	}

	updatedConv := conv
	if readyToBook || extraction.OptOut {
		upd := store.ConversationUpdate{}
		if readyToBook {
			t := true
			upd.ReadyToBook = &t
		}
		if extraction.Notes != "" {
			notes := extraction.Notes
			upd.BookingNotes = &notes
		}
		if extraction.OptOut {
			f := false
			upd.AIEnabled = &f
		}
		updatedConv, err = e.store.UpdateConversation(ctx, conv.Phone, upd)
		if err != nil {
			return Context{}, conv, err
		}
	}

	return e.buildContext(stage, intent, merged), updatedConv, nil
}

// MarkOutbound sticky-updates the link/price flags after an outbound send.
// No-op when no workflow state exists yet or nothing changed.
func (e *Engine) MarkOutbound(ctx context.Context, conversationID uuid.UUID, responseText string, wctx *Context) error {
	state, err := e.store.GetWorkflowState(ctx, conversationID)
	if err != nil {
		return err
	}
	if state == nil {
		return nil
	}

	data := decodeData(state.Data)
	bookingLinkSent := data.Flags.BookingLinkSent ||
		(e.bookingURL != "" && strings.Contains(responseText, e.bookingURL))
	priceQuoted := data.Flags.PriceQuoted ||
		(wctx != nil && wctx.Stage == StageQuote) ||
		pricePattern.MatchString(responseText)

	if bookingLinkSent == data.Flags.BookingLinkSent && priceQuoted == data.Flags.PriceQuoted {
		return nil
	}

	data.Flags.BookingLinkSent = bookingLinkSent
	data.Flags.PriceQuoted = priceQuoted
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("workflow: encode state: %w", err)
	}
	return e.store.UpsertWorkflowState(ctx, store.WorkflowState{
		ConversationID: conversationID,
		Stage:          state.Stage,
		Intent:         state.Intent,
		Data:           encoded,
	})
}

// MarkBooked pins the conversation to the booked stage.
func (e *Engine) MarkBooked(ctx context.Context, conversationID uuid.UUID) error {
	state, err := e.store.GetWorkflowState(ctx, conversationID)
	if err != nil {
		return err
	}
	data := Data{}
	intent := ""
	if state != nil {
		data = decodeData(state.Data)
		intent = state.Intent
	}
	data.Flags.Booked = true

	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("workflow: encode state: %w", err)
	}
	return e.store.UpsertWorkflowState(ctx, store.WorkflowState{
		ConversationID: conversationID,
		Stage:          string(StageBooked),
		Intent:         intent,
		Data:           encoded,
	})
}

// ContextFor returns the persisted snapshot, or nil when none exists yet.
func (e *Engine) ContextFor(ctx context.Context, conversationID uuid.UUID) (*Context, error) {
	state, err := e.store.GetWorkflowState(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, nil
	}
	data := decodeData(state.Data)
	stage := Stage(state.Stage)
	if !stage.Valid() {
		stage = StageNew
	}
	c := e.buildContext(stage, Intent(state.Intent), data)
	return &c, nil
}

func (e *Engine) buildContext(stage Stage, intent Intent, data Data) Context {
	return Context{
		Stage:         stage,
		Intent:        intent,
		Profile:       data.Profile,
		Flags:         data.Flags,
		MissingFields: missingFields(data.Profile, stage),
		BookingURL:    e.bookingURL,
	}
}

// buildHistory renders the trailing window as sender-tagged lines.
func buildHistory(messages []store.Message) string {
	start := 0
	if len(messages) > historyWindow {
		start = len(messages) - historyWindow
	}
	lines := make([]string, 0, len(messages)-start)
	for _, m := range messages[start:] {
		sender := "Agent"
		if m.Direction == store.DirectionInbound {
			sender = "Customer"
		}
		lines = append(lines, sender+": "+m.Text)
	}
	return strings.Join(lines, "\n")
}

func concatenateTexts(messages []store.Message) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		parts = append(parts, m.Text)
	}
	return strings.Join(parts, " ")
}

// placeholders the extractor emits for "customer did not answer"; they must
// never overwrite a known value.
var placeholderValues = map[string]struct{}{
	"n/a": {}, "na": {}, "unknown": {}, "none": {},
}

func normalizeValue(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if _, bad := placeholderValues[strings.ToLower(trimmed)]; bad {
		return ""
	}
	return trimmed
}

func mergeProfile(existing Profile, candidate ExtractionProfile) Profile {
	overwrite := func(dst *string, raw string) {
		if v := normalizeValue(raw); v != "" {
			*dst = v
		}
	}
	overwrite(&existing.FullName, candidate.FullName)
	overwrite(&existing.Phone, candidate.Phone)
	overwrite(&existing.Location, candidate.Location)
	overwrite(&existing.VehicleYear, candidate.VehicleYear)
	overwrite(&existing.VehicleMake, candidate.VehicleMake)
	overwrite(&existing.VehicleModel, candidate.VehicleModel)
	overwrite(&existing.VehicleType, candidate.VehicleType)
	overwrite(&existing.TintType, candidate.TintType)
	overwrite(&existing.CoverageWanted, candidate.CoverageWanted)
	overwrite(&existing.PrimaryConcern, candidate.PrimaryConcern)
	overwrite(&existing.Budget, candidate.Budget)
	overwrite(&existing.PreferredDay, candidate.PreferredDay)
	overwrite(&existing.PreferredTime, candidate.PreferredTime)
	overwrite(&existing.Notes, candidate.Notes)
	return existing
}

func mergeData(existing Data, extraction Extraction) Data {
	merged := Data{
		Profile: mergeProfile(existing.Profile, extraction.Profile),
		Flags:   existing.Flags,
	}
	merged.Flags.OptOut = existing.Flags.OptOut || extraction.OptOut
	merged.LastIntent = extraction.Intent
	if merged.LastIntent == "" {
		merged.LastIntent = existing.LastIntent
	}
	merged.Notes = extraction.Notes
	if merged.Notes == "" {
		merged.Notes = existing.Notes
	}
	return merged
}

// determineStage evaluates the priority ladder top-down; first match wins.
func determineStage(data Data, extraction Extraction) Stage {
	if data.Flags.Booked {
		return StageBooked
	}
	if data.Flags.OptOut || extraction.OptOut || extraction.CallRequest {
		return StageHandoff
	}

	profile := data.Profile
	if profile.VehicleType == "" {
		return StageVehicle
	}
	if profile.CoverageWanted == "" {
		return StageService
	}
	if profile.TintType == "" {
		return StageQuote
	}
	if profile.Location == "" {
		return StageLocation
	}
	if !data.Flags.PriceQuoted {
		return StageQuote
	}

	hasSchedulePref := profile.HasSchedulePreference()
	wantsBooking := extraction.BookingIntent || extraction.ScheduleRequest || hasSchedulePref

	if wantsBooking && !data.Flags.BookingLinkSent {
		return StageBookingLink
	}
	if !hasSchedulePref {
		return StageSchedule
	}
	if data.Flags.BookingLinkSent {
		return StageBookingLink
	}
	return StageSchedule
}

func missingFields(profile Profile, stage Stage) []string {
	var missing []string
	if profile.VehicleType == "" {
		missing = append(missing, "vehicle_type")
	}
	if profile.CoverageWanted == "" {
		missing = append(missing, "coverage_wanted")
	}
	if profile.TintType == "" {
		missing = append(missing, "tint_type")
	}
	if profile.Location == "" {
		missing = append(missing, "location")
	}
	if stage == StageSchedule || stage == StageBookingLink {
		if !profile.HasSchedulePreference() {
			missing = append(missing, "preferred_day_or_time")
		}
	}
	return missing
}
