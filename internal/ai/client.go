// Package ai wraps the OpenAI chat API behind the three model calls the
// pipeline makes: signal extraction, reply generation, and lead scoring.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/obsidianauto/tint-ai-platform/internal/store"
	"github.com/obsidianauto/tint-ai-platform/internal/workflow"
	"github.com/obsidianauto/tint-ai-platform/pkg/logging"
)

const replySystemPrompt = "You are the SMS assistant for Obsidian Auto Works, a mobile window tinting shop serving Orange County. You text like a helpful shop employee: friendly, concise, no emoji walls, one question at a time. Never invent prices outside the quote guidance you are given, and never promise a time slot; booking happens through the link."

const extractionSystemPrompt = "You extract structured sales signals from an SMS transcript between a window tint shop and a customer. Respond with a single JSON object and nothing else. Use empty strings for unknown values; never guess. Fields: intent, booking_intent, schedule_request, call_request, opt_out, profile {full_name, phone, location, vehicle_year, vehicle_make, vehicle_model, vehicle_type, tint_type, coverage_wanted, primary_concern, budget, preferred_day, preferred_time, notes}, notes."

const assessmentSystemPrompt = "You score window tint sales leads from an SMS transcript. Respond with a single JSON object and nothing else. Fields: probability (0-100 integer likelihood the lead books), est_value (dollar range as text), sentiment (cold|lukewarm|warm|hot), vehicle_info, tint_preference, coverage, notes (one or two sentences for the shop owner)."

var tracer = otel.Tracer("tint.internal.ai")

// ErrExtractionShape marks a completion that was not the JSON object the
// extraction contract requires. Callers treat it as any other extraction
// failure and fail open.
var ErrExtractionShape = errors.New("ai: extraction response is not the expected JSON shape")

type chatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client is the OpenAI-backed implementation of the pipeline's model calls.
type Client struct {
	client chatClient
	model  string
	logger *logging.Logger
}

func NewClient(client chatClient, model string, logger *logging.Logger) *Client {
	if client == nil {
		panic("ai: chat client cannot be nil")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{client: client, model: model, logger: logger}
}

// ExtractSignals classifies the latest customer message and pulls profile
// facts from the transcript. known is included so the model only has to fill
// gaps, not re-derive settled facts.
func (c *Client) ExtractSignals(ctx context.Context, history string, known workflow.Profile) (workflow.Extraction, error) {
	ctx, span := tracer.Start(ctx, "ai.extract_signals")
	defer span.End()

	knownJSON, err := json.Marshal(known)
	if err != nil {
		return workflow.Extraction{}, fmt.Errorf("ai: marshal known profile: %w", err)
	}

	content, err := c.complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: extractionSystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: "Known profile:\n" + string(knownJSON) + "\n\nTranscript:\n" + history},
	}, true)
	if err != nil {
		return workflow.Extraction{}, err
	}

	var extraction workflow.Extraction
	if err := json.Unmarshal([]byte(content), &extraction); err != nil {
		span.RecordError(err)
		return workflow.Extraction{}, fmt.Errorf("%w: %v", ErrExtractionShape, err)
	}
	return extraction, nil
}

// GenerateReply drafts the next outbound text from the transcript and the
// current workflow snapshot.
func (c *Client) GenerateReply(ctx context.Context, messages []store.Message, wctx *workflow.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "ai.generate_reply")
	defer span.End()
	span.SetAttributes(attribute.Int("tint.history_len", len(messages)))

	system := replySystemPrompt
	if wctx != nil {
		system += "\n\n" + workflow.BuildSystemPrompt(*wctx)
	}

	history := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
	}
	for _, m := range messages {
		role := openai.ChatMessageRoleAssistant
		if m.Direction == store.DirectionInbound {
			role = openai.ChatMessageRoleUser
		}
		history = append(history, openai.ChatCompletionMessage{Role: role, Content: m.Text})
	}

	reply, err := c.complete(ctx, history, false)
	if err != nil {
		return "", err
	}
	return reply, nil
}

// AnalyzeLead scores the transcript for the operator dashboard.
func (c *Client) AnalyzeLead(ctx context.Context, messages []store.Message, stage string) (store.LeadAssessment, error) {
	ctx, span := tracer.Start(ctx, "ai.analyze_lead")
	defer span.End()

	var transcript strings.Builder
	for _, m := range messages {
		if m.Direction == store.DirectionInbound {
			transcript.WriteString("Customer: ")
		} else {
			transcript.WriteString("Agent: ")
		}
		transcript.WriteString(m.Text)
		transcript.WriteString("\n")
	}

	prompt := "Sales stage: " + stage + "\n\nTranscript:\n" + transcript.String()
	content, err := c.complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: assessmentSystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}, true)
	if err != nil {
		return store.LeadAssessment{}, err
	}

	var wire struct {
		Probability    int    `json:"probability"`
		EstValue       string `json:"est_value"`
		Sentiment      string `json:"sentiment"`
		VehicleInfo    string `json:"vehicle_info"`
		TintPreference string `json:"tint_preference"`
		Coverage       string `json:"coverage"`
		Notes          string `json:"notes"`
	}
	if err := json.Unmarshal([]byte(content), &wire); err != nil {
		span.RecordError(err)
		return store.LeadAssessment{}, fmt.Errorf("ai: decode assessment: %w", err)
	}
	if wire.Probability < 0 {
		wire.Probability = 0
	}
	if wire.Probability > 100 {
		wire.Probability = 100
	}

	return store.LeadAssessment{
		Stage:          stage,
		Probability:    wire.Probability,
		EstValue:       wire.EstValue,
		Sentiment:      wire.Sentiment,
		VehicleInfo:    wire.VehicleInfo,
		TintPreference: wire.TintPreference,
		Coverage:       wire.Coverage,
		Notes:          wire.Notes,
	}, nil
}

func (c *Client) complete(ctx context.Context, history []openai.ChatCompletionMessage, jsonMode bool) (string, error) {
	ctx, span := tracer.Start(ctx, "ai.openai")
	defer span.End()

	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: history,
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(callCtx, req)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("ai: openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		err := errors.New("ai: openai returned no choices")
		span.RecordError(err)
		return "", err
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
