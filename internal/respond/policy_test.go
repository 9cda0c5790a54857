package respond

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/obsidianauto/tint-ai-platform/internal/store"
	"github.com/obsidianauto/tint-ai-platform/internal/workflow"
)

const testBookingURL = "https://book.example.com/tint"

func msg(direction store.Direction, source, text string) store.Message {
	return store.Message{
		ID:        uuid.New(),
		Text:      text,
		Direction: direction,
		Source:    source,
		Status:    store.StatusSent,
	}
}

func policyContext(stage workflow.Stage) *workflow.Context {
	return &workflow.Context{Stage: stage, BookingURL: testBookingURL}
}

func TestApplyPolicyPassesThroughFreshResponse(t *testing.T) {
	got := ApplyPolicy(PolicyInput{
		Response: "  We can do a full SUV for $320.  ",
		Messages: []store.Message{
			msg(store.DirectionOutbound, "ai", "What vehicle are we working on?"),
			msg(store.DirectionInbound, "", "A 2022 Tahoe"),
		},
		ConversationID: "c1",
		Context:        policyContext(workflow.StageQuote),
	})
	if got != "We can do a full SUV for $320." {
		t.Fatalf("expected trimmed passthrough, got %q", got)
	}
}

func TestApplyPolicySuppressesNearDuplicate(t *testing.T) {
	previous := "What year, make, and model is your vehicle looking for tint?"
	in := PolicyInput{
		Response: previous,
		Messages: []store.Message{
			msg(store.DirectionOutbound, "ai", previous),
			msg(store.DirectionInbound, "", "hello?"),
		},
		ConversationID: "c1",
		Context: &workflow.Context{
			Stage:         workflow.StageVehicle,
			MissingFields: []string{"vehicle_type"},
			BookingURL:    testBookingURL,
		},
	}

	got := ApplyPolicy(in)
	if got == previous {
		t.Fatal("expected duplicate to be replaced by a fallback")
	}
	found := false
	for _, v := range fallbackPrompts["vehicle"] {
		if got == v {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a vehicle fallback variant, got %q", got)
	}

	if again := ApplyPolicy(in); again != got {
		t.Fatalf("fallback pick should be deterministic: %q vs %q", got, again)
	}
}

func TestApplyPolicyIgnoresOperatorMessagesForSimilarity(t *testing.T) {
	text := "We can come to you anywhere in Orange County."
	got := ApplyPolicy(PolicyInput{
		Response: text,
		Messages: []store.Message{
			msg(store.DirectionOutbound, "operator", text),
			msg(store.DirectionInbound, "", "do you travel?"),
		},
		ConversationID: "c1",
		Context:        policyContext(workflow.StageLocation),
	})
	if got != text {
		t.Fatalf("operator messages must not trigger suppression, got %q", got)
	}
}

func TestApplyPolicyStripsRepeatedLink(t *testing.T) {
	ctx := policyContext(workflow.StageBookingLink)
	ctx.Flags.BookingLinkSent = true

	got := ApplyPolicy(PolicyInput{
		Response: "Great, we have Saturday open.\n\nBook here: " + testBookingURL,
		Messages: []store.Message{
			msg(store.DirectionInbound, "", "sounds good"),
		},
		ConversationID: "c1",
		Context:        ctx,
	})

	if strings.Contains(got, testBookingURL) {
		t.Fatalf("expected link stripped once already sent, got %q", got)
	}
	if !strings.Contains(got, "resend the booking link") {
		t.Fatalf("expected resend offer, got %q", got)
	}
}

func TestApplyPolicyKeepsLinkOnExplicitRequest(t *testing.T) {
	ctx := policyContext(workflow.StageBookingLink)
	ctx.Flags.BookingLinkSent = true

	got := ApplyPolicy(PolicyInput{
		Response: "Here you go: " + testBookingURL,
		Messages: []store.Message{
			msg(store.DirectionInbound, "", "can you send that booking link again?"),
		},
		ConversationID: "c1",
		Context:        ctx,
	})

	if !strings.Contains(got, testBookingURL) {
		t.Fatalf("explicit request should keep the link, got %q", got)
	}
}

func TestApplyPolicyAppendsLinkAtBookingStage(t *testing.T) {
	got := ApplyPolicy(PolicyInput{
		Response: "You're all set for a quote, let's get you on the calendar.",
		Messages: []store.Message{
			msg(store.DirectionInbound, "", "let's do it"),
		},
		ConversationID: "c1",
		Context:        policyContext(workflow.StageBookingLink),
	})

	if !strings.Contains(got, testBookingURL) {
		t.Fatalf("expected link appended at booking stage, got %q", got)
	}
}

func TestApplyPolicyAppendsLinkOnScheduleWording(t *testing.T) {
	got := ApplyPolicy(PolicyInput{
		Response: "We have openings this week.",
		Messages: []store.Message{
			msg(store.DirectionInbound, "", "what times do you have on friday?"),
		},
		ConversationID: "c1",
		Context:        policyContext(workflow.StageSchedule),
	})

	if !strings.Contains(got, testBookingURL) {
		t.Fatalf("schedule-style question should trigger the link, got %q", got)
	}
}

func TestApplyPolicyNilContextFallsBackGeneral(t *testing.T) {
	text := "Happy to help with anything tint related."
	got := ApplyPolicy(PolicyInput{
		Response: text,
		Messages: []store.Message{
			msg(store.DirectionOutbound, "ai", text),
			msg(store.DirectionInbound, "", "ok"),
		},
		ConversationID: "c1",
	})

	found := false
	for _, v := range fallbackPrompts["general"] {
		if got == v {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected general fallback with nil context, got %q", got)
	}
}

func TestSimilarityScore(t *testing.T) {
	cases := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"What vehicle are we tinting today?", "What vehicle are we tinting today?", 1, 1},
		{"What vehicle are we tinting today?", "Our ceramic film blocks heat", 0, 0.2},
		{"", "anything", 0, 0},
	}
	for _, tc := range cases {
		got := similarityScore(tc.a, tc.b)
		if got < tc.min || got > tc.max {
			t.Fatalf("similarity(%q, %q) = %v, want [%v, %v]", tc.a, tc.b, got, tc.min, tc.max)
		}
	}
}

func TestFallbackCategoryPriorities(t *testing.T) {
	cases := []struct {
		name string
		ctx  *workflow.Context
		want string
	}{
		{"missing vehicle wins", &workflow.Context{Stage: workflow.StageQuote, MissingFields: []string{"location", "vehicle_type"}}, "vehicle"},
		{"missing coverage", &workflow.Context{Stage: workflow.StageQuote, MissingFields: []string{"coverage_wanted"}}, "service"},
		{"missing location", &workflow.Context{Stage: workflow.StageLocation, MissingFields: []string{"location"}}, "location"},
		{"quote stage", &workflow.Context{Stage: workflow.StageQuote}, "quote"},
		{"schedule stage", &workflow.Context{Stage: workflow.StageSchedule}, "schedule"},
		{"booking link stage", &workflow.Context{Stage: workflow.StageBookingLink}, "booking_link"},
		{"booked stage", &workflow.Context{Stage: workflow.StageBooked}, "general"},
		{"nil context", nil, "general"},
	}
	for _, tc := range cases {
		if got := fallbackCategory(tc.ctx); got != tc.want {
			t.Fatalf("%s: got %q want %q", tc.name, got, tc.want)
		}
	}
}

func TestPickVariantStable(t *testing.T) {
	pool := fallbackPrompts["quote"]
	first := pickVariant(pool, "abc-quote")
	for i := 0; i < 5; i++ {
		if pickVariant(pool, "abc-quote") != first {
			t.Fatal("pickVariant must be stable for a fixed seed")
		}
	}
}
