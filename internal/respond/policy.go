package respond

import (
	"regexp"
	"strings"

	"github.com/obsidianauto/tint-ai-platform/internal/store"
	"github.com/obsidianauto/tint-ai-platform/internal/workflow"
)

// similarityThreshold is the Jaccard score at or above which a candidate is
// treated as a repeat of the agent's last reply. The fallback pools below are
// tuned to this value, so it stays a constant rather than configuration.
const similarityThreshold = 0.75

var (
	linkRequestPattern = regexp.MustCompile(
		`(?i)\b(link|booking link|book(ing)?|schedule|appointment|calendar|cal\.com)\b`)
	scheduleRequestPattern = regexp.MustCompile(
		`(?i)\b(availability|available|times?|slots?|day|date|today|tomorrow|monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b|\b\d{1,2}(:\d{2})?\s?(am|pm)\b`)
	tokenSplitPattern = regexp.MustCompile(`[^a-z0-9']+`)
	multiSpacePattern = regexp.MustCompile(`\s{2,}`)
)

var fallbackPrompts = map[string][]string{
	"service": {
		"Quick question - are you looking to tint the full car, just the front two windows, or the windshield?",
		"Which tint service do you need: full vehicle, partial, or removal?",
	},
	"vehicle": {
		"What year, make, and model is your vehicle?",
		"To give you an accurate quote, what car will we be working on?",
	},
	"location": {
		"We're mobile! What city in Orange County (or nearby) are you located in?",
		"Which city should we come to for the service?",
	},
	"schedule": {
		"What day or time window works best for your appointment?",
		"Do you have a preferred day for us to come out?",
	},
	"booking_link": {
		"If you're ready to lock it in, I can send over the booking link.",
		"Would you like the link to secure your spot?",
	},
	"quote": {
		"For our Premium Ceramic tint, prices vary slightly by model. Do you prefer 5% (Limo), 20%, or 50% shade?",
		"We specialize in IR Ceramic Tint. Did you have a specific shade in mind (Limo, Medium, Light)?",
	},
	"general": {
		"Got it. How else can I help you with your tinting needs?",
		"Happy to help - do you have any other questions about our film or process?",
	},
}

// PolicyInput carries everything the policy inspects: the fresh candidate,
// the conversation history, and the current workflow snapshot.
type PolicyInput struct {
	Response       string
	Messages       []store.Message
	ConversationID string
	Context        *workflow.Context
	BookingURL     string
}

// ApplyPolicy shapes a generated candidate: the link policy first, then
// duplicate suppression against the agent's last sent reply. Deterministic
// for fixed inputs.
func ApplyPolicy(in PolicyInput) string {
	bookingURL := in.BookingURL
	bookingLinkSent := false
	stage := workflow.Stage("")
	if in.Context != nil {
		if in.Context.BookingURL != "" {
			bookingURL = in.Context.BookingURL
		}
		bookingLinkSent = in.Context.Flags.BookingLinkSent
		stage = in.Context.Stage
	}

	lastOutbound := lastMessage(in.Messages, store.DirectionOutbound, "ai")
	lastInbound := lastMessage(in.Messages, store.DirectionInbound, "")

	lastInboundText := ""
	if lastInbound != nil {
		lastInboundText = lastInbound.Text
	}

	adjusted := strings.TrimSpace(in.Response)
	adjusted = applyLinkPolicy(adjusted, bookingURL, bookingLinkSent, lastInboundText, stage)

	if lastOutbound != nil && similarityScore(adjusted, lastOutbound.Text) >= similarityThreshold {
		adjusted = fallbackResponse(in.Context, in.ConversationID)
		adjusted = applyLinkPolicy(adjusted, bookingURL, bookingLinkSent, lastInboundText, stage)
	}

	return strings.TrimSpace(adjusted)
}

// lastMessage walks backwards for the newest message with the given
// direction; a non-empty source narrows the match.
func lastMessage(messages []store.Message, direction store.Direction, source string) *store.Message {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Direction != direction {
			continue
		}
		if source != "" && messages[i].Source != source {
			continue
		}
		return &messages[i]
	}
	return nil
}

func tokenize(value string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, token := range tokenSplitPattern.Split(strings.ToLower(value), -1) {
		if len(token) > 2 {
			tokens[token] = struct{}{}
		}
	}
	return tokens
}

// similarityScore is the token-set Jaccard index between two texts.
func similarityScore(a, b string) float64 {
	tokensA := tokenize(a)
	tokensB := tokenize(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}
	intersection := 0
	for token := range tokensA {
		if _, ok := tokensB[token]; ok {
			intersection++
		}
	}
	union := len(tokensA) + len(tokensB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func isExplicitLinkRequest(text string) bool {
	return text != "" && linkRequestPattern.MatchString(text)
}

func isScheduleRequest(text string) bool {
	return text != "" && scheduleRequestPattern.MatchString(text)
}

func stripBookingLink(text, bookingURL string) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.Contains(line, bookingURL) {
			continue
		}
		kept = append(kept, line)
	}
	joined := strings.Join(kept, "\n")
	return strings.TrimSpace(multiSpacePattern.ReplaceAllString(joined, " "))
}

func ensureBookingLink(text, bookingURL string) string {
	if strings.Contains(text, bookingURL) {
		return text
	}
	return strings.TrimSpace(text + "\n\nBook here: " + bookingURL)
}

func applyLinkPolicy(text, bookingURL string, bookingLinkSent bool, lastInboundText string, stage workflow.Stage) string {
	explicitRequest := isExplicitLinkRequest(lastInboundText)
	scheduleRequest := isScheduleRequest(lastInboundText)

	if !bookingLinkSent && stage == workflow.StageBookingLink {
		return ensureBookingLink(text, bookingURL)
	}

	if bookingLinkSent && strings.Contains(text, bookingURL) && !explicitRequest {
		stripped := stripBookingLink(text, bookingURL)
		if stripped != "" {
			return stripped + "\n\nWant me to resend the booking link?"
		}
		return "Want me to resend the booking link?"
	}

	if !bookingLinkSent && (explicitRequest || scheduleRequest) {
		return ensureBookingLink(text, bookingURL)
	}

	return text
}

// fallbackCategory picks the pool for a suppressed duplicate: the highest
// priority missing field first (same order the stage ladder asks questions),
// then the current stage.
func fallbackCategory(wctx *workflow.Context) string {
	if wctx == nil {
		return "general"
	}
	missing := make(map[string]bool, len(wctx.MissingFields))
	for _, f := range wctx.MissingFields {
		missing[f] = true
	}
	switch {
	case missing["vehicle_type"]:
		return "vehicle"
	case missing["coverage_wanted"]:
		return "service"
	case missing["location"]:
		return "location"
	}
	switch wctx.Stage {
	case workflow.StageQuote:
		return "quote"
	case workflow.StageSchedule:
		return "schedule"
	case workflow.StageBookingLink:
		return "booking_link"
	}
	return "general"
}

func fallbackResponse(wctx *workflow.Context, conversationID string) string {
	if wctx == nil {
		return pickVariant(fallbackPrompts["general"], conversationID)
	}
	seed := conversationID + "-" + string(wctx.Stage)
	return pickVariant(fallbackPrompts[fallbackCategory(wctx)], seed)
}

// pickVariant maps a seed to a pool index with a stable string hash, so
// repeated calls on unchanged state never oscillate between variants.
func pickVariant(options []string, seed string) string {
	if len(options) == 1 {
		return options[0]
	}
	hash := 0
	for _, c := range seed {
		hash = (hash*31 + int(c)) % 10000
	}
	return options[hash%len(options)]
}
