package workflow

import (
	"net/url"
	"strings"
)

var stageInstructions = map[Stage]string{
	StageNew:      "Acknowledge and ask what kind of vehicle they have (car, truck, or SUV).",
	StageVehicle:  "Ask if they have a specific year/make/model to help with the quote.",
	StageService:  `Ask clarifying questions: "Are you looking to tint the full car, just the sides and back, or the windshield?"`,
	StageLocation: "Ask for their city to determine if they are in our service area (OC, LA, IE).",
	StageQuote:    "Explain the benefits of IR Ceramic Tint (heat rejection, UV protection). Provide a base price range if vehicle/coverage is known.",
	StageSchedule: "Ask for their preferred day or time window for the appointment. Mention both shop and mobile options.",
	StageBooked:   "Confirm their booking details and thank them for choosing Obsidian Auto Works.",
	StageHandoff:  "Acknowledge and say you will connect them with the Manager for further assistance.",
}

// BuildSystemPrompt renders the internal workflow snapshot as a system prompt
// steering the reply generator toward the current questionnaire step.
func BuildSystemPrompt(c Context) string {
	var known []string
	appendKnown := func(key, value string) {
		if value != "" {
			known = append(known, key+"="+value)
		}
	}
	appendKnown("name", c.Profile.FullName)
	appendKnown("vehicle_type", c.Profile.VehicleType)
	appendKnown("coverage", c.Profile.CoverageWanted)
	appendKnown("tint_type", c.Profile.TintType)
	appendKnown("location", c.Profile.Location)
	appendKnown("concern", c.Profile.PrimaryConcern)
	appendKnown("preferred_day", c.Profile.PreferredDay)
	appendKnown("preferred_time", c.Profile.PreferredTime)

	knownSummary := "none"
	if len(known) > 0 {
		knownSummary = strings.Join(known, ", ")
	}
	missingSummary := "none"
	if len(c.MissingFields) > 0 {
		missingSummary = strings.Join(c.MissingFields, ", ")
	}

	instruction := stageInstructions[c.Stage]
	if c.Stage == StageBookingLink {
		if c.Flags.BookingLinkSent {
			instruction = "Do not repeat the booking link. Ask if they want it resent or if you'd like to help pick a time."
		} else {
			instruction = "Share the booking link so they can pick an exact time. Do not suggest specific times yourself."
		}
	}

	yesNo := func(b bool) string {
		if b {
			return "yes"
		}
		return "no"
	}

	var b strings.Builder
	b.WriteString("Workflow context (internal):\n")
	b.WriteString("stage: " + string(c.Stage) + "\n")
	intent := string(c.Intent)
	if intent == "" {
		intent = "unknown"
	}
	b.WriteString("intent: " + intent + "\n")
	b.WriteString("known: " + knownSummary + "\n")
	b.WriteString("missing: " + missingSummary + "\n")
	b.WriteString("price_quoted: " + yesNo(c.Flags.PriceQuoted) + "\n")
	b.WriteString("booking_link_sent: " + yesNo(c.Flags.BookingLinkSent) + "\n")
	b.WriteString("booking_url: " + c.BookingURL + "\n\n")
	b.WriteString("Guidance:\n")
	b.WriteString(instruction + "\n")
	b.WriteString("If you share a booking link, use exactly: " + c.BookingURL + "\n")
	b.WriteString("Do not mention internal context or stages to the customer.")
	return b.String()
}

// BookingLinkFor builds the per-conversation tracking variant of the generic
// booking URL. Falls back to the generic URL when it does not parse.
func BookingLinkFor(bookingURL, phone, conversationID string) string {
	u, err := url.Parse(bookingURL)
	if err != nil || u.Scheme == "" {
		return bookingURL
	}
	q := u.Query()
	q.Set("phone", phone)
	if conversationID != "" {
		q.Set("cid", conversationID)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
