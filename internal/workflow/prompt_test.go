package workflow

import (
	"strings"
	"testing"
)

func TestBuildSystemPromptListsKnownAndMissing(t *testing.T) {
	prompt := BuildSystemPrompt(Context{
		Stage:         StageService,
		Intent:        "question",
		Profile:       Profile{VehicleType: "suv", FullName: "Sam"},
		MissingFields: []string{"coverage_wanted", "tint_type"},
		BookingURL:    testBookingURL,
	})

	for _, want := range []string{
		"stage: service",
		"vehicle_type=suv",
		"name=Sam",
		"coverage_wanted, tint_type",
		testBookingURL,
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestBuildSystemPromptBookingLinkVariants(t *testing.T) {
	base := Context{Stage: StageBookingLink, Profile: fullProfile(), BookingURL: testBookingURL}

	sent := base
	sent.Flags.BookingLinkSent = true
	if prompt := BuildSystemPrompt(sent); !strings.Contains(prompt, "Do not repeat the booking link") {
		t.Fatalf("expected resend guidance once link sent:\n%s", prompt)
	}

	if prompt := BuildSystemPrompt(base); !strings.Contains(prompt, "Share the booking link") {
		t.Fatalf("expected share guidance before link sent:\n%s", prompt)
	}
}

func TestBookingLinkFor(t *testing.T) {
	link := BookingLinkFor(testBookingURL, "+15551234567", "conv-1")
	if !strings.Contains(link, "phone=%2B15551234567") {
		t.Fatalf("expected encoded phone param, got %s", link)
	}
	if !strings.Contains(link, "cid=conv-1") {
		t.Fatalf("expected cid param, got %s", link)
	}
}

func TestBookingLinkForInvalidURL(t *testing.T) {
	if got := BookingLinkFor("not a url", "+1555", "c"); got != "not a url" {
		t.Fatalf("expected passthrough for unparseable URL, got %s", got)
	}
}
