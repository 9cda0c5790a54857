package workflow

import "encoding/json"

// Stage is the current step of the scripted sales questionnaire for a
// conversation. It is recomputed from known facts on every inbound message,
// never transitioned incrementally, so replaying the same inputs always lands
// on the same stage.
type Stage string

const (
	StageNew         Stage = "new"
	StageVehicle     Stage = "vehicle"
	StageService     Stage = "service"
	StageQuote       Stage = "quote"
	StageLocation    Stage = "location"
	StageSchedule    Stage = "schedule"
	StageBookingLink Stage = "booking_link"
	StageBooked      Stage = "booked"
	StageHandoff     Stage = "handoff"
)

// Valid reports whether s is one of the known stages.
func (s Stage) Valid() bool {
	switch s {
	case StageNew, StageVehicle, StageService, StageQuote, StageLocation,
		StageSchedule, StageBookingLink, StageBooked, StageHandoff:
		return true
	}
	return false
}

// Intent is the extractor's classification of the latest customer message
// (e.g. "pricing_question", "booking"). The stage machine branches on the
// boolean signals, not on intent, so the set stays open.
type Intent string

// Profile holds structured facts extracted from free-text history. Empty
// means unknown; extraction candidates never write placeholders here.
type Profile struct {
	FullName       string `json:"full_name,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Location       string `json:"location,omitempty"`
	VehicleYear    string `json:"vehicle_year,omitempty"`
	VehicleMake    string `json:"vehicle_make,omitempty"`
	VehicleModel   string `json:"vehicle_model,omitempty"`
	VehicleType    string `json:"vehicle_type,omitempty"`
	TintType       string `json:"tint_type,omitempty"`
	CoverageWanted string `json:"coverage_wanted,omitempty"`
	PrimaryConcern string `json:"primary_concern,omitempty"`
	Budget         string `json:"budget,omitempty"`
	PreferredDay   string `json:"preferred_day,omitempty"`
	PreferredTime  string `json:"preferred_time,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

// HasSchedulePreference reports whether the customer stated a day or time.
func (p Profile) HasSchedulePreference() bool {
	return p.PreferredDay != "" || p.PreferredTime != ""
}

// Flags are sticky booleans derived from history; once set they are only
// OR'd forward, never unset.
type Flags struct {
	PriceQuoted     bool `json:"price_quoted,omitempty"`
	BookingLinkSent bool `json:"booking_link_sent,omitempty"`
	Booked          bool `json:"booked,omitempty"`
	OptOut          bool `json:"opt_out,omitempty"`
}

// Data is the JSON document persisted alongside the stage in workflow_states.
type Data struct {
	Profile    Profile `json:"profile"`
	Flags      Flags   `json:"flags"`
	LastIntent Intent  `json:"last_intent,omitempty"`
	Notes      string  `json:"notes,omitempty"`
}

func decodeData(raw json.RawMessage) Data {
	var d Data
	if len(raw) == 0 {
		return d
	}
	// Corrupt persisted data degrades to an empty document rather than
	// blocking the pipeline; the next extraction pass repopulates it.
	_ = json.Unmarshal(raw, &d)
	return d
}

// Extraction is the validated result of one extraction call. Shapes that do
// not decode into this struct are an extraction failure, never guessed at.
type Extraction struct {
	Intent          Intent            `json:"intent"`
	BookingIntent   bool              `json:"booking_intent"`
	ScheduleRequest bool              `json:"schedule_request"`
	CallRequest     bool              `json:"call_request"`
	OptOut          bool              `json:"opt_out"`
	Profile         ExtractionProfile `json:"profile"`
	Notes           string            `json:"notes"`
}

// ExtractionProfile mirrors Profile with the wire field names the extractor
// emits. Values are candidates; normalization decides what sticks.
type ExtractionProfile struct {
	FullName       string `json:"full_name"`
	Phone          string `json:"phone"`
	Location       string `json:"location"`
	VehicleYear    string `json:"vehicle_year"`
	VehicleMake    string `json:"vehicle_make"`
	VehicleModel   string `json:"vehicle_model"`
	VehicleType    string `json:"vehicle_type"`
	TintType       string `json:"tint_type"`
	CoverageWanted string `json:"coverage_wanted"`
	PrimaryConcern string `json:"primary_concern"`
	Budget         string `json:"budget"`
	PreferredDay   string `json:"preferred_day"`
	PreferredTime  string `json:"preferred_time"`
	Notes          string `json:"notes"`
}

// Context is the workflow snapshot handed to reply generation and the
// response policy.
type Context struct {
	Stage         Stage
	Intent        Intent
	Profile       Profile
	Flags         Flags
	MissingFields []string
	BookingURL    string
}
