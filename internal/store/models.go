package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Direction identifies who authored a message.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// MessageStatus tracks delivery state. Outbound messages move
// sending -> sent | failed; inbound messages are recorded as sent.
type MessageStatus string

const (
	StatusSending MessageStatus = "sending"
	StatusSent    MessageStatus = "sent"
	StatusFailed  MessageStatus = "failed"
)

// Conversation is one customer thread, keyed by phone number.
type Conversation struct {
	ID               uuid.UUID
	Phone            string
	Name             string
	ChannelHandle    string
	AIEnabled        bool
	ReadyToBook      bool
	BookingNotes     string
	NeedsReply       bool
	LastMessage      string
	LastActivity     time.Time
	CallSuppressedAt *time.Time
	CreatedAt        time.Time
}

// Message is a single inbound or outbound text. Append-only.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Text           string
	Direction      Direction
	Status         MessageStatus
	Source         string
	ExternalID     string
	CreatedAt      time.Time
}

// WorkflowState holds the recomputed sales-stage snapshot for a conversation.
// Data is an opaque JSON document owned by the workflow package.
type WorkflowState struct {
	ConversationID uuid.UUID
	Stage          string
	Intent         string
	Data           json.RawMessage
	UpdatedAt      time.Time
}

// LeadAssessment is the latest scoring pass for a conversation; each pass
// overwrites the previous one.
type LeadAssessment struct {
	ConversationID uuid.UUID
	Stage          string
	Probability    int
	EstValue       string
	Sentiment      string
	VehicleInfo    string
	TintPreference string
	Coverage       string
	Notes          string
	UpdatedAt      time.Time
}

// NewConversation carries the fields applied when a phone number is first
// seen; on conflict only the activity fields are refreshed.
type NewConversation struct {
	Phone         string
	Name          string
	ChannelHandle string
	LastMessage   string
	NeedsReply    bool
}

// ConversationUpdate applies partial updates; nil fields are left untouched.
type ConversationUpdate struct {
	Name             *string
	ChannelHandle    *string
	AIEnabled        *bool
	ReadyToBook      *bool
	BookingNotes     *string
	NeedsReply       *bool
	LastMessage      *string
	CallSuppressedAt *time.Time
}
