// Package agents defines the pluggable handlers an inbound event fans out
// to, and the registry that dispatches them in order.
package agents

import (
	"context"

	"github.com/obsidianauto/tint-ai-platform/internal/store"
)

// Agent is the identity every registered handler carries. Capability is
// declared by also implementing MessageAgent, CallAgent, or both.
type Agent interface {
	ID() string
	Name() string
	Description() string
}

// MessageContext is the snapshot handed to message handlers. Conversation
// reflects state after the inbound message was persisted.
type MessageContext struct {
	Message           store.Message
	Conversation      store.Conversation
	IsNewConversation bool
}

// CallContext is the snapshot handed to call handlers after call handling
// updated the conversation.
type CallContext struct {
	Conversation    store.Conversation
	CallSID         string
	CallStatus      string
	DurationSeconds int
	Answered        bool
}

// MessageAgent handles a persisted inbound message.
type MessageAgent interface {
	Agent
	HandleMessage(ctx context.Context, mc MessageContext) error
}

// CallAgent handles a completed voice call event.
type CallAgent interface {
	Agent
	HandleCall(ctx context.Context, cc CallContext) error
}

// Identity is a plain value implementation of Agent for embedding.
type Identity struct {
	AgentID   string
	AgentName string
	AgentDesc string
}

func (i Identity) ID() string          { return i.AgentID }
func (i Identity) Name() string        { return i.AgentName }
func (i Identity) Description() string { return i.AgentDesc }
