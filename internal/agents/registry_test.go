package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/obsidianauto/tint-ai-platform/internal/respond"
	"github.com/obsidianauto/tint-ai-platform/internal/store"
	"github.com/obsidianauto/tint-ai-platform/internal/workflow"
)

type scriptedAgent struct {
	Identity
	err     error
	handled *[]string
}

func (s *scriptedAgent) HandleMessage(_ context.Context, _ MessageContext) error {
	*s.handled = append(*s.handled, s.AgentID)
	return s.err
}

type callOnlyAgent struct {
	Identity
	handled *[]string
}

func (c *callOnlyAgent) HandleCall(_ context.Context, _ CallContext) error {
	*c.handled = append(*c.handled, c.AgentID)
	return nil
}

func messageEvent() MessageContext {
	return MessageContext{
		Message:      store.Message{ID: uuid.New(), Direction: store.DirectionInbound, Text: "hi"},
		Conversation: store.Conversation{ID: uuid.New(), Phone: "+15550001111", AIEnabled: true},
	}
}

func TestRegistryDispatchesInRegistrationOrder(t *testing.T) {
	var handled []string
	r := NewRegistry(nil, nil)
	r.Register(&scriptedAgent{Identity: Identity{AgentID: "first"}, handled: &handled})
	r.Register(&scriptedAgent{Identity: Identity{AgentID: "second"}, handled: &handled})
	r.Register(&scriptedAgent{Identity: Identity{AgentID: "third"}, handled: &handled})

	r.DispatchMessage(context.Background(), messageEvent())

	want := []string{"first", "second", "third"}
	if len(handled) != len(want) {
		t.Fatalf("expected %d handlers, got %v", len(want), handled)
	}
	for i := range want {
		if handled[i] != want[i] {
			t.Fatalf("dispatch order %v, want %v", handled, want)
		}
	}
}

func TestRegistryIsolatesAgentFailures(t *testing.T) {
	var handled []string
	r := NewRegistry(nil, nil)
	r.Register(&scriptedAgent{Identity: Identity{AgentID: "boom"}, err: errors.New("handler broke"), handled: &handled})
	r.Register(&scriptedAgent{Identity: Identity{AgentID: "after"}, handled: &handled})

	r.DispatchMessage(context.Background(), messageEvent())

	if len(handled) != 2 || handled[1] != "after" {
		t.Fatalf("later agents must still run after a failure, got %v", handled)
	}
}

func TestRegistrySkipsAgentsWithoutCapability(t *testing.T) {
	var handled []string
	r := NewRegistry(nil, nil)
	r.Register(&callOnlyAgent{Identity: Identity{AgentID: "calls"}, handled: &handled})
	r.Register(&scriptedAgent{Identity: Identity{AgentID: "texts"}, handled: &handled})

	r.DispatchMessage(context.Background(), messageEvent())
	if len(handled) != 1 || handled[0] != "texts" {
		t.Fatalf("message dispatch should skip call-only agents, got %v", handled)
	}

	handled = nil
	r.DispatchCall(context.Background(), CallContext{Conversation: store.Conversation{Phone: "+15550001111"}, Answered: true})
	if len(handled) != 1 || handled[0] != "calls" {
		t.Fatalf("call dispatch should skip message-only agents, got %v", handled)
	}
}

type fakeConvReader struct {
	conv *store.Conversation
	err  error
}

func (f *fakeConvReader) GetConversationByPhone(_ context.Context, _ string) (*store.Conversation, error) {
	return f.conv, f.err
}

type fakeContextProvider struct {
	wctx *workflow.Context
	err  error
}

func (f *fakeContextProvider) ContextFor(_ context.Context, _ uuid.UUID) (*workflow.Context, error) {
	return f.wctx, f.err
}

type fakeScheduler struct {
	scheduled []respond.Job
	cancelled []string
}

func (f *fakeScheduler) Schedule(job respond.Job) { f.scheduled = append(f.scheduled, job) }
func (f *fakeScheduler) Cancel(phone string)      { f.cancelled = append(f.cancelled, phone) }

func TestAutoResponderSchedulesWithFreshContext(t *testing.T) {
	mc := messageEvent()
	conv := mc.Conversation
	sched := &fakeScheduler{}
	a := NewAutoResponder(
		&fakeConvReader{conv: &conv},
		&fakeContextProvider{wctx: &workflow.Context{Stage: workflow.StageQuote}},
		sched, nil)

	if err := a.HandleMessage(context.Background(), mc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sched.scheduled) != 1 {
		t.Fatalf("expected 1 scheduled job, got %d", len(sched.scheduled))
	}
	job := sched.scheduled[0]
	if job.ExpectedInboundID != mc.Message.ID {
		t.Fatal("job must pin the triggering inbound message")
	}
	if job.Context == nil || job.Context.Stage != workflow.StageQuote {
		t.Fatalf("job missing workflow context: %+v", job.Context)
	}
}

func TestAutoResponderCancelsWhenAIDisabled(t *testing.T) {
	mc := messageEvent()
	conv := mc.Conversation
	conv.AIEnabled = false
	sched := &fakeScheduler{}
	a := NewAutoResponder(&fakeConvReader{conv: &conv}, &fakeContextProvider{}, sched, nil)

	if err := a.HandleMessage(context.Background(), mc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sched.scheduled) != 0 {
		t.Fatal("disabled AI must not schedule")
	}
	if len(sched.cancelled) != 1 || sched.cancelled[0] != mc.Conversation.Phone {
		t.Fatalf("expected pending reply cancelled, got %v", sched.cancelled)
	}
}

func TestAutoResponderCancelsOnAnsweredCall(t *testing.T) {
	sched := &fakeScheduler{}
	a := NewAutoResponder(&fakeConvReader{}, &fakeContextProvider{}, sched, nil)

	cc := CallContext{Conversation: store.Conversation{Phone: "+15550001111"}, Answered: true}
	if err := a.HandleCall(context.Background(), cc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sched.cancelled) != 1 {
		t.Fatalf("expected cancel on answered call, got %v", sched.cancelled)
	}

	sched.cancelled = nil
	cc.Answered = false
	if err := a.HandleCall(context.Background(), cc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sched.cancelled) != 0 {
		t.Fatal("missed call must not cancel a pending reply")
	}
}

type fakeUpdater struct {
	wctx workflow.Context
	err  error
}

func (f *fakeUpdater) UpdateFromInbound(_ context.Context, conv store.Conversation) (workflow.Context, store.Conversation, error) {
	return f.wctx, conv, f.err
}

func TestWorkflowManagerPropagatesEngineError(t *testing.T) {
	w := NewWorkflowManager(&fakeUpdater{err: errors.New("storage down")}, nil)
	if err := w.HandleMessage(context.Background(), messageEvent()); err == nil {
		t.Fatal("expected wrapped engine error")
	}
}
