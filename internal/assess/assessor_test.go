package assess

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"

	"github.com/obsidianauto/tint-ai-platform/internal/store"
)

type fakeAssessStore struct {
	mu       sync.Mutex
	messages []store.Message
	state    *store.WorkflowState
	upserts  []store.LeadAssessment
}

func (f *fakeAssessStore) ListMessages(_ context.Context, _ uuid.UUID) ([]store.Message, error) {
	return f.messages, nil
}

func (f *fakeAssessStore) GetWorkflowState(_ context.Context, _ uuid.UUID) (*store.WorkflowState, error) {
	return f.state, nil
}

func (f *fakeAssessStore) UpsertAssessment(_ context.Context, a store.LeadAssessment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, a)
	return nil
}

type fakeAnalyzer struct {
	calls   atomic.Int64
	release chan struct{}
	result  store.LeadAssessment
	err     error
}

func (f *fakeAnalyzer) AnalyzeLead(_ context.Context, _ []store.Message, _ string) (store.LeadAssessment, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	return f.result, f.err
}

func transcript() []store.Message {
	return []store.Message{
		{ID: uuid.New(), Text: "how much for a tesla?", Direction: store.DirectionInbound},
		{ID: uuid.New(), Text: "Full ceramic runs $349.", Direction: store.DirectionOutbound, Source: "ai"},
	}
}

func TestTriggerPersistsAssessment(t *testing.T) {
	st := &fakeAssessStore{
		messages: transcript(),
		state:    &store.WorkflowState{Stage: "quote"},
	}
	an := &fakeAnalyzer{result: store.LeadAssessment{Probability: 70, Sentiment: "warm"}}
	a := New(st, an, nil)

	id := uuid.New()
	a.Trigger(context.Background(), id)

	if len(st.upserts) != 1 {
		t.Fatalf("expected 1 upsert, got %d", len(st.upserts))
	}
	got := st.upserts[0]
	if got.ConversationID != id {
		t.Fatalf("conversation id not stamped: %s", got.ConversationID)
	}
	if got.Stage != "quote" {
		t.Fatalf("expected stage backfilled from workflow state, got %q", got.Stage)
	}
}

func TestTriggerDropsConcurrentDuplicate(t *testing.T) {
	st := &fakeAssessStore{messages: transcript()}
	an := &fakeAnalyzer{release: make(chan struct{})}
	a := New(st, an, nil)

	id := uuid.New()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.Trigger(context.Background(), id)
	}()

	// Wait for the first pass to reach the analyzer, then trigger again.
	for an.calls.Load() == 0 {
		runtime.Gosched()
	}
	a.Trigger(context.Background(), id)

	close(an.release)
	wg.Wait()

	if got := an.calls.Load(); got != 1 {
		t.Fatalf("expected overlapping trigger dropped, analyzer ran %d times", got)
	}
}

func TestTriggerAllowsSequentialRuns(t *testing.T) {
	st := &fakeAssessStore{messages: transcript()}
	an := &fakeAnalyzer{}
	a := New(st, an, nil)

	id := uuid.New()
	a.Trigger(context.Background(), id)
	a.Trigger(context.Background(), id)

	if got := an.calls.Load(); got != 2 {
		t.Fatalf("expected sequential triggers to both run, got %d", got)
	}
}

func TestTriggerSkipsEmptyConversation(t *testing.T) {
	st := &fakeAssessStore{}
	an := &fakeAnalyzer{}
	a := New(st, an, nil)

	a.Trigger(context.Background(), uuid.New())

	if an.calls.Load() != 0 {
		t.Fatal("empty conversation must not reach the analyzer")
	}
}

func TestTriggerAnalyzerFailureSkipsPersist(t *testing.T) {
	st := &fakeAssessStore{messages: transcript()}
	an := &fakeAnalyzer{err: errors.New("openai: timeout")}
	a := New(st, an, nil)

	a.Trigger(context.Background(), uuid.New())

	if len(st.upserts) != 0 {
		t.Fatal("failed analysis must not persist")
	}
}
