package respond

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

type runRecorder struct {
	mu   sync.Mutex
	jobs []Job
}

func (r *runRecorder) run(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
}

func (r *runRecorder) snapshot() []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Job(nil), r.jobs...)
}

func TestSchedulerDebouncesPerPhone(t *testing.T) {
	rec := &runRecorder{}
	s := NewScheduler(25*time.Millisecond, rec.run, nil)

	ids := make([]uuid.UUID, 5)
	for i := range ids {
		ids[i] = uuid.New()
		s.Schedule(Job{Phone: "+15550001111", ExpectedInboundID: ids[i]})
	}

	time.Sleep(100 * time.Millisecond)

	jobs := rec.snapshot()
	if len(jobs) != 1 {
		t.Fatalf("expected exactly 1 run after 5 schedules, got %d", len(jobs))
	}
	if jobs[0].ExpectedInboundID != ids[4] {
		t.Fatalf("expected last payload to win, got %s want %s", jobs[0].ExpectedInboundID, ids[4])
	}
}

func TestSchedulerIndependentPhones(t *testing.T) {
	rec := &runRecorder{}
	s := NewScheduler(20*time.Millisecond, rec.run, nil)

	s.Schedule(Job{Phone: "+15550001111"})
	s.Schedule(Job{Phone: "+15550002222"})

	time.Sleep(80 * time.Millisecond)

	if got := len(rec.snapshot()); got != 2 {
		t.Fatalf("expected one run per phone, got %d", got)
	}
}

func TestSchedulerCancelStopsPending(t *testing.T) {
	rec := &runRecorder{}
	s := NewScheduler(25*time.Millisecond, rec.run, nil)

	s.Schedule(Job{Phone: "+15550001111"})
	s.Cancel("+15550001111")

	time.Sleep(80 * time.Millisecond)

	if got := len(rec.snapshot()); got != 0 {
		t.Fatalf("expected 0 runs after cancel, got %d", got)
	}
}

func TestSchedulerCancelUnknownPhone(t *testing.T) {
	s := NewScheduler(time.Second, func(Job) {}, nil)
	s.Cancel("+15559999999") // must not panic
}

func TestSchedulerZeroDelayRunsSynchronously(t *testing.T) {
	rec := &runRecorder{}
	s := NewScheduler(0, rec.run, nil)

	s.Schedule(Job{Phone: "+15550001111"})

	if got := len(rec.snapshot()); got != 1 {
		t.Fatalf("expected synchronous run at zero delay, got %d runs", got)
	}
}

func TestNewSchedulerNilRunPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for nil run func")
		}
	}()
	NewScheduler(time.Second, nil, nil)
}
