package respond

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/obsidianauto/tint-ai-platform/internal/workflow"
	"github.com/obsidianauto/tint-ai-platform/pkg/logging"
)

// Job is the payload captured when a reply attempt is scheduled. A later
// Schedule for the same phone supersedes it; payloads are never queued.
type Job struct {
	Phone             string
	Context           *workflow.Context
	ExpectedInboundID uuid.UUID
}

type pendingReply struct {
	timer *time.Timer
	seq   uint64
}

// Scheduler debounces reply attempts per phone. All state is process-local
// and lost on restart; scaling beyond one instance would need a shared keyed
// timer store.
type Scheduler struct {
	mu      sync.Mutex
	pending map[string]*pendingReply
	seq     uint64

	delay  time.Duration
	run    func(Job)
	logger *logging.Logger
}

func NewScheduler(delay time.Duration, run func(Job), logger *logging.Logger) *Scheduler {
	if run == nil {
		panic("respond: run func cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{
		pending: make(map[string]*pendingReply),
		delay:   delay,
		run:     run,
		logger:  logger,
	}
}

// Schedule cancels any pending timer for the job's phone and starts a new
// one. A non-positive delay runs the job synchronously.
func (s *Scheduler) Schedule(job Job) {
	if s.delay <= 0 {
		s.run(job)
		return
	}

	s.mu.Lock()
	if existing, ok := s.pending[job.Phone]; ok {
		existing.timer.Stop()
	}
	s.seq++
	entry := &pendingReply{seq: s.seq}
	mySeq := s.seq
	entry.timer = time.AfterFunc(s.delay, func() {
		// Remove the entry before running so a Cancel racing with the
		// firing timer is always safe, and bail out if this timer was
		// superseded while waiting for the lock.
		s.mu.Lock()
		current, ok := s.pending[job.Phone]
		if !ok || current.seq != mySeq {
			s.mu.Unlock()
			return
		}
		delete(s.pending, job.Phone)
		s.mu.Unlock()
		s.run(job)
	})
	s.pending[job.Phone] = entry
	s.mu.Unlock()
}

// Cancel clears the pending timer for phone; no-op when nothing is pending.
func (s *Scheduler) Cancel(phone string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.pending[phone]; ok {
		existing.timer.Stop()
		delete(s.pending, phone)
	}
}
