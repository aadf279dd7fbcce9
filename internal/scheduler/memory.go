package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SendFunc performs the actual gateway call for a due task and returns the
// response code and body.
type SendFunc func(task Task) (int, string)

// MemoryScheduler runs delayed tasks in-process with timers. It backs the
// single-binary mode and the tests; semantics mirror the AMQP path: a
// revoked or expired task still produces a completion event, carrying the
// revoked marker instead of a gateway code.
type MemoryScheduler struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	revoked map[string]bool

	send    SendFunc
	results func(Result)
	now     func() time.Time
}

func NewMemoryScheduler(send SendFunc, results func(Result)) *MemoryScheduler {
	return &MemoryScheduler{
		timers:  make(map[string]*time.Timer),
		revoked: make(map[string]bool),
		send:    send,
		results: results,
		now:     time.Now,
	}
}

func (s *MemoryScheduler) Submit(_ context.Context, sub Submission) (string, error) {
	handle := sub.Handle
	if handle == "" {
		handle = uuid.NewString()
	}

	task := Task{
		TaskHandle: handle,
		RunAt:      sub.RunAt,
		ExpireAt:   sub.ExpireAt,
		Payload:    sub.Payload,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// A resubmission under the same handle clears the revoked flag: the
	// retry is a fresh attempt.
	delete(s.revoked, handle)
	if t, ok := s.timers[handle]; ok {
		t.Stop()
	}

	delay := time.Until(task.RunAt)
	if delay < 0 {
		delay = 0
	}
	s.timers[handle] = time.AfterFunc(delay, func() { s.fire(task) })
	return handle, nil
}

func (s *MemoryScheduler) Revoke(_ context.Context, handle string) error {
	if handle == "" {
		return nil
	}
	s.mu.Lock()
	s.revoked[handle] = true
	s.mu.Unlock()
	return nil
}

func (s *MemoryScheduler) fire(task Task) {
	s.mu.Lock()
	delete(s.timers, task.TaskHandle)
	revoked := s.revoked[task.TaskHandle]
	delete(s.revoked, task.TaskHandle)
	s.mu.Unlock()

	now := s.now()
	res := Result{TaskHandle: task.TaskHandle, CompletedAt: now}

	if revoked || now.After(task.ExpireAt) {
		res.Revoked = true
	} else {
		res.Code, res.Body = s.send(task)
	}
	s.results(res)
}

var _ Scheduler = (*MemoryScheduler)(nil)
