package scheduler

import (
	"context"
	"time"
)

// Payload is what the executor needs to perform one send.
type Payload struct {
	DeliveryID int    `json:"delivery_id"`
	Phone      string `json:"phone"`
	Text       string `json:"text"`
}

// Task is a submission as it travels to the executor.
type Task struct {
	TaskHandle string    `json:"task_handle"`
	RunAt      time.Time `json:"run_at"`
	ExpireAt   time.Time `json:"expire_at"`
	Payload    Payload   `json:"payload"`
}

// Result is the completion event emitted once per executed (or discarded)
// task: the gateway response code, or Revoked when the task was cancelled
// or expired before it could run.
type Result struct {
	TaskHandle  string    `json:"task_handle"`
	Code        int       `json:"code"`
	Body        string    `json:"body,omitempty"`
	Revoked     bool      `json:"revoked"`
	CompletedAt time.Time `json:"completed_at"`
}

// Submission requests one delayed execution. A non-empty Handle reuses an
// existing task handle (retries keep the handle of the original attempt);
// an empty one gets generated.
type Submission struct {
	Handle   string
	RunAt    time.Time
	ExpireAt time.Time
	Payload  Payload
}

// Scheduler is the delayed-task facility. Submit registers intent and
// returns immediately; Revoke is best-effort and may lose the race with an
// execution already in flight. The eventual Result arrives asynchronously
// on whatever consumer the reconciler is wired to.
type Scheduler interface {
	Submit(ctx context.Context, sub Submission) (string, error)
	Revoke(ctx context.Context, handle string) error
}
