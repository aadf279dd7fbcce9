package executor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/DmitryTakmakov/mailout-service/internal/scheduler"
)

// Sender performs the gateway call for one delivery.
type Sender interface {
	Send(ctx context.Context, deliveryID int, phone, text string) (int, string, error)
}

// Revocations answers whether a task handle has been revoked.
type Revocations interface {
	Contains(ctx context.Context, handle string) (bool, error)
}

// Executor runs a single due task end to end: wait for the eta, honor
// revocation and expiry, call the gateway, and report the outcome as a
// completion event.
type Executor struct {
	Sender  Sender
	Revoked Revocations
	Log     zerolog.Logger
	Now     func() time.Time
}

func New(sender Sender, revoked Revocations, log zerolog.Logger) *Executor {
	return &Executor{Sender: sender, Revoked: revoked, Log: log, Now: time.Now}
}

// Execute blocks until the task's run_at, then either discards it (revoked
// or expired, reported as a revoked result) or invokes the gateway. A
// non-nil error means the gateway was unreachable and the task should be
// redelivered; no result is produced in that case.
func (e *Executor) Execute(ctx context.Context, task scheduler.Task) (scheduler.Result, error) {
	if wait := time.Until(task.RunAt); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return scheduler.Result{}, ctx.Err()
		case <-timer.C:
		}
	}

	now := e.Now()
	res := scheduler.Result{TaskHandle: task.TaskHandle, CompletedAt: now}

	revoked, err := e.Revoked.Contains(ctx, task.TaskHandle)
	if err != nil {
		// If the revocation set is unreachable the task proceeds; a revoke
		// lost this way is still best-effort by contract.
		e.Log.Warn().Err(err).Str("task_handle", task.TaskHandle).Msg("revocation check failed")
		revoked = false
	}

	if revoked || now.After(task.ExpireAt) {
		res.Revoked = true
		e.Log.Info().
			Str("task_handle", task.TaskHandle).
			Bool("expired", now.After(task.ExpireAt)).
			Msg("task discarded")
		return res, nil
	}

	code, body, err := e.Sender.Send(ctx, task.Payload.DeliveryID, task.Payload.Phone, task.Payload.Text)
	if err != nil {
		return scheduler.Result{}, err
	}

	res.Code = code
	res.Body = body
	res.CompletedAt = e.Now()
	e.Log.Info().
		Str("task_handle", task.TaskHandle).
		Int("delivery_id", task.Payload.DeliveryID).
		Int("code", code).
		Msg("task executed")
	return res, nil
}
