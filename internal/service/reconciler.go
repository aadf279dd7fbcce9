package service

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/DmitryTakmakov/mailout-service/internal/metrics"
	"github.com/DmitryTakmakov/mailout-service/internal/model"
	"github.com/DmitryTakmakov/mailout-service/internal/repository"
	"github.com/DmitryTakmakov/mailout-service/internal/scheduler"
)

// RetryDelay is the fixed backoff between delivery attempts.
const RetryDelay = 10 * time.Minute

// Reconciler applies completion events to delivery rows. It is the only
// writer of delivery status besides the deadline sweeper; every transition
// happens under the per-delivery lock and terminal statuses absorb all
// further events, which makes duplicate and out-of-order events harmless.
type Reconciler struct {
	Deliveries repository.DeliveryRepositoryInterface
	Mailouts   repository.MailoutRepositoryInterface
	Recipients repository.RecipientRepositoryInterface
	Dispatcher *Dispatcher
	Locks      *DeliveryLocks
	Log        zerolog.Logger
	Now        func() time.Time
}

// OnCompletionEvent handles one {task_handle, outcome} event:
//
//	200      -> success, sent_at recorded
//	400      -> retry in 10 minutes if that still fits the window,
//	            otherwise left untouched (the sweeper settles it later)
//	revoked  -> failure
//	other    -> left untouched; transport-level retries belong to the executor
func (r *Reconciler) OnCompletionEvent(ctx context.Context, ev scheduler.Result) error {
	found, err := r.Deliveries.GetByTaskHandle(ev.TaskHandle)
	if err != nil {
		return err
	}
	if found == nil {
		// Deleted by an edit before its event arrived.
		r.Log.Debug().Str("task_handle", ev.TaskHandle).Msg("event for unknown handle dropped")
		return nil
	}

	r.Locks.Lock(found.ID)
	defer r.Locks.Unlock(found.ID)

	// Re-read under the lock; a concurrent event may have settled the row.
	del, err := r.Deliveries.GetByID(found.ID)
	if err != nil {
		return err
	}
	if del == nil {
		return nil
	}
	if model.Terminal(del.Status) {
		r.Log.Debug().Int("delivery_id", del.ID).Str("status", del.Status).Msg("event for settled delivery dropped")
		return nil
	}

	switch {
	case ev.Revoked:
		metrics.Deliveries.WithLabelValues("failure").Inc()
		r.Log.Info().Int("delivery_id", del.ID).Msg("delivery revoked")
		return r.Deliveries.UpdateStatus(del.ID, model.StatusFailure, nil)

	case ev.Code == http.StatusOK:
		sentAt := ev.CompletedAt
		metrics.Deliveries.WithLabelValues("success").Inc()
		r.Log.Info().Int("delivery_id", del.ID).Time("sent_at", sentAt).Msg("delivery succeeded")
		return r.Deliveries.UpdateStatus(del.ID, model.StatusSuccess, &sentAt)

	case ev.Code == http.StatusBadRequest:
		return r.retry(ctx, del)

	default:
		r.Log.Warn().Int("delivery_id", del.ID).Int("code", ev.Code).Msg("unhandled gateway code, delivery left as-is")
		return nil
	}
}

func (r *Reconciler) retry(ctx context.Context, del *model.Delivery) error {
	m, err := r.Mailouts.GetByID(del.MailoutID)
	if err != nil {
		return err
	}
	if m == nil {
		return nil
	}

	now := r.Now()
	runAt := now.Add(RetryDelay)
	if runAt.After(m.FinishesAt) {
		// No retry fits before the deadline. The row keeps its current
		// status until the sweeper fails it after finishes_at.
		metrics.Deliveries.WithLabelValues("stale").Inc()
		r.Log.Info().Int("delivery_id", del.ID).Time("finishes_at", m.FinishesAt).Msg("retry window closed")
		return nil
	}

	rec, err := r.Recipients.GetByID(del.RecipientID)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}

	if err := r.Deliveries.UpdateStatus(del.ID, model.StatusRetry, nil); err != nil {
		return err
	}
	metrics.Deliveries.WithLabelValues("retry").Inc()
	return r.Dispatcher.Resubmit(ctx, del, rec.Phone, m.Text, runAt, m.FinishesAt)
}
