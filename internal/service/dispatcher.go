package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/DmitryTakmakov/mailout-service/internal/model"
	"github.com/DmitryTakmakov/mailout-service/internal/repository"
	"github.com/DmitryTakmakov/mailout-service/internal/scheduler"
)

// Dispatcher registers deliveries with the delayed-task facility. It never
// performs (or waits for) the actual send; it only records intent and the
// returned handle.
type Dispatcher struct {
	Deliveries repository.DeliveryRepositoryInterface
	Scheduler  scheduler.Scheduler
	Log        zerolog.Logger
}

// Submit schedules the initial attempt for a delivery: run at the mailout's
// start, expire at its finish. The handle and pending status are recorded
// on the row before returning.
func (d *Dispatcher) Submit(ctx context.Context, m *model.Mailout, rec *model.Recipient, del *model.Delivery) error {
	handle, err := d.Scheduler.Submit(ctx, scheduler.Submission{
		RunAt:    m.StartsAt,
		ExpireAt: m.FinishesAt,
		Payload: scheduler.Payload{
			DeliveryID: del.ID,
			Phone:      rec.Phone,
			Text:       m.Text,
		},
	})
	if err != nil {
		return err
	}

	del.TaskHandle = handle
	del.Status = model.StatusPending
	if err := d.Deliveries.SetTaskHandle(del.ID, handle, model.StatusPending); err != nil {
		return err
	}

	d.Log.Info().
		Int("delivery_id", del.ID).
		Int("mailout_id", m.ID).
		Str("task_handle", handle).
		Time("run_at", m.StartsAt).
		Msg("delivery submitted")
	return nil
}

// Resubmit schedules a retry attempt, reusing the delivery's existing
// handle so at most one task is outstanding per row.
func (d *Dispatcher) Resubmit(ctx context.Context, del *model.Delivery, phone, text string, runAt, expireAt time.Time) error {
	_, err := d.Scheduler.Submit(ctx, scheduler.Submission{
		Handle:   del.TaskHandle,
		RunAt:    runAt,
		ExpireAt: expireAt,
		Payload: scheduler.Payload{
			DeliveryID: del.ID,
			Phone:      phone,
			Text:       text,
		},
	})
	if err != nil {
		return err
	}

	d.Log.Info().
		Int("delivery_id", del.ID).
		Str("task_handle", del.TaskHandle).
		Time("run_at", runAt).
		Msg("delivery rescheduled")
	return nil
}
