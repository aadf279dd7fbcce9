package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/DmitryTakmakov/mailout-service/internal/model"
	"github.com/DmitryTakmakov/mailout-service/internal/repository"
	"github.com/DmitryTakmakov/mailout-service/internal/scheduler"
)

// Fanout expands a mailout into per-recipient deliveries. It runs once per
// mailout write: the boundary layer calls OnMailoutSaved explicitly after
// every create or update.
type Fanout struct {
	Recipients repository.RecipientRepositoryInterface
	Deliveries repository.DeliveryRepositoryInterface
	Dispatcher *Dispatcher
	Scheduler  scheduler.Scheduler
	Locks      *DeliveryLocks
	Log        zerolog.Logger
}

// OnMailoutSaved re-evaluates the filter and rebuilds the delivery set.
//
// Existing deliveries first get their task handles revoked (best-effort,
// success rows included; the reconciler ignores events against terminal
// rows) and every non-success row is deleted. Then a fresh delivery is
// created and submitted for each recipient in the recomputed set. A
// recipient with a prior success row gets a duplicate fresh row: deliveries
// are attempt records, not unique per recipient.
func (f *Fanout) OnMailoutSaved(ctx context.Context, m *model.Mailout) error {
	recipients, err := f.matchRecipients(m)
	if err != nil {
		return fmt.Errorf("match recipients: %w", err)
	}

	existing, err := f.Deliveries.ListByMailout(m.ID)
	if err != nil {
		return fmt.Errorf("list deliveries: %w", err)
	}
	for _, del := range existing {
		_ = f.Scheduler.Revoke(ctx, del.TaskHandle)
		if del.Status == model.StatusSuccess {
			continue
		}
		if err := f.deleteUnlessSucceeded(del.ID); err != nil {
			return fmt.Errorf("delete delivery %d: %w", del.ID, err)
		}
	}

	created := 0
	for i := range recipients {
		rec := &recipients[i]
		del := &model.Delivery{
			MailoutID:   m.ID,
			RecipientID: rec.ID,
			Status:      model.StatusPending,
		}
		if err := f.Deliveries.Create(del); err != nil {
			f.Log.Error().Err(err).Int("recipient_id", rec.ID).Msg("create delivery failed")
			continue
		}
		if err := f.Dispatcher.Submit(ctx, m, rec, del); err != nil {
			f.Log.Error().Err(err).Int("delivery_id", del.ID).Msg("submit delivery failed")
			continue
		}
		created++
	}

	f.Log.Info().
		Int("mailout_id", m.ID).
		Int("matched", len(recipients)).
		Int("created", created).
		Int("replaced", len(existing)).
		Msg("mailout fanned out")
	return nil
}

// deleteUnlessSucceeded removes one delivery under its lock. The status from
// the pre-lock listing may be stale: a completion event can settle the row to
// success between the list and this point, so the row is re-read under the
// lock and a settled success survives the rebuild.
func (f *Fanout) deleteUnlessSucceeded(id int) error {
	f.Locks.Lock(id)
	defer f.Locks.Unlock(id)

	cur, err := f.Deliveries.GetByID(id)
	if err != nil {
		return err
	}
	if cur == nil || cur.Status == model.StatusSuccess {
		return nil
	}
	return f.Deliveries.Delete(id)
}

func (f *Fanout) matchRecipients(m *model.Mailout) ([]model.Recipient, error) {
	switch m.FilterKind {
	case model.FilterTag:
		return f.Recipients.FindByTag(m.FilterValue)
	case model.FilterCarrierPrefix:
		return f.Recipients.FindByCarrierPrefix(m.FilterValue)
	default:
		return nil, fmt.Errorf("unknown filter kind %q", m.FilterKind)
	}
}
