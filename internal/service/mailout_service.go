package service

import (
	"context"

	"github.com/rs/zerolog"

	appErrors "github.com/DmitryTakmakov/mailout-service/internal/errors"
	"github.com/DmitryTakmakov/mailout-service/internal/model"
	"github.com/DmitryTakmakov/mailout-service/internal/repository"
	"github.com/DmitryTakmakov/mailout-service/internal/scheduler"
)

// MailoutService is the boundary the HTTP layer talks to. Every write goes
// through here so the fan-out engine runs exactly once per saved mailout.
type MailoutService struct {
	Mailouts   repository.MailoutRepositoryInterface
	Deliveries repository.DeliveryRepositoryInterface
	Scheduler  scheduler.Scheduler
	Fanout     *Fanout
	Log        zerolog.Logger
}

// MailoutSummary is a list row: the mailout plus delivery counts by status.
type MailoutSummary struct {
	model.Mailout
	Deliveries map[string]int `json:"deliveries"`
}

// MailoutDetail is the single-mailout view with its delivery records.
type MailoutDetail struct {
	model.Mailout
	Deliveries []model.Delivery `json:"deliveries"`
}

func (s *MailoutService) Create(ctx context.Context, m *model.Mailout) error {
	if err := s.Mailouts.Create(m); err != nil {
		return err
	}
	return s.Fanout.OnMailoutSaved(ctx, m)
}

func (s *MailoutService) Update(ctx context.Context, m *model.Mailout) error {
	if err := s.Mailouts.Update(m); err != nil {
		return err
	}
	return s.Fanout.OnMailoutSaved(ctx, m)
}

func (s *MailoutService) Get(id int) (*MailoutDetail, error) {
	m, err := s.Mailouts.GetByID(id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, appErrors.NewMailoutNotFound(id)
	}
	deliveries, err := s.Deliveries.ListByMailout(id)
	if err != nil {
		return nil, err
	}
	return &MailoutDetail{Mailout: *m, Deliveries: deliveries}, nil
}

// List returns paginated mailout summaries with per-status delivery counts.
func (s *MailoutService) List(page, pageSize int) ([]MailoutSummary, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	mailouts, total, err := s.Mailouts.List(offset, pageSize)
	if err != nil {
		return nil, nil, err
	}

	summaries := make([]MailoutSummary, 0, len(mailouts))
	for _, m := range mailouts {
		stats, err := s.Deliveries.CountByStatus(m.ID)
		if err != nil {
			return nil, nil, err
		}
		summaries = append(summaries, MailoutSummary{Mailout: *m, Deliveries: stats})
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}
	return summaries, pagination, nil
}

// Delete revokes every outstanding task handle of the mailout, then removes
// it; deliveries cascade with the row.
func (s *MailoutService) Delete(ctx context.Context, id int) error {
	m, err := s.Mailouts.GetByID(id)
	if err != nil {
		return err
	}
	if m == nil {
		return appErrors.NewMailoutNotFound(id)
	}

	deliveries, err := s.Deliveries.ListByMailout(id)
	if err != nil {
		return err
	}
	for _, del := range deliveries {
		_ = s.Scheduler.Revoke(ctx, del.TaskHandle)
	}
	return s.Mailouts.Delete(id)
}

func (s *MailoutService) GetDelivery(id int) (*model.Delivery, error) {
	del, err := s.Deliveries.GetByID(id)
	if err != nil {
		return nil, err
	}
	if del == nil {
		return nil, appErrors.NewDeliveryNotFound(id)
	}
	return del, nil
}

// DeleteDelivery revokes the delivery's task handle and removes the row.
func (s *MailoutService) DeleteDelivery(ctx context.Context, id int) error {
	del, err := s.Deliveries.GetByID(id)
	if err != nil {
		return err
	}
	if del == nil {
		return appErrors.NewDeliveryNotFound(id)
	}
	_ = s.Scheduler.Revoke(ctx, del.TaskHandle)
	return s.Deliveries.Delete(id)
}
