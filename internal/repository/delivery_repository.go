package repository

import (
	"database/sql"
	"time"

	"github.com/DmitryTakmakov/mailout-service/internal/model"
)

type DeliveryRepositoryInterface interface {
	Create(d *model.Delivery) error
	GetByID(id int) (*model.Delivery, error)
	GetByTaskHandle(handle string) (*model.Delivery, error)
	ListByMailout(mailoutID int) ([]model.Delivery, error)
	SetTaskHandle(id int, handle, status string) error
	UpdateStatus(id int, status string, sentAt *time.Time) error
	Delete(id int) error
	CountByStatus(mailoutID int) (map[string]int, error)
	ExpireOverdue(now time.Time) (int64, error)
}

type DeliveryRepository struct {
	DB *sql.DB
}

func (r *DeliveryRepository) Create(d *model.Delivery) error {
	now := time.Now()
	d.CreatedAt = now
	d.UpdatedAt = now
	if d.Status == "" {
		d.Status = model.StatusPending
	}
	query := `
        INSERT INTO deliveries (mailout_id, recipient_id, task_handle, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id
    `
	return r.DB.QueryRow(query, d.MailoutID, d.RecipientID, d.TaskHandle, d.Status, d.CreatedAt, d.UpdatedAt).Scan(&d.ID)
}

// GetByID returns (nil, nil) when no delivery with that ID exists.
func (r *DeliveryRepository) GetByID(id int) (*model.Delivery, error) {
	return r.get(`
        SELECT id, mailout_id, recipient_id, task_handle, status, sent_at, created_at, updated_at
        FROM deliveries WHERE id=$1
    `, id)
}

// GetByTaskHandle returns the most recently created delivery carrying the
// handle. Retries reuse the original handle, so the handle stays unique per
// logical delivery; the ordering guards against leftovers from edits.
func (r *DeliveryRepository) GetByTaskHandle(handle string) (*model.Delivery, error) {
	return r.get(`
        SELECT id, mailout_id, recipient_id, task_handle, status, sent_at, created_at, updated_at
        FROM deliveries WHERE task_handle=$1
        ORDER BY id DESC LIMIT 1
    `, handle)
}

func (r *DeliveryRepository) get(query string, arg any) (*model.Delivery, error) {
	var d model.Delivery
	err := r.DB.QueryRow(query, arg).Scan(
		&d.ID, &d.MailoutID, &d.RecipientID, &d.TaskHandle,
		&d.Status, &d.SentAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

func (r *DeliveryRepository) ListByMailout(mailoutID int) ([]model.Delivery, error) {
	query := `
        SELECT id, mailout_id, recipient_id, task_handle, status, sent_at, created_at, updated_at
        FROM deliveries
        WHERE mailout_id=$1
        ORDER BY id
    `
	rows, err := r.DB.Query(query, mailoutID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deliveries := []model.Delivery{}
	for rows.Next() {
		var d model.Delivery
		if err := rows.Scan(&d.ID, &d.MailoutID, &d.RecipientID, &d.TaskHandle, &d.Status, &d.SentAt, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

// SetTaskHandle records the handle returned by the scheduler together with
// the status of the fresh submission.
func (r *DeliveryRepository) SetTaskHandle(id int, handle, status string) error {
	query := `UPDATE deliveries SET task_handle=$1, status=$2, updated_at=NOW() WHERE id=$3`
	_, err := r.DB.Exec(query, handle, status, id)
	return err
}

func (r *DeliveryRepository) UpdateStatus(id int, status string, sentAt *time.Time) error {
	query := `UPDATE deliveries SET status=$1, sent_at=COALESCE($2, sent_at), updated_at=NOW() WHERE id=$3`
	_, err := r.DB.Exec(query, status, sentAt, id)
	return err
}

func (r *DeliveryRepository) Delete(id int) error {
	_, err := r.DB.Exec(`DELETE FROM deliveries WHERE id=$1`, id)
	return err
}

func (r *DeliveryRepository) CountByStatus(mailoutID int) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM deliveries WHERE mailout_id=$1 GROUP BY status`
	rows, err := r.DB.Query(query, mailoutID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{
		model.StatusPending: 0,
		model.StatusRetry:   0,
		model.StatusSuccess: 0,
		model.StatusFailure: 0,
		model.StatusRevoked: 0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// ExpireOverdue marks every non-terminal delivery whose mailout window has
// closed as failed and returns how many rows were touched. Past finishes_at
// no retry may be submitted, so nothing legitimate can race this update.
func (r *DeliveryRepository) ExpireOverdue(now time.Time) (int64, error) {
	query := `
        UPDATE deliveries d
        SET status=$1, updated_at=NOW()
        FROM mailouts m
        WHERE d.mailout_id = m.id
          AND d.status IN ($2, $3)
          AND m.finishes_at < $4
    `
	res, err := r.DB.Exec(query, model.StatusFailure, model.StatusPending, model.StatusRetry, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

var _ DeliveryRepositoryInterface = (*DeliveryRepository)(nil)
