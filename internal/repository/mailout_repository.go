package repository

import (
	"database/sql"
	"time"

	"github.com/DmitryTakmakov/mailout-service/internal/model"
)

type MailoutRepositoryInterface interface {
	Create(m *model.Mailout) error
	Update(m *model.Mailout) error
	GetByID(id int) (*model.Mailout, error)
	List(offset, limit int) ([]*model.Mailout, int, error)
	Delete(id int) error
}

type MailoutRepository struct {
	DB *sql.DB
}

func (r *MailoutRepository) Create(m *model.Mailout) error {
	m.CreatedAt = time.Now()
	query := `
        INSERT INTO mailouts (starts_at, finishes_at, text, filter_kind, filter_value, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id
    `
	return r.DB.QueryRow(query, m.StartsAt, m.FinishesAt, m.Text, m.FilterKind, m.FilterValue, m.CreatedAt).Scan(&m.ID)
}

func (r *MailoutRepository) Update(m *model.Mailout) error {
	query := `
        UPDATE mailouts
        SET starts_at=$1, finishes_at=$2, text=$3, filter_kind=$4, filter_value=$5, updated_at=NOW()
        WHERE id=$6
    `
	_, err := r.DB.Exec(query, m.StartsAt, m.FinishesAt, m.Text, m.FilterKind, m.FilterValue, m.ID)
	return err
}

// GetByID returns (nil, nil) when no mailout with that ID exists.
func (r *MailoutRepository) GetByID(id int) (*model.Mailout, error) {
	query := `
        SELECT id, starts_at, finishes_at, text, filter_kind, filter_value, created_at, updated_at
        FROM mailouts WHERE id=$1
    `
	var m model.Mailout
	err := r.DB.QueryRow(query, id).Scan(&m.ID, &m.StartsAt, &m.FinishesAt, &m.Text, &m.FilterKind, &m.FilterValue, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *MailoutRepository) List(offset, limit int) ([]*model.Mailout, int, error) {
	mailouts := []*model.Mailout{}
	query := `
        SELECT id, starts_at, finishes_at, text, filter_kind, filter_value, created_at, updated_at
        FROM mailouts
        ORDER BY finishes_at DESC
        LIMIT $1 OFFSET $2
    `
	rows, err := r.DB.Query(query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		m := &model.Mailout{}
		if err := rows.Scan(&m.ID, &m.StartsAt, &m.FinishesAt, &m.Text, &m.FilterKind, &m.FilterValue, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, 0, err
		}
		mailouts = append(mailouts, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.DB.QueryRow(`SELECT COUNT(*) FROM mailouts`).Scan(&total); err != nil {
		return nil, 0, err
	}

	return mailouts, total, nil
}

// Delete removes the mailout; deliveries go with it via ON DELETE CASCADE.
func (r *MailoutRepository) Delete(id int) error {
	_, err := r.DB.Exec(`DELETE FROM mailouts WHERE id=$1`, id)
	return err
}

var _ MailoutRepositoryInterface = (*MailoutRepository)(nil)
