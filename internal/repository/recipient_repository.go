package repository

import (
	"database/sql"

	"github.com/DmitryTakmakov/mailout-service/internal/model"
)

// RecipientRepositoryInterface defines the directory lookups used by the
// fan-out engine and the CRUD handlers.
type RecipientRepositoryInterface interface {
	Create(rec *model.Recipient) error
	Update(rec *model.Recipient) error
	GetByID(id int) (*model.Recipient, error)
	Delete(id int) error
	FindByTag(tag string) ([]model.Recipient, error)
	FindByCarrierPrefix(prefix string) ([]model.Recipient, error)
}

type RecipientRepository struct {
	DB *sql.DB
}

func (r *RecipientRepository) Create(rec *model.Recipient) error {
	query := `
        INSERT INTO recipients (phone, carrier_prefix, tag, timezone)
        VALUES ($1, $2, $3, $4)
        RETURNING id
    `
	return r.DB.QueryRow(query, rec.Phone, rec.CarrierPrefix, rec.Tag, rec.Timezone).Scan(&rec.ID)
}

func (r *RecipientRepository) Update(rec *model.Recipient) error {
	query := `
        UPDATE recipients
        SET phone=$1, carrier_prefix=$2, tag=$3, timezone=$4
        WHERE id=$5
    `
	_, err := r.DB.Exec(query, rec.Phone, rec.CarrierPrefix, rec.Tag, rec.Timezone, rec.ID)
	return err
}

// GetByID returns (nil, nil) when no recipient with that ID exists.
func (r *RecipientRepository) GetByID(id int) (*model.Recipient, error) {
	query := `
        SELECT id, phone, carrier_prefix, tag, timezone
        FROM recipients
        WHERE id = $1
    `
	row := r.DB.QueryRow(query, id)

	var rec model.Recipient
	if err := row.Scan(&rec.ID, &rec.Phone, &rec.CarrierPrefix, &rec.Tag, &rec.Timezone); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (r *RecipientRepository) Delete(id int) error {
	_, err := r.DB.Exec(`DELETE FROM recipients WHERE id=$1`, id)
	return err
}

func (r *RecipientRepository) FindByTag(tag string) ([]model.Recipient, error) {
	return r.find(`SELECT id, phone, carrier_prefix, tag, timezone FROM recipients WHERE tag=$1`, tag)
}

func (r *RecipientRepository) FindByCarrierPrefix(prefix string) ([]model.Recipient, error) {
	return r.find(`SELECT id, phone, carrier_prefix, tag, timezone FROM recipients WHERE carrier_prefix=$1`, prefix)
}

func (r *RecipientRepository) find(query string, arg any) ([]model.Recipient, error) {
	rows, err := r.DB.Query(query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recipients := []model.Recipient{}
	for rows.Next() {
		var rec model.Recipient
		if err := rows.Scan(&rec.ID, &rec.Phone, &rec.CarrierPrefix, &rec.Tag, &rec.Timezone); err != nil {
			return nil, err
		}
		recipients = append(recipients, rec)
	}
	return recipients, rows.Err()
}

var _ RecipientRepositoryInterface = (*RecipientRepository)(nil)
