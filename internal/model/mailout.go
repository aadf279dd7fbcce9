package model

import "time"

// Filter kinds for selecting mailout recipients.
const (
	FilterTag           = "tag"
	FilterCarrierPrefix = "carrier_prefix"
)

type Mailout struct {
	ID          int        `db:"id" json:"id"`
	StartsAt    time.Time  `db:"starts_at" json:"starts_at"`
	FinishesAt  time.Time  `db:"finishes_at" json:"finishes_at"`
	Text        string     `db:"text" json:"text"`
	FilterKind  string     `db:"filter_kind" json:"filter_kind"`
	FilterValue string     `db:"filter_value" json:"filter_value"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// Active reports whether the sending window is still open at t.
func (m *Mailout) Active(t time.Time) bool {
	return t.Before(m.FinishesAt)
}
