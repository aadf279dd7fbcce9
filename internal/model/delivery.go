package model

import "time"

// Delivery statuses. Success, failure and revoked are terminal.
const (
	StatusPending = "pending"
	StatusRetry   = "retry"
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusRevoked = "revoked"
)

// Delivery is one recipient's attempt record for a mailout. It is the unit
// of scheduling: exactly one task handle is outstanding per non-terminal row.
type Delivery struct {
	ID          int        `db:"id" json:"id"`
	MailoutID   int        `db:"mailout_id" json:"mailout_id"`
	RecipientID int        `db:"recipient_id" json:"recipient_id"`
	TaskHandle  string     `db:"task_handle" json:"task_handle"`
	Status      string     `db:"status" json:"status"`
	SentAt      *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// Terminal reports whether status admits no further transitions.
func Terminal(status string) bool {
	switch status {
	case StatusSuccess, StatusFailure, StatusRevoked:
		return true
	}
	return false
}
