package appErrors

import "fmt"

// ErrMailoutNotFound is a sentinel error
type ErrMailoutNotFound struct {
	MailoutID int
}

func (e *ErrMailoutNotFound) Error() string {
	return fmt.Sprintf("mailout with ID %d not found", e.MailoutID)
}

func NewMailoutNotFound(id int) error {
	return &ErrMailoutNotFound{MailoutID: id}
}

// ErrDeliveryNotFound is a sentinel error
type ErrDeliveryNotFound struct {
	DeliveryID int
}

func (e *ErrDeliveryNotFound) Error() string {
	return fmt.Sprintf("delivery with ID %d not found", e.DeliveryID)
}

func NewDeliveryNotFound(id int) error {
	return &ErrDeliveryNotFound{DeliveryID: id}
}

// ErrRecipientNotFound is a sentinel error
type ErrRecipientNotFound struct {
	RecipientID int
}

func (e *ErrRecipientNotFound) Error() string {
	return fmt.Sprintf("recipient with ID %d not found", e.RecipientID)
}

func NewRecipientNotFound(id int) error {
	return &ErrRecipientNotFound{RecipientID: id}
}
