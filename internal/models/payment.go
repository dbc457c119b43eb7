package models

import "time"

// Payment statuses as reported by the payment provider. Only "paid"
// activates a plan; everything else is recorded as-is.
const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
)

// Payment is one provider invoice and its lifecycle. The invoice id is
// unique; webhook retries update the row in place.
type Payment struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	InvoiceID string     `json:"invoice_id"`
	Amount    string     `json:"amount"`
	Currency  string     `json:"currency"`
	Plan      string     `json:"plan"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
}
