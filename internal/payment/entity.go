// AngelaMos | 2026
// entity.go

package payment

import (
	"time"
)

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

type ManualPayment struct {
	ID            string     `db:"id"`
	UserID        string     `db:"user_id"`
	Plan          string     `db:"plan"`
	Amount        float64    `db:"amount"`
	Currency      string     `db:"currency"`
	BillingCycle  string     `db:"billing_cycle"`
	PaymentMethod string     `db:"payment_method"`
	SenderNumber  string     `db:"sender_number"`
	TransactionID string     `db:"transaction_id"`
	Status        string     `db:"status"`
	SubmittedAt   time.Time  `db:"submitted_at"`
	VerifiedAt    *time.Time `db:"verified_at"`
	VerifiedBy    *string    `db:"verified_by"`
	AdminNotes    *string    `db:"admin_notes"`
}

func (p *ManualPayment) IsPending() bool {
	return p.Status == StatusPending
}

// IsTerminal reports whether an admin has already decided the payment.
func (p *ManualPayment) IsTerminal() bool {
	return p.Status == StatusApproved || p.Status == StatusRejected
}
