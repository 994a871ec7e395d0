// AngelaMos | 2026
// dto.go

package payment

import (
	"time"

	"github.com/promptstudio/api/internal/subscription"
)

type SubmitRequest struct {
	Plan          string  `json:"plan"           validate:"required,max=100"`
	Amount        float64 `json:"amount"         validate:"required,gt=0"`
	Currency      string  `json:"currency"       validate:"omitempty,min=3,max=8"`
	BillingCycle  string  `json:"billing_cycle"  validate:"omitempty,max=20"`
	PaymentMethod string  `json:"payment_method" validate:"required,max=50"`
	SenderNumber  string  `json:"sender_number"  validate:"required,max=32"`
	TransactionID string  `json:"transaction_id" validate:"required,max=100"`
}

type SubmitResponse struct {
	PaymentReference string `json:"payment_reference"`
	Status           string `json:"status"`
}

type ApproveRequest struct {
	PaymentID string `json:"payment_id" validate:"required"`
}

type RejectRequest struct {
	PaymentID string `json:"payment_id" validate:"required"`
	Reason    string `json:"reason"     validate:"max=500"`
}

type PaymentResponse struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	Plan          string     `json:"plan"`
	Amount        float64    `json:"amount"`
	Currency      string     `json:"currency"`
	BillingCycle  string     `json:"billing_cycle"`
	PaymentMethod string     `json:"payment_method"`
	SenderNumber  string     `json:"sender_number"`
	TransactionID string     `json:"transaction_id"`
	Status        string     `json:"status"`
	SubmittedAt   time.Time  `json:"submitted_at"`
	VerifiedAt    *time.Time `json:"verified_at,omitempty"`
	VerifiedBy    *string    `json:"verified_by,omitempty"`
	AdminNotes    *string    `json:"admin_notes,omitempty"`
}

type ApprovalResponse struct {
	Payment      PaymentResponse           `json:"payment"`
	Subscription subscription.Subscription `json:"subscription"`
}

type ListParams struct {
	UserID   string
	Status   string
	Page     int
	PageSize int
}

func (p *ListParams) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 20
	}
	if p.PageSize > 100 {
		p.PageSize = 100
	}
}

func (p *ListParams) Offset() int {
	return (p.Page - 1) * p.PageSize
}

func ToPaymentResponse(p *ManualPayment) PaymentResponse {
	return PaymentResponse{
		ID:            p.ID,
		UserID:        p.UserID,
		Plan:          p.Plan,
		Amount:        p.Amount,
		Currency:      p.Currency,
		BillingCycle:  p.BillingCycle,
		PaymentMethod: p.PaymentMethod,
		SenderNumber:  p.SenderNumber,
		TransactionID: p.TransactionID,
		Status:        p.Status,
		SubmittedAt:   p.SubmittedAt,
		VerifiedAt:    p.VerifiedAt,
		VerifiedBy:    p.VerifiedBy,
		AdminNotes:    p.AdminNotes,
	}
}

func ToPaymentResponseList(payments []ManualPayment) []PaymentResponse {
	out := make([]PaymentResponse, 0, len(payments))
	for i := range payments {
		out = append(out, ToPaymentResponse(&payments[i]))
	}
	return out
}
