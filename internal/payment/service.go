// AngelaMos | 2026
// service.go

package payment

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/promptstudio/api/internal/core"
	"github.com/promptstudio/api/internal/events"
	"github.com/promptstudio/api/internal/metrics"
	"github.com/promptstudio/api/internal/subscription"
)

const defaultCurrency = "BDT"

// Accounts is the part of the account store an approval writes to.
type Accounts interface {
	ActivateSubscription(
		ctx context.Context,
		userID string,
		sub subscription.Subscription,
	) error
}

type ServiceConfig struct {
	Repo Repository
	Tx   core.Transactor

	// RepoFor and AccountsFor build stores bound to the approval
	// transaction.
	RepoFor     func(q core.DBTX) Repository
	AccountsFor func(q core.DBTX) Accounts

	Publisher       events.Publisher
	Metrics         metrics.Recorder
	DefaultCurrency string
}

type Service struct {
	repo        Repository
	tx          core.Transactor
	repoFor     func(q core.DBTX) Repository
	accountsFor func(q core.DBTX) Accounts
	publisher   events.Publisher
	metrics     metrics.Recorder
	currency    string
	now         func() time.Time
}

func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		repo:        cfg.Repo,
		tx:          cfg.Tx,
		repoFor:     cfg.RepoFor,
		accountsFor: cfg.AccountsFor,
		publisher:   cfg.Publisher,
		metrics:     cfg.Metrics,
		currency:    strings.ToUpper(strings.TrimSpace(cfg.DefaultCurrency)),
		now:         time.Now,
	}

	if s.publisher == nil {
		s.publisher = events.Nop{}
	}
	if s.metrics == nil {
		s.metrics = metrics.Nop{}
	}
	if s.currency == "" {
		s.currency = defaultCurrency
	}

	return s
}

// Submit records a payment proof for admin review.
func (s *Service) Submit(
	ctx context.Context,
	userID string,
	req SubmitRequest,
) (*SubmitResponse, error) {
	if userID == "" {
		return nil, core.UnauthorizedError("")
	}

	p := &ManualPayment{
		ID:            uuid.New().String(),
		UserID:        userID,
		Plan:          strings.TrimSpace(req.Plan),
		Amount:        req.Amount,
		Currency:      strings.ToUpper(strings.TrimSpace(req.Currency)),
		BillingCycle:  subscription.NormalizeBillingCycle(req.BillingCycle),
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
		SenderNumber:  strings.TrimSpace(req.SenderNumber),
		TransactionID: strings.TrimSpace(req.TransactionID),
		Status:        StatusPending,
		SubmittedAt:   s.now().UTC(),
	}

	if p.Currency == "" {
		p.Currency = s.currency
	}

	if err := validateSubmission(p); err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByTransactionID(ctx, p.TransactionID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, core.DuplicateError("transaction_id")
	}

	if err := s.repo.Create(ctx, p); err != nil {
		if errors.Is(err, core.ErrDuplicateKey) {
			return nil, core.DuplicateError("transaction_id")
		}
		return nil, err
	}

	s.metrics.PaymentSubmitted(p.Plan, p.Currency, p.Amount)
	core.AddSpanEvent(ctx, "manual_payment.submitted",
		attribute.String("payment_id", p.ID),
	)
	slog.InfoContext(ctx, "manual payment submitted",
		"payment_id", p.ID,
		"user_id", p.UserID,
		"plan", p.Plan,
	)

	events.Emit(ctx, s.publisher, events.Event{
		Type:    events.PaymentSubmitted,
		Key:     p.UserID,
		Payload: ToPaymentResponse(p),
	})

	return &SubmitResponse{
		PaymentReference: p.ID,
		Status:           p.Status,
	}, nil
}

// Approve settles a pending payment and activates the plan it paid for.
// The status change and the subscription write commit together; if the
// user cannot be updated the payment stays pending.
func (s *Service) Approve(
	ctx context.Context,
	paymentID, adminEmail string,
) (*ApprovalResponse, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, core.ValidationError("payment_id is required")
	}

	ctx, span := core.StartSpan(ctx, "payment.approve",
		attribute.String("payment_id", paymentID),
	)
	defer span.End()

	var (
		approved *ManualPayment
		sub      subscription.Subscription
	)

	err := s.tx.WithinTx(ctx, func(q core.DBTX) error {
		repo := s.repoFor(q)

		p, err := loadPending(ctx, repo, paymentID)
		if err != nil {
			return err
		}

		userID := strings.TrimSpace(p.UserID)
		if strings.TrimSpace(p.Plan) == "" || userID == "" {
			return core.ValidationError("payment is missing plan or user")
		}

		now := s.now().UTC()
		if err := repo.MarkApproved(ctx, p.ID, adminEmail, now); err != nil {
			return conflictOr(err)
		}

		sub = subscription.Activate(p.Plan, p.BillingCycle, p.ID, now)

		if err := s.accountsFor(q).ActivateSubscription(ctx, userID, sub); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return core.NotFoundError("user")
			}
			return err
		}

		p.Status = StatusApproved
		p.VerifiedAt = &now
		p.VerifiedBy = &adminEmail
		approved = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.PaymentDecided(StatusApproved)
	slog.InfoContext(ctx, "manual payment approved",
		"payment_id", approved.ID,
		"user_id", approved.UserID,
		"plan", sub.Plan,
		"admin", adminEmail,
	)

	events.Emit(ctx, s.publisher, events.Event{
		Type: events.PaymentApproved,
		Key:  approved.UserID,
		Payload: map[string]any{
			"payment_id":   approved.ID,
			"user_id":      approved.UserID,
			"plan":         sub.Plan,
			"limit":        sub.PromptsLimit,
			"expires_at":   sub.ExpiresAt,
			"verified_by":  adminEmail,
			"billing_type": sub.BillingCycle,
		},
	})

	return &ApprovalResponse{
		Payment:      ToPaymentResponse(approved),
		Subscription: sub,
	}, nil
}

// Reject closes a pending payment without touching the user.
func (s *Service) Reject(
	ctx context.Context,
	paymentID, adminEmail, reason string,
) (*PaymentResponse, error) {
	paymentID = strings.TrimSpace(paymentID)
	reason = strings.TrimSpace(reason)

	if paymentID == "" {
		return nil, core.ValidationError("payment_id is required")
	}

	p, err := loadPending(ctx, s.repo, paymentID)
	if err != nil {
		return nil, err
	}

	if reason == "" {
		return nil, core.ValidationError("rejection reason is required")
	}

	now := s.now().UTC()
	if err := s.repo.MarkRejected(ctx, p.ID, adminEmail, reason, now); err != nil {
		return nil, conflictOr(err)
	}

	p.Status = StatusRejected
	p.VerifiedAt = &now
	p.VerifiedBy = &adminEmail
	p.AdminNotes = &reason

	s.metrics.PaymentDecided(StatusRejected)
	slog.InfoContext(ctx, "manual payment rejected",
		"payment_id", p.ID,
		"user_id", p.UserID,
		"admin", adminEmail,
	)

	events.Emit(ctx, s.publisher, events.Event{
		Type: events.PaymentRejected,
		Key:  p.UserID,
		Payload: map[string]any{
			"payment_id":  p.ID,
			"user_id":     p.UserID,
			"reason":      reason,
			"verified_by": adminEmail,
		},
	})

	resp := ToPaymentResponse(p)
	return &resp, nil
}

func (s *Service) Get(ctx context.Context, id string) (*ManualPayment, error) {
	p, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.NotFoundError("payment")
		}
		return nil, err
	}
	return p, nil
}

func (s *Service) List(
	ctx context.Context,
	params ListParams,
) ([]ManualPayment, int, error) {
	if params.Status != "" && !isKnownStatus(params.Status) {
		return nil, 0, core.ValidationError("status must be one of: pending approved rejected")
	}
	return s.repo.List(ctx, params)
}

func (s *Service) ListForUser(
	ctx context.Context,
	userID string,
	params ListParams,
) ([]ManualPayment, int, error) {
	if userID == "" {
		return nil, 0, core.UnauthorizedError("")
	}
	params.UserID = userID
	return s.List(ctx, params)
}

func loadPending(
	ctx context.Context,
	repo Repository,
	id string,
) (*ManualPayment, error) {
	p, err := repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.NotFoundError("payment")
		}
		return nil, err
	}

	if !p.IsPending() {
		return nil, core.ConflictError("payment already processed")
	}

	return p, nil
}

func conflictOr(err error) error {
	if errors.Is(err, core.ErrConflict) {
		return core.ConflictError("payment already processed")
	}
	return err
}

func validateSubmission(p *ManualPayment) error {
	switch {
	case p.Plan == "":
		return core.ValidationError("plan is required")
	case p.Amount <= 0:
		return core.ValidationError("amount must be greater than 0")
	case p.PaymentMethod == "":
		return core.ValidationError("payment_method is required")
	case p.SenderNumber == "":
		return core.ValidationError("sender_number is required")
	case p.TransactionID == "":
		return core.ValidationError("transaction_id is required")
	}
	return nil
}

func isKnownStatus(status string) bool {
	switch status {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}
