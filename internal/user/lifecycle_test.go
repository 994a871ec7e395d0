// AngelaMos | 2026
// lifecycle_test.go

package user

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptstudio/api/internal/config"
	"github.com/promptstudio/api/internal/core"
	"github.com/promptstudio/api/internal/payment"
	"github.com/promptstudio/api/internal/subscription"
)

type ledger struct {
	mu       sync.Mutex
	payments map[string]*payment.ManualPayment
}

func (l *ledger) Create(_ context.Context, p *payment.ManualPayment) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cp := *p
	l.payments[p.ID] = &cp
	return nil
}

func (l *ledger) GetByID(_ context.Context, id string) (*payment.ManualPayment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.payments[id]
	if !ok {
		return nil, fmt.Errorf("get payment: %w", core.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (l *ledger) ExistsByTransactionID(_ context.Context, txID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, p := range l.payments {
		if p.TransactionID == txID {
			return true, nil
		}
	}
	return false, nil
}

func (l *ledger) List(
	context.Context,
	payment.ListParams,
) ([]payment.ManualPayment, int, error) {
	return nil, 0, nil
}

func (l *ledger) MarkApproved(_ context.Context, id, by string, at time.Time) error {
	return l.decide(id, payment.StatusApproved, by, at)
}

func (l *ledger) MarkRejected(_ context.Context, id, by, _ string, at time.Time) error {
	return l.decide(id, payment.StatusRejected, by, at)
}

func (l *ledger) decide(id, status, by string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.payments[id]
	if !ok || p.Status != payment.StatusPending {
		return core.ErrConflict
	}
	p.Status = status
	p.VerifiedBy = &by
	p.VerifiedAt = &at
	return nil
}

type directTx struct{}

func (directTx) WithinTx(_ context.Context, fn func(q core.DBTX) error) error {
	return fn(nil)
}

func TestFreeUserUpgradeLifecycle(t *testing.T) {
	ctx := context.Background()

	exhausted := subscription.Free(5)
	exhausted.PromptsUsed = 5
	repo := newMemoryRepo(newUser("u1", "a@x.io", exhausted))
	users := NewService(repo, config.AdminConfig{}, 5)

	book := &ledger{payments: make(map[string]*payment.ManualPayment)}
	payments := payment.NewService(payment.ServiceConfig{
		Repo:        book,
		Tx:          directTx{},
		RepoFor:     func(core.DBTX) payment.Repository { return book },
		AccountsFor: func(core.DBTX) payment.Accounts { return repo },
	})

	_, err := users.Reserve(ctx, "u1", 1)
	var appErr *core.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, subscription.ReasonFreeTierLimit, appErr.Message)

	submitted, err := payments.Submit(ctx, "u1", payment.SubmitRequest{
		Plan:          "Professional Plan",
		Amount:        1500,
		BillingCycle:  "monthly",
		PaymentMethod: "nagad",
		SenderNumber:  "01822222222",
		TransactionID: "NG-77F3",
	})
	require.NoError(t, err)

	_, err = payments.Approve(ctx, submitted.PaymentReference, "ops@studio.io")
	require.NoError(t, err)

	sub, err := users.Reserve(ctx, "u1", 1)
	require.NoError(t, err)
	assert.Equal(t, subscription.PlanProfessional, sub.Plan)
	assert.Equal(t, 500, sub.PromptsLimit)

	stored, err := repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.PromptsUsed)
	assert.Equal(t, subscription.CycleMonthly, stored.BillingCycle)
	require.NotNil(t, stored.ExpiresAt)
}
