// AngelaMos | 2026
// service_test.go

package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptstudio/api/internal/core"
	"github.com/promptstudio/api/internal/events"
	"github.com/promptstudio/api/internal/subscription"
)

type memStore struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	payments map[string]*ManualPayment
	users    map[string]subscription.Subscription
}

func newMemStore() *memStore {
	return &memStore{
		payments: make(map[string]*ManualPayment),
		users:    make(map[string]subscription.Subscription),
	}
}

func (s *memStore) payment(id string) ManualPayment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.payments[id]
}

func (s *memStore) user(id string) subscription.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id]
}

func (s *memStore) addPending(id, userID, plan, cycle string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[id] = &ManualPayment{
		ID:            id,
		UserID:        userID,
		Plan:          plan,
		Amount:        500,
		Currency:      "BDT",
		BillingCycle:  cycle,
		PaymentMethod: "bkash",
		SenderNumber:  "01700000000",
		TransactionID: "TX-" + id,
		Status:        StatusPending,
		SubmittedAt:   time.Now().UTC(),
	}
}

type memRepo struct {
	s *memStore
}

func (r memRepo) Create(_ context.Context, p *ManualPayment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.payments {
		if existing.TransactionID == p.TransactionID {
			return fmt.Errorf("create manual payment: %w", core.ErrDuplicateKey)
		}
	}
	cp := *p
	r.s.payments[p.ID] = &cp
	return nil
}

func (r memRepo) GetByID(_ context.Context, id string) (*ManualPayment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.payments[id]
	if !ok {
		return nil, fmt.Errorf("get manual payment: %w", core.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (r memRepo) ExistsByTransactionID(_ context.Context, txID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, p := range r.s.payments {
		if p.TransactionID == txID {
			return true, nil
		}
	}
	return false, nil
}

func (r memRepo) List(_ context.Context, params ListParams) ([]ManualPayment, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []ManualPayment
	for _, p := range r.s.payments {
		if params.UserID != "" && p.UserID != params.UserID {
			continue
		}
		if params.Status != "" && p.Status != params.Status {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (r memRepo) MarkApproved(_ context.Context, id, by string, at time.Time) error {
	return r.transition(id, StatusApproved, by, nil, at)
}

func (r memRepo) MarkRejected(_ context.Context, id, by, reason string, at time.Time) error {
	return r.transition(id, StatusRejected, by, &reason, at)
}

func (r memRepo) transition(id, status, by string, notes *string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.payments[id]
	if !ok || p.Status != StatusPending {
		return fmt.Errorf("transition: %w", core.ErrConflict)
	}
	p.Status = status
	p.VerifiedAt = &at
	p.VerifiedBy = &by
	p.AdminNotes = notes
	return nil
}

type memAccounts struct {
	s *memStore
}

func (a memAccounts) ActivateSubscription(
	_ context.Context,
	userID string,
	sub subscription.Subscription,
) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	if _, ok := a.s.users[userID]; !ok {
		return fmt.Errorf("activate subscription: %w", core.ErrNotFound)
	}
	a.s.users[userID] = sub
	return nil
}

// memTx serializes transactions and restores the store when fn fails.
type memTx struct {
	s *memStore
}

func (t memTx) WithinTx(_ context.Context, fn func(q core.DBTX) error) error {
	t.s.txMu.Lock()
	defer t.s.txMu.Unlock()

	t.s.mu.Lock()
	payments := make(map[string]*ManualPayment, len(t.s.payments))
	for id, p := range t.s.payments {
		cp := *p
		payments[id] = &cp
	}
	users := make(map[string]subscription.Subscription, len(t.s.users))
	for id, u := range t.s.users {
		users[id] = u
	}
	t.s.mu.Unlock()

	if err := fn(nil); err != nil {
		t.s.mu.Lock()
		t.s.payments = payments
		t.s.users = users
		t.s.mu.Unlock()
		return err
	}
	return nil
}

type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *capturePublisher) Publish(_ context.Context, e events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *capturePublisher) Close() error { return nil }

func (c *capturePublisher) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Type)
	}
	return out
}

type countingRecorder struct {
	submitted atomic.Int64
	approved  atomic.Int64
	rejected  atomic.Int64
}

func (c *countingRecorder) PaymentSubmitted(string, string, float64) { c.submitted.Add(1) }
func (c *countingRecorder) GateDecision(bool)                        {}
func (c *countingRecorder) Generation(string, string)                {}

func (c *countingRecorder) PaymentDecided(decision string) {
	switch decision {
	case StatusApproved:
		c.approved.Add(1)
	case StatusRejected:
		c.rejected.Add(1)
	}
}

type fixture struct {
	store   *memStore
	svc     *Service
	events  *capturePublisher
	metrics *countingRecorder
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := newMemStore()
	pub := &capturePublisher{}
	rec := &countingRecorder{}

	svc := NewService(ServiceConfig{
		Repo:        memRepo{s: store},
		Tx:          memTx{s: store},
		RepoFor:     func(core.DBTX) Repository { return memRepo{s: store} },
		AccountsFor: func(core.DBTX) Accounts { return memAccounts{s: store} },
		Publisher:   pub,
		Metrics:     rec,
	})

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	return &fixture{store: store, svc: svc, events: pub, metrics: rec, now: now}
}

func appErrCode(t *testing.T, err error) string {
	t.Helper()
	var appErr *core.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %v", err)
	return appErr.Code
}

func validSubmit() SubmitRequest {
	return SubmitRequest{
		Plan:          "Starter Plan",
		Amount:        500,
		BillingCycle:  "Monthly",
		PaymentMethod: "bkash",
		SenderNumber:  "01711111111",
		TransactionID: "8N7A6B5C",
	}
}

func TestServiceSubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.svc.Submit(ctx, "user-1", validSubmit())
	require.NoError(t, err)
	assert.Equal(t, StatusPending, resp.Status)
	require.NotEmpty(t, resp.PaymentReference)

	stored := f.store.payment(resp.PaymentReference)
	assert.Equal(t, "user-1", stored.UserID)
	assert.Equal(t, "BDT", stored.Currency)
	assert.Equal(t, subscription.CycleMonthly, stored.BillingCycle)
	assert.Equal(t, f.now, stored.SubmittedAt)
	assert.Nil(t, stored.VerifiedAt)

	assert.Equal(t, []string{events.PaymentSubmitted}, f.events.types())
	assert.Equal(t, int64(1), f.metrics.submitted.Load())
}

func TestServiceSubmitDuplicateTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, "user-1", validSubmit())
	require.NoError(t, err)

	req := validSubmit()
	req.TransactionID = "  8N7A6B5C  "
	_, err = f.svc.Submit(ctx, "user-2", req)
	require.Error(t, err)
	assert.Equal(t, "DUPLICATE", appErrCode(t, err))

	payments, total, err := f.svc.List(ctx, ListParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "user-1", payments[0].UserID)
}

func TestServiceSubmitValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SubmitRequest)
	}{
		{"blank plan", func(r *SubmitRequest) { r.Plan = "   " }},
		{"zero amount", func(r *SubmitRequest) { r.Amount = 0 }},
		{"blank method", func(r *SubmitRequest) { r.PaymentMethod = " " }},
		{"blank sender", func(r *SubmitRequest) { r.SenderNumber = "\t" }},
		{"blank transaction", func(r *SubmitRequest) { r.TransactionID = "" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			req := validSubmit()
			tc.mutate(&req)

			_, err := f.svc.Submit(context.Background(), "user-1", req)
			require.Error(t, err)
			assert.Equal(t, "VALIDATION_ERROR", appErrCode(t, err))
			assert.Empty(t, f.store.payments)
		})
	}
}

func TestServiceSubmitRequiresUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Submit(context.Background(), "", validSubmit())
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrUnauthorized))
}

func TestServiceApproveActivatesPlan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	exhausted := subscription.Free(5)
	exhausted.PromptsUsed = 5
	f.store.users["user-1"] = exhausted
	f.store.addPending("pay-1", "user-1", "Professional Plan", "monthly")

	require.False(t, subscription.Check(exhausted, 1).Allowed)

	resp, err := f.svc.Approve(ctx, "pay-1", "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, resp.Payment.Status)
	assert.Equal(t, subscription.PlanProfessional, resp.Subscription.Plan)

	sub := f.store.user("user-1")
	assert.Equal(t, subscription.PlanProfessional, sub.Plan)
	assert.Equal(t, subscription.StatusActive, sub.Status)
	assert.Equal(t, 0, sub.PromptsUsed)
	assert.Equal(t, subscription.ProfessionalLimit, sub.PromptsLimit)
	require.NotNil(t, sub.ExpiresAt)
	assert.Equal(t, f.now.Add(30*24*time.Hour), *sub.ExpiresAt)
	require.NotNil(t, sub.PaymentReference)
	assert.Equal(t, "pay-1", *sub.PaymentReference)

	stored := f.store.payment("pay-1")
	assert.Equal(t, StatusApproved, stored.Status)
	require.NotNil(t, stored.VerifiedBy)
	assert.Equal(t, "ops@example.com", *stored.VerifiedBy)
	require.NotNil(t, stored.VerifiedAt)
	assert.Equal(t, f.now, *stored.VerifiedAt)

	assert.True(t, subscription.Check(sub, 1).Allowed)
	assert.Equal(t, []string{events.PaymentApproved}, f.events.types())
	assert.Equal(t, int64(1), f.metrics.approved.Load())
}

func TestServiceApproveLifetime(t *testing.T) {
	f := newFixture(t)

	f.store.users["user-1"] = subscription.Free(5)
	f.store.addPending("pay-1", "user-1", "Lifetime Deal", "lifetime")

	_, err := f.svc.Approve(context.Background(), "pay-1", "ops@example.com")
	require.NoError(t, err)

	sub := f.store.user("user-1")
	assert.Equal(t, subscription.PlanLifetime, sub.Plan)
	assert.Equal(t, subscription.CycleLifetime, sub.BillingCycle)
	assert.Nil(t, sub.ExpiresAt)
}

func TestServiceDecisionIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.users["user-1"] = subscription.Free(5)
	f.store.addPending("pay-1", "user-1", "Starter", "monthly")

	_, err := f.svc.Approve(ctx, "pay-1", "first@example.com")
	require.NoError(t, err)

	before := f.store.payment("pay-1")
	sub := f.store.user("user-1")

	_, err = f.svc.Approve(ctx, "pay-1", "second@example.com")
	require.Error(t, err)
	assert.Equal(t, "CONFLICT", appErrCode(t, err))

	_, err = f.svc.Reject(ctx, "pay-1", "second@example.com", "changed my mind")
	require.Error(t, err)
	assert.Equal(t, "CONFLICT", appErrCode(t, err))

	assert.Equal(t, before, f.store.payment("pay-1"))
	assert.Equal(t, sub, f.store.user("user-1"))
	assert.Equal(t, int64(1), f.metrics.approved.Load())
	assert.Equal(t, int64(0), f.metrics.rejected.Load())
}

func TestServiceApproveUnknownUserLeavesPending(t *testing.T) {
	f := newFixture(t)

	f.store.addPending("pay-1", "ghost", "Starter", "monthly")

	_, err := f.svc.Approve(context.Background(), "pay-1", "ops@example.com")
	require.Error(t, err)

	var appErr *core.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusNotFound, appErr.StatusCode)
	assert.Equal(t, "user not found", appErr.Message)

	stored := f.store.payment("pay-1")
	assert.Equal(t, StatusPending, stored.Status)
	assert.Nil(t, stored.VerifiedAt)
	assert.Empty(t, f.events.types())
}

func TestServiceApproveMissingPlan(t *testing.T) {
	f := newFixture(t)

	f.store.users["user-1"] = subscription.Free(5)
	f.store.addPending("pay-1", "user-1", "  ", "monthly")

	_, err := f.svc.Approve(context.Background(), "pay-1", "ops@example.com")
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", appErrCode(t, err))
	assert.Equal(t, StatusPending, f.store.payment("pay-1").Status)
}

func TestServiceApproveUnknownPayment(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Approve(context.Background(), "missing", "ops@example.com")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrNotFound))

	_, err = f.svc.Approve(context.Background(), " ", "ops@example.com")
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", appErrCode(t, err))
}

// staleRepo reports every payment as pending, as a concurrent reader
// would before the other approval commits.
type staleRepo struct {
	memRepo
}

func (r staleRepo) GetByID(ctx context.Context, id string) (*ManualPayment, error) {
	p, err := r.memRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Status = StatusPending
	return p, nil
}

func TestServiceApproveLostRace(t *testing.T) {
	f := newFixture(t)
	f.svc.repoFor = func(core.DBTX) Repository { return staleRepo{memRepo{s: f.store}} }

	f.store.users["user-1"] = subscription.Free(5)
	f.store.addPending("pay-1", "user-1", "Starter", "monthly")

	_, err := f.svc.Approve(context.Background(), "pay-1", "a@example.com")
	require.NoError(t, err)

	_, err = f.svc.Approve(context.Background(), "pay-1", "b@example.com")
	require.Error(t, err)
	assert.Equal(t, "CONFLICT", appErrCode(t, err))

	stored := f.store.payment("pay-1")
	assert.Equal(t, "a@example.com", *stored.VerifiedBy)
}

func TestServiceApproveConcurrent(t *testing.T) {
	f := newFixture(t)

	f.store.users["user-1"] = subscription.Free(5)
	f.store.addPending("pay-1", "user-1", "Starter", "monthly")

	var (
		wg        sync.WaitGroup
		successes atomic.Int64
	)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			admin := fmt.Sprintf("admin-%d@example.com", i)
			if _, err := f.svc.Approve(context.Background(), "pay-1", admin); err == nil {
				successes.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), successes.Load())
	assert.Equal(t, int64(1), f.metrics.approved.Load())
}

func TestServiceReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.users["user-1"] = subscription.Free(5)
	f.store.addPending("pay-1", "user-1", "Starter", "monthly")

	_, err := f.svc.Reject(ctx, "pay-1", "ops@example.com", "   ")
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", appErrCode(t, err))
	assert.Equal(t, StatusPending, f.store.payment("pay-1").Status)

	resp, err := f.svc.Reject(ctx, "pay-1", "ops@example.com", " amount mismatch ")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, resp.Status)

	stored := f.store.payment("pay-1")
	assert.Equal(t, StatusRejected, stored.Status)
	require.NotNil(t, stored.AdminNotes)
	assert.Equal(t, "amount mismatch", *stored.AdminNotes)
	assert.Equal(t, subscription.Free(5), f.store.user("user-1"))

	assert.Equal(t, []string{events.PaymentRejected}, f.events.types())
	assert.Equal(t, int64(1), f.metrics.rejected.Load())
}

func TestServiceRejectUnknownPayment(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Reject(context.Background(), "missing", "ops@example.com", "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestServiceList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.users["user-1"] = subscription.Free(5)
	f.store.addPending("pay-1", "user-1", "Starter", "monthly")
	f.store.addPending("pay-2", "user-2", "Starter", "monthly")
	f.store.addPending("pay-3", "user-1", "Starter", "monthly")

	_, err := f.svc.Approve(ctx, "pay-1", "ops@example.com")
	require.NoError(t, err)

	pending, total, err := f.svc.List(ctx, ListParams{Status: StatusPending})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "pay-2", pending[0].ID)

	mine, total, err := f.svc.ListForUser(ctx, "user-1", ListParams{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "pay-1", mine[0].ID)

	_, _, err = f.svc.List(ctx, ListParams{Status: "refunded"})
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", appErrCode(t, err))
}
