// AngelaMos | 2026
// plan_test.go

package subscription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapPlan(t *testing.T) {
	cases := []struct {
		name      string
		input     string
		wantPlan  Plan
		wantLimit int
	}{
		{"empty", "", PlanStarter, StarterLimit},
		{"whitespace", "   ", PlanStarter, StarterLimit},
		{"pro max", "Pro Max", PlanProfessional, ProfessionalLimit},
		{"professional plan", "Professional Plan", PlanProfessional, ProfessionalLimit},
		{"lifetime deal", "Lifetime Deal", PlanLifetime, LifetimeLimit},
		{"deal only", "Black Friday DEAL", PlanLifetime, LifetimeLimit},
		{"starter", "Starter", PlanStarter, StarterLimit},
		{"unknown", "unknown-plan", PlanStarter, StarterLimit},
		{"professional wins over lifetime", "Professional Lifetime Deal", PlanProfessional, ProfessionalLimit},
		{"pro substring", "approved bundle", PlanProfessional, ProfessionalLimit},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			plan, limit := MapPlan(tc.input)
			assert.Equal(t, tc.wantPlan, plan)
			assert.Equal(t, tc.wantLimit, limit)
		})
	}
}

func TestComputeExpiry(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	yearly := ComputeExpiry("yearly", now)
	require.NotNil(t, yearly)
	assert.Equal(t, now.Add(365*24*time.Hour), *yearly)

	assert.Nil(t, ComputeExpiry("lifetime", now))

	monthly := ComputeExpiry("monthly", now)
	require.NotNil(t, monthly)
	assert.Equal(t, now.Add(30*24*time.Hour), *monthly)

	missing := ComputeExpiry("", now)
	require.NotNil(t, missing)
	assert.Equal(t, *monthly, *missing)

	weekly := ComputeExpiry("weekly", now)
	require.NotNil(t, weekly)
	assert.Equal(t, *monthly, *weekly)
}

func TestNormalizeBillingCycle(t *testing.T) {
	cases := map[string]string{
		"":          CycleMonthly,
		"monthly":   CycleMonthly,
		"YEARLY":    CycleYearly,
		" lifetime": CycleLifetime,
		"quarterly": CycleMonthly,
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeBillingCycle(in), "cycle %q", in)
	}
}

func TestActivate(t *testing.T) {
	now := time.Date(2026, time.January, 15, 8, 30, 0, 0, time.UTC)

	t.Run("professional monthly", func(t *testing.T) {
		sub := Activate("Professional Plan", "monthly", "pay-1", now)

		assert.Equal(t, PlanProfessional, sub.Plan)
		assert.Equal(t, StatusActive, sub.Status)
		assert.Equal(t, 0, sub.PromptsUsed)
		assert.Equal(t, ProfessionalLimit, sub.PromptsLimit)
		assert.Equal(t, CycleMonthly, sub.BillingCycle)
		require.NotNil(t, sub.ActivatedAt)
		assert.Equal(t, now, *sub.ActivatedAt)
		require.NotNil(t, sub.ExpiresAt)
		assert.Equal(t, now.Add(30*24*time.Hour), *sub.ExpiresAt)
		require.NotNil(t, sub.PaymentReference)
		assert.Equal(t, "pay-1", *sub.PaymentReference)
	})

	t.Run("lifetime never expires", func(t *testing.T) {
		sub := Activate("Lifetime Deal", "lifetime", "pay-2", now)

		assert.Equal(t, PlanLifetime, sub.Plan)
		assert.Equal(t, LifetimeLimit, sub.PromptsLimit)
		assert.Nil(t, sub.ExpiresAt)
	})

	t.Run("lifetime plan billed monthly still gets an expiry", func(t *testing.T) {
		sub := Activate("lifetime", "", "", now)

		assert.Equal(t, PlanLifetime, sub.Plan)
		require.NotNil(t, sub.ExpiresAt)
		assert.Nil(t, sub.PaymentReference)
	})
}

func TestFree(t *testing.T) {
	sub := Free(0)
	assert.Equal(t, PlanFree, sub.Plan)
	assert.Equal(t, StatusActive, sub.Status)
	assert.Equal(t, DefaultFreeLimit, sub.PromptsLimit)
	assert.Equal(t, 0, sub.PromptsUsed)
	assert.Nil(t, sub.ExpiresAt)

	assert.Equal(t, 10, Free(10).PromptsLimit)
}

func TestSubscriptionRemainingAndExpiry(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)

	sub := Subscription{Plan: PlanStarter, PromptsUsed: 48, PromptsLimit: 50, ExpiresAt: &past}
	assert.Equal(t, 2, sub.Remaining())
	assert.True(t, sub.IsExpired(now))

	sub.PromptsUsed = 60
	assert.Equal(t, 0, sub.Remaining())

	life := Subscription{Plan: PlanLifetime, PromptsLimit: LifetimeLimit}
	assert.Equal(t, -1, life.Remaining())
	assert.False(t, life.IsExpired(now))
}
