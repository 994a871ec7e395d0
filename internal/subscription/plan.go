// AngelaMos | 2026
// plan.go

package subscription

import (
	"strings"
	"time"
)

type Plan = string

const (
	PlanFree         Plan = "free"
	PlanStarter      Plan = "starter"
	PlanProfessional Plan = "professional"
	PlanLifetime     Plan = "lifetime"
)

const (
	StatusActive  = "active"
	StatusExpired = "expired"
)

const (
	CycleMonthly  = "monthly"
	CycleYearly   = "yearly"
	CycleLifetime = "lifetime"
)

const (
	StarterLimit      = 50
	ProfessionalLimit = 500
	// LifetimeLimit is effectively unbounded; the gate never compares
	// against it for lifetime plans.
	LifetimeLimit = 999999

	DefaultFreeLimit = 5

	monthlyPeriod = 30 * 24 * time.Hour
	yearlyPeriod  = 365 * 24 * time.Hour
)

// Subscription is the entitlement embedded in every user row.
type Subscription struct {
	Plan             string     `db:"plan"                json:"plan"`
	Status           string     `db:"subscription_status" json:"status"`
	PromptsUsed      int        `db:"prompts_used"        json:"promptsUsed"`
	PromptsLimit     int        `db:"prompts_limit"       json:"promptsLimit"`
	BillingCycle     string     `db:"billing_cycle"       json:"billing_cycle"`
	ActivatedAt      *time.Time `db:"activated_at"        json:"activated_at,omitempty"`
	ExpiresAt        *time.Time `db:"expires_at"          json:"expires_at"`
	PaymentReference *string    `db:"payment_reference"   json:"payment_reference,omitempty"`
}

// Free returns the subscription every account starts with.
func Free(limit int) Subscription {
	if limit <= 0 {
		limit = DefaultFreeLimit
	}
	return Subscription{
		Plan:         PlanFree,
		Status:       StatusActive,
		PromptsUsed:  0,
		PromptsLimit: limit,
		BillingCycle: CycleMonthly,
	}
}

func (s Subscription) IsLifetime() bool {
	return s.Plan == PlanLifetime
}

func (s Subscription) Remaining() int {
	if s.IsLifetime() {
		return -1
	}
	if left := s.PromptsLimit - s.PromptsUsed; left > 0 {
		return left
	}
	return 0
}

// IsExpired reports whether the stored expiry has passed. Nothing in the
// gate consults this; only the expiry sweep acts on it.
func (s Subscription) IsExpired(now time.Time) bool {
	return s.ExpiresAt != nil && s.ExpiresAt.Before(now)
}

// MapPlan classifies a free-text plan name. Matching is case-insensitive
// substring search and the first rule that matches wins, so
// "Professional Lifetime Deal" is professional.
func MapPlan(name string) (Plan, int) {
	lower := strings.ToLower(strings.TrimSpace(name))

	switch {
	case lower == "":
		return PlanStarter, StarterLimit
	case strings.Contains(lower, "professional"), strings.Contains(lower, "pro"):
		return PlanProfessional, ProfessionalLimit
	case strings.Contains(lower, "lifetime"), strings.Contains(lower, "deal"):
		return PlanLifetime, LifetimeLimit
	case strings.Contains(lower, "starter"):
		return PlanStarter, StarterLimit
	default:
		return PlanStarter, StarterLimit
	}
}

// NormalizeBillingCycle maps anything other than yearly or lifetime to monthly.
func NormalizeBillingCycle(cycle string) string {
	switch strings.ToLower(strings.TrimSpace(cycle)) {
	case CycleLifetime:
		return CycleLifetime
	case CycleYearly:
		return CycleYearly
	default:
		return CycleMonthly
	}
}

// ComputeExpiry returns nil for lifetime billing.
func ComputeExpiry(cycle string, now time.Time) *time.Time {
	var expires time.Time

	switch NormalizeBillingCycle(cycle) {
	case CycleLifetime:
		return nil
	case CycleYearly:
		expires = now.Add(yearlyPeriod)
	default:
		expires = now.Add(monthlyPeriod)
	}

	return &expires
}

// Activate computes the subscription granted by an approved payment. Usage
// always restarts at zero.
func Activate(planName, cycle, paymentRef string, now time.Time) Subscription {
	plan, limit := MapPlan(planName)
	activated := now

	sub := Subscription{
		Plan:         plan,
		Status:       StatusActive,
		PromptsUsed:  0,
		PromptsLimit: limit,
		BillingCycle: NormalizeBillingCycle(cycle),
		ActivatedAt:  &activated,
		ExpiresAt:    ComputeExpiry(cycle, now),
	}

	if paymentRef != "" {
		ref := paymentRef
		sub.PaymentReference = &ref
	}

	return sub
}
