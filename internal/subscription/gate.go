// AngelaMos | 2026
// gate.go

package subscription

import (
	"fmt"

	"github.com/promptstudio/api/internal/core"
)

const (
	MaxUnitsPerRequest = 4

	ReasonFreeTierLimit = "free tier limit reached"
	ReasonMonthlyLimit  = "monthly limit reached"
)

type Decision struct {
	Allowed bool
	Reason  string
}

func Allow() Decision {
	return Decision{Allowed: true}
}

func Deny(reason string) Decision {
	return Decision{Reason: reason}
}

// Check decides whether a generation of n units may proceed. The free-tier
// rule is subsumed by the general one but keeps its own message. n does not
// take part in the decision: a user one prompt below the limit may still
// request a batch.
func Check(sub Subscription, n int) Decision {
	if sub.Plan == PlanFree && sub.PromptsUsed >= sub.PromptsLimit {
		return Deny(ReasonFreeTierLimit)
	}

	if sub.Plan != PlanLifetime && sub.PromptsUsed >= sub.PromptsLimit {
		return Deny(ReasonMonthlyLimit)
	}

	return Allow()
}

// Err converts a deny decision into an error carrying the user-facing reason.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return core.LimitReachedError(d.Reason)
}

// ValidateUnits bounds the unit count a single request may reserve.
func ValidateUnits(n int) error {
	if n < 1 || n > MaxUnitsPerRequest {
		return core.ValidationError(
			fmt.Sprintf("n must be between 1 and %d", MaxUnitsPerRequest),
		)
	}
	return nil
}
