// AngelaMos | 2026
// jobs.go

package jobs

import (
	"context"
)

type SubscriptionExpirer interface {
	ExpireSubscriptions(ctx context.Context) (int64, error)
}

type SessionCleaner interface {
	CleanupExpiredTokens(ctx context.Context) (int64, error)
}

// ExpirySweep downgrades lapsed paid subscriptions to the free plan.
func ExpirySweep(schedule string, users SubscriptionExpirer) Job {
	return Job{
		Name:     "subscription_expiry_sweep",
		Schedule: schedule,
		Run:      users.ExpireSubscriptions,
	}
}

func SessionCleanup(schedule string, sessions SessionCleaner) Job {
	return Job{
		Name:     "expired_session_cleanup",
		Schedule: schedule,
		Run:      sessions.CleanupExpiredTokens,
	}
}
