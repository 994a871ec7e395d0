// AngelaMos | 2026
// ratelimit.go

package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	redis_rate "github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/promptstudio/api/internal/core"
)

type RateLimitConfig struct {
	Limit      redis_rate.Limit
	KeyFunc    func(*http.Request) string
	BypassFunc func(*http.Request) bool
}

// RateLimiter applies one limit to every request, keyed by KeyFunc.
type RateLimiter struct {
	store  *limitStore
	config RateLimitConfig
}

func NewRateLimiter(rdb *redis.Client, cfg RateLimitConfig) *RateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = KeyByIP
	}

	return &RateLimiter{
		store:  newLimitStore(rdb),
		config: cfg,
	}
}

func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.config.BypassFunc != nil && rl.config.BypassFunc(r) {
			next.ServeHTTP(w, r)
			return
		}

		res := rl.store.allow(r.Context(), rl.config.KeyFunc(r), rl.config.Limit)
		setRateLimitHeaders(w, res)

		if res.Allowed == 0 {
			writeRateLimitExceeded(w, res)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// KeyByIP relies on chi's RealIP having already rewritten RemoteAddr.
func KeyByIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	return "ratelimit:ip:" + ip
}

// PlanTier throttles request bursts for one subscription plan. It is
// independent of the prompt allowance enforced by the usage gate.
type PlanTier struct {
	PerMinute int
	Burst     int
}

var DefaultPlanTiers = map[string]PlanTier{
	"free":         {PerMinute: 10, Burst: 3},
	"starter":      {PerMinute: 30, Burst: 10},
	"professional": {PerMinute: 120, Burst: 30},
	"lifetime":     {PerMinute: 120, Burst: 30},
}

// TieredRateLimiter must run after Authenticator; the plan comes from the
// access token claims. Unknown plans get the free tier.
func TieredRateLimiter(
	rdb *redis.Client,
	tiers map[string]PlanTier,
) func(http.Handler) http.Handler {
	store := newLimitStore(rdb)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			plan := GetUserPlan(r.Context())
			tier, ok := tiers[plan]
			if !ok {
				plan = "free"
				tier = tiers[plan]
			}

			key := fmt.Sprintf("ratelimit:plan:%s:%s", plan, GetUserID(r.Context()))
			res := store.allow(r.Context(), key, PerMinute(tier.PerMinute, tier.Burst))

			w.Header().Set("X-RateLimit-Tier", plan)
			setRateLimitHeaders(w, res)

			if res.Allowed == 0 {
				writeRateLimitExceeded(w, res)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func PerMinute(rate, burst int) redis_rate.Limit {
	return redis_rate.Limit{
		Rate:   rate,
		Burst:  burst,
		Period: time.Minute,
	}
}

// limitStore counts in redis and drops to per-process buckets whenever
// redis is missing or failing.
type limitStore struct {
	redis *redis_rate.Limiter
	local *localLimiter
}

func newLimitStore(rdb *redis.Client) *limitStore {
	s := &limitStore{local: newLocalLimiter()}
	if rdb != nil {
		s.redis = redis_rate.NewLimiter(rdb)
	}
	return s
}

func (s *limitStore) allow(
	ctx context.Context,
	key string,
	limit redis_rate.Limit,
) *redis_rate.Result {
	if s.redis != nil {
		res, err := s.redis.Allow(ctx, key, limit)
		if err == nil {
			return res
		}
		slog.WarnContext(ctx, "rate limiter using local fallback",
			"key", key,
			"error", err,
		)
	}
	return s.local.allow(key, limit)
}

func setRateLimitHeaders(w http.ResponseWriter, res *redis_rate.Result) {
	h := w.Header()

	h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit.Rate))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(
		time.Now().Add(res.ResetAfter).Unix(), 10))
	h.Set("RateLimit-Policy", fmt.Sprintf(`%d;w=%d`,
		res.Limit.Rate, int(res.Limit.Period.Seconds())))
}

func writeRateLimitExceeded(w http.ResponseWriter, res *redis_rate.Result) {
	retryAfter := max(int(res.RetryAfter.Seconds()), 1)
	msg := fmt.Sprintf("rate limit exceeded, retry after %d seconds", retryAfter)

	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	core.JSON(w, http.StatusTooManyRequests, core.Envelope{
		Success: false,
		Message: msg,
		Error: &core.ErrorBody{
			Code:    "RATE_LIMITED",
			Message: msg,
		},
	})
}

const localEntryTTL = 10 * time.Minute

type localBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// localLimiter keeps token buckets in memory. Idle buckets are swept on
// access once per localEntryTTL.
type localLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*localBucket
	lastSweep time.Time
}

func newLocalLimiter() *localLimiter {
	return &localLimiter{
		buckets:   make(map[string]*localBucket),
		lastSweep: time.Now(),
	}
}

func (l *localLimiter) allow(key string, limit redis_rate.Limit) *redis_rate.Result {
	perSecond := float64(limit.Rate) / limit.Period.Seconds()
	interval := time.Duration(float64(time.Second) / perSecond)
	now := time.Now()

	l.mu.Lock()
	if now.Sub(l.lastSweep) > localEntryTTL {
		for k, b := range l.buckets {
			if now.Sub(b.lastSeen) > localEntryTTL {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &localBucket{limiter: rate.NewLimiter(rate.Limit(perSecond), limit.Burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	allowed := b.limiter.AllowN(now, 1)
	remaining := max(int(b.limiter.TokensAt(now)), 0)
	l.mu.Unlock()

	res := &redis_rate.Result{
		Limit:      limit,
		Remaining:  remaining,
		RetryAfter: -1,
		ResetAfter: interval,
	}
	if allowed {
		res.Allowed = 1
	} else {
		res.RetryAfter = interval
	}
	return res
}
