// AngelaMos | 2026
// scheduler_test.go

package jobs

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestScheduler() (*Scheduler, *safeBuffer) {
	out := &safeBuffer{}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewScheduler(logger), out
}

type expirerFunc func(context.Context) (int64, error)

func (f expirerFunc) ExpireSubscriptions(ctx context.Context) (int64, error) { return f(ctx) }

type cleanerFunc func(context.Context) (int64, error)

func (f cleanerFunc) CleanupExpiredTokens(ctx context.Context) (int64, error) { return f(ctx) }

func TestSchedulerRejectsBadSchedule(t *testing.T) {
	s, _ := newTestScheduler()

	err := s.Add(Job{Name: "broken", Schedule: "every tuesday", Run: func(context.Context) (int64, error) {
		return 0, nil
	}})
	assert.Error(t, err)
}

func TestSchedulerRunLogsOutcome(t *testing.T) {
	s, out := newTestScheduler()

	s.run(ExpirySweep("@hourly", expirerFunc(func(context.Context) (int64, error) {
		return 3, nil
	})))
	assert.Contains(t, out.String(), "job completed")
	assert.Contains(t, out.String(), "affected=3")

	s.run(SessionCleanup("@hourly", cleanerFunc(func(context.Context) (int64, error) {
		return 0, errors.New("db down")
	})))
	assert.Contains(t, out.String(), "job failed")
	assert.Contains(t, out.String(), "expired_session_cleanup")
}

func TestSchedulerStartStop(t *testing.T) {
	s, _ := newTestScheduler()

	var calls atomic.Int64
	require.NoError(t, s.Add(Job{
		Name:     "tick",
		Schedule: "@every 1s",
		Run: func(context.Context) (int64, error) {
			calls.Add(1)
			return 0, nil
		},
	}))

	s.Start()
	require.Eventually(t, func() bool { return calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}

func TestSchedulerStopCancelsJobContext(t *testing.T) {
	s, _ := newTestScheduler()

	ctxSeen := make(chan context.Context, 1)
	go s.run(Job{Name: "wait", Run: func(ctx context.Context) (int64, error) {
		ctxSeen <- ctx
		<-ctx.Done()
		return 0, ctx.Err()
	}})

	jobCtx := <-ctxSeen
	require.NoError(t, s.Stop(context.Background()))

	select {
	case <-jobCtx.Done():
	case <-time.After(time.Second):
		t.Fatal("job context not cancelled")
	}
}
