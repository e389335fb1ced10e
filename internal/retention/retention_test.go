package retention

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/nexus-core/agentcore/internal/config"
)

type stubPruner struct {
	calls int64
}

func (p *stubPruner) PruneArchivedThreads(ctx context.Context, olderThan time.Time) (int64, error) {
	atomic.AddInt64(&p.calls, 1)
	return 2, nil
}

func TestNewSchedulerRejectsInvalidCronExpression(t *testing.T) {
	p := &stubPruner{}
	_, err := NewScheduler(config.RetentionConfig{PruneSchedule: "not a cron expression"}, p, zerolog.Nop())
	require.Error(t, err)
}

func TestSchedulerRunsPruneOnSchedule(t *testing.T) {
	p := &stubPruner{}
	s, err := NewScheduler(config.RetentionConfig{PruneSchedule: "* * * * * *", ArchivedThreadTTL: time.Hour}, p, zerolog.Nop())
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt64(&p.calls) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	require.NotZero(t, atomic.LoadInt64(&p.calls), "expected the prune job to run at least once")
}
