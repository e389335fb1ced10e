// Package retention schedules the periodic sweeps that keep the thread
// index from growing without bound: pruning archived threads past their
// configured TTL.
package retention

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/nexus-core/agentcore/internal/config"
)

// Pruner is the subset of statedb.Store's surface retention needs,
// narrowed so this package doesn't import statedb just to call one method.
type Pruner interface {
	PruneArchivedThreads(ctx context.Context, olderThan time.Time) (int64, error)
}

// Scheduler runs cfg.PruneSchedule against store on a cron(v3) schedule.
// Grounded on the teacher's internal/cron package: one robfig/cron.Cron
// instance per process, entries added at construction, started/stopped
// alongside the rest of the server's lifecycle.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// NewScheduler parses cfg.PruneSchedule (a seconds-enabled, six-field cron
// expression) and registers the archived-thread prune sweep. Returns an
// error if the expression doesn't parse; the caller decides whether that
// is fatal or just means retention sweeps are skipped.
func NewScheduler(cfg config.RetentionConfig, store Pruner, log zerolog.Logger) (*Scheduler, error) {
	c := cron.New(cron.WithSeconds())
	s := &Scheduler{cron: c, log: log}

	ttl := cfg.ArchivedThreadTTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}

	_, err := c.AddFunc(cfg.PruneSchedule, func() {
		cutoff := time.Now().UTC().Add(-ttl)
		n, err := store.PruneArchivedThreads(context.Background(), cutoff)
		if err != nil {
			s.log.Error().Err(err).Msg("retention: prune archived threads failed")
			return
		}
		if n > 0 {
			s.log.Info().Int64("count", n).Time("cutoff", cutoff).Msg("retention: pruned archived threads")
		}
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins running scheduled entries in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop waits for any in-flight job to finish and stops the scheduler.
func (s *Scheduler) Stop() context.Context { return s.cron.Stop() }
