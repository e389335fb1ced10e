package statedb

import (
	"context"
	"fmt"
	"time"

	"github.com/nexus-core/agentcore/pkg/types"
)

// ReadRepairRolloutPath is invoked when a listing consumer discovers a
// thread via a filesystem fallback scan rather than the index. If the
// index already has a row for threadID, and its rollout_path/archived
// state matches what the filesystem scan observed, nothing happens. If
// they differ, the row is patched in place. If there is no row at all, the
// rollout file is read and folded into a brand-new row via
// ReconcileRollout. Every repair emits a discrepancy counter tagged
// {stage, reason}.
func (s *Store) ReadRepairRolloutPath(ctx context.Context, threadID types.ThreadID, archived *bool, path string) error {
	existing, err := s.getThread(ctx, threadID)
	if err != nil {
		return err
	}

	if existing == nil {
		s.counters.Record(ctx, StageReconciled, ReasonMissingRow)
		return s.ReconcileRollout(ctx, threadID, path)
	}

	var (
		sets []string
		args []any
		stage RepairStage
		reason RepairReason
	)

	if existing.RolloutPath != path {
		sets = append(sets, "rollout_path = ?")
		args = append(args, path)
		stage, reason = StagePathUpdated, ReasonStaleRolloutPath
	}

	if archived != nil {
		wantArchived := *archived
		isArchived := existing.IsArchived()
		if wantArchived != isArchived {
			if wantArchived {
				sets = append(sets, "archived_at = ?")
				args = append(args, time.Now().UTC())
			} else {
				sets = append(sets, "archived_at = NULL")
			}
			if stage == "" {
				stage, reason = StageArchivedFlag, ReasonStaleArchived
			}
		}
	}

	if len(sets) == 0 {
		return nil
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC())
	args = append(args, string(threadID))

	query := "UPDATE threads SET "
	for i, set := range sets {
		if i > 0 {
			query += ", "
		}
		query += set
	}
	query += " WHERE id = ?"

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("statedb: read-repair update %s: %w", threadID, err)
	}
	s.counters.Record(ctx, stage, reason)
	return nil
}
