package statedb

import (
	"context"
	"fmt"
	"strings"

	"github.com/nexus-core/agentcore/internal/rollout"
	"github.com/nexus-core/agentcore/pkg/types"
)

// SortOrder selects the ordering list_threads walks.
type SortOrder string

const (
	SortUpdatedDesc SortOrder = "updated_desc"
	SortCreatedDesc SortOrder = "created_desc"
)

// ListOptions filters and paginates list_threads.
type ListOptions struct {
	PageSize  int
	Anchor    *rollout.Anchor
	Sort      SortOrder
	Sources   []types.ThreadSource
	Providers []string
	Archived  *bool // nil: both, true: only archived, false: only active
	Search    string
}

// ListResult is one page of threads plus the anchor to request the next
// page, nil once the final page has been reached.
type ListResult struct {
	Threads     []*types.ThreadMetadata
	NextAnchor  *rollout.Anchor
}

// ListThreads returns a page of threads matching opts. It always requests
// one extra row beyond page_size so the caller can derive the next page's
// anchor without a second round trip; anchors are (timestamp, thread_id)
// pairs so pagination stays stable even as rows are inserted between calls.
func (s *Store) ListThreads(ctx context.Context, opts ListOptions) (*ListResult, error) {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	timeCol := "updated_at"
	if opts.Sort == SortCreatedDesc {
		timeCol = "created_at"
	}

	var (
		where []string
		args  []any
	)

	if opts.Anchor != nil {
		where = append(where, fmt.Sprintf("(%s < ? OR (%s = ? AND id < ?))", timeCol, timeCol))
		args = append(args, opts.Anchor.Timestamp, opts.Anchor.Timestamp, opts.Anchor.ThreadID.String())
	}
	if len(opts.Sources) > 0 {
		placeholders := make([]string, len(opts.Sources))
		for i, src := range opts.Sources {
			placeholders[i] = "?"
			args = append(args, string(src))
		}
		where = append(where, fmt.Sprintf("source IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(opts.Providers) > 0 {
		placeholders := make([]string, len(opts.Providers))
		for i, p := range opts.Providers {
			placeholders[i] = "?"
			args = append(args, p)
		}
		where = append(where, fmt.Sprintf("model_provider IN (%s)", strings.Join(placeholders, ",")))
	}
	if opts.Archived != nil {
		if *opts.Archived {
			where = append(where, "archived_at IS NOT NULL")
		} else {
			where = append(where, "archived_at IS NULL")
		}
	}
	if strings.TrimSpace(opts.Search) != "" {
		where = append(where, "(first_user_message LIKE ? OR title LIKE ?)")
		pattern := "%" + opts.Search + "%"
		args = append(args, pattern, pattern)
	}

	query := fmt.Sprintf(`
		SELECT id, rollout_path, created_at, updated_at, source, cwd, model_provider,
		       title, approval_mode, sandbox_policy_kind, first_user_message,
		       archived_at, git_sha, git_branch, git_origin, tokens_used
		FROM threads
	`)
	if len(where) > 0 {
		query += "WHERE " + strings.Join(where, " AND ") + " "
	}
	query += fmt.Sprintf("ORDER BY %s DESC, id DESC LIMIT ?", timeCol)
	args = append(args, pageSize+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("statedb: list threads: %w", err)
	}
	defer rows.Close()

	var threads []*types.ThreadMetadata
	for rows.Next() {
		meta, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("statedb: scan thread row: %w", err)
		}
		threads = append(threads, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("statedb: list threads: %w", err)
	}

	result := &ListResult{}
	if len(threads) > pageSize {
		extra := threads[pageSize]
		anchorTime := extra.UpdatedAt
		if timeCol == "created_at" {
			anchorTime = extra.CreatedAt
		}
		result.NextAnchor = &rollout.Anchor{Timestamp: anchorTime, ThreadID: extra.ID}
		threads = threads[:pageSize]
	}
	result.Threads = threads
	return result, nil
}
