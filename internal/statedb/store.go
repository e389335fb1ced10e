// Package statedb is the per-codex_home indexed store: thread metadata and
// derived indices that avoid linear scans of the rollout directory for
// listing and search. The rollout file remains the source of truth for a
// thread's conversation; this package keeps a denormalized, queryable copy.
package statedb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/nexus-core/agentcore/internal/rollout"
	"github.com/nexus-core/agentcore/pkg/types"
)

// Store wraps the thread index database, backing upsert_thread,
// apply_rollout_items, list_threads, reconcile_rollout, and read-repair.
type Store struct {
	db       *sql.DB
	counters *DiscrepancyCounters
}

// Open opens (creating if absent) the SQLite-backed thread index at path
// and applies any pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("statedb: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers on one handle

	m, err := newMigrator(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	if _, err := m.up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("statedb: migrate: %w", err)
	}
	return &Store{db: db, counters: NewDiscrepancyCounters()}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Counters exposes the discrepancy counters accumulated by read-repair.
func (s *Store) Counters() *DiscrepancyCounters { return s.counters }

// UpsertThread idempotently writes meta's current state. Re-applying the
// same metadata is a no-op beyond bumping updated_at.
func (s *Store) UpsertThread(ctx context.Context, meta *types.ThreadMetadata) error {
	var sha, branch, origin sql.NullString
	if meta.Git != nil {
		sha = sql.NullString{String: meta.Git.SHA, Valid: meta.Git.SHA != ""}
		branch = sql.NullString{String: meta.Git.Branch, Valid: meta.Git.Branch != ""}
		origin = sql.NullString{String: meta.Git.Origin, Valid: meta.Git.Origin != ""}
	}
	var archivedAt sql.NullTime
	if meta.ArchivedAt != nil {
		archivedAt = sql.NullTime{Time: *meta.ArchivedAt, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO threads (
			id, rollout_path, created_at, updated_at, source, cwd, model_provider,
			title, approval_mode, sandbox_policy_kind, first_user_message,
			archived_at, git_sha, git_branch, git_origin, tokens_used
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			rollout_path = excluded.rollout_path,
			updated_at = excluded.updated_at,
			source = excluded.source,
			cwd = excluded.cwd,
			model_provider = excluded.model_provider,
			title = excluded.title,
			approval_mode = excluded.approval_mode,
			sandbox_policy_kind = excluded.sandbox_policy_kind,
			first_user_message = CASE WHEN threads.first_user_message = '' THEN excluded.first_user_message ELSE threads.first_user_message END,
			archived_at = excluded.archived_at,
			git_sha = excluded.git_sha,
			git_branch = excluded.git_branch,
			git_origin = excluded.git_origin,
			tokens_used = excluded.tokens_used
	`,
		string(meta.ID), meta.RolloutPath, meta.CreatedAt, meta.UpdatedAt, string(meta.Source), meta.Cwd, meta.ModelProvider,
		meta.Title, meta.ApprovalMode, meta.SandboxPolicyKind, meta.FirstUserMessage,
		archivedAt, sha, branch, origin, meta.TokensUsed,
	)
	if err != nil {
		return fmt.Errorf("statedb: upsert thread %s: %w", meta.ID, err)
	}
	return nil
}

// AddTokensUsed adds delta to a thread's running token count, used by the
// turn runtime's Completed-event bookkeeping at the end of a turn.
func (s *Store) AddTokensUsed(ctx context.Context, threadID types.ThreadID, delta int64) error {
	if delta == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE threads SET tokens_used = tokens_used + ? WHERE id = ?
	`, delta, string(threadID))
	if err != nil {
		return fmt.Errorf("statedb: add tokens used for %s: %w", threadID, err)
	}
	return nil
}

// ApplyRolloutItems incrementally folds items into the thread's metadata:
// load the existing row (or default to a fresh one keyed by threadID),
// fold every item in order, upsert the result, then persist any dynamic
// tool specs discovered along the way exactly once per thread.
func (s *Store) ApplyRolloutItems(ctx context.Context, threadID types.ThreadID, rolloutPath string, items []types.RolloutItem, toolSpecs map[string]string) error {
	existing, err := s.getThread(ctx, threadID)
	if err != nil {
		return err
	}

	meta := rollout.FoldMetadata(existing, rolloutPath, items)
	meta.ID = threadID
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	if meta.UpdatedAt.IsZero() {
		meta.UpdatedAt = meta.CreatedAt
	}

	if err := s.UpsertThread(ctx, meta); err != nil {
		return err
	}
	return s.insertToolSpecsOnce(ctx, threadID, toolSpecs)
}

func (s *Store) insertToolSpecsOnce(ctx context.Context, threadID types.ThreadID, specs map[string]string) error {
	if len(specs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("statedb: begin tool spec insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO thread_tool_specs (thread_id, tool_name, spec, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (thread_id, tool_name) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("statedb: prepare tool spec insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for name, spec := range specs {
		if _, err := stmt.ExecContext(ctx, string(threadID), name, spec, now); err != nil {
			return fmt.Errorf("statedb: insert tool spec %s: %w", name, err)
		}
	}
	return tx.Commit()
}

// GetThread looks up a single thread's indexed metadata by id, returning
// nil (no error) if the thread is unknown. Used by resume_thread to find
// the rollout file path to reopen.
func (s *Store) GetThread(ctx context.Context, threadID types.ThreadID) (*types.ThreadMetadata, error) {
	return s.getThread(ctx, threadID)
}

func (s *Store) getThread(ctx context.Context, threadID types.ThreadID) (*types.ThreadMetadata, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, rollout_path, created_at, updated_at, source, cwd, model_provider,
		       title, approval_mode, sandbox_policy_kind, first_user_message,
		       archived_at, git_sha, git_branch, git_origin, tokens_used
		FROM threads WHERE id = ?
	`, string(threadID))

	meta, err := scanThread(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("statedb: get thread %s: %w", threadID, err)
	}
	return meta, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanThread(row rowScanner) (*types.ThreadMetadata, error) {
	var (
		meta                        types.ThreadMetadata
		id, source                  string
		archivedAt                  sql.NullTime
		sha, branch, origin         sql.NullString
	)
	err := row.Scan(
		&id, &meta.RolloutPath, &meta.CreatedAt, &meta.UpdatedAt, &source, &meta.Cwd, &meta.ModelProvider,
		&meta.Title, &meta.ApprovalMode, &meta.SandboxPolicyKind, &meta.FirstUserMessage,
		&archivedAt, &sha, &branch, &origin, &meta.TokensUsed,
	)
	if err != nil {
		return nil, err
	}
	meta.ID = types.ThreadID(id)
	meta.Source = types.ThreadSource(source)
	if archivedAt.Valid {
		t := archivedAt.Time
		meta.ArchivedAt = &t
	}
	if sha.Valid || branch.Valid || origin.Valid {
		meta.Git = &types.GitInfo{SHA: sha.String, Branch: branch.String, Origin: origin.String}
	}
	return &meta, nil
}

// ReconcileRollout re-derives a thread's metadata straight from its rollout
// file: read the file, fold it to metadata, normalize cwd, and upsert. Used
// when no in-memory items are available, e.g. repairing a stale index row.
func (s *Store) ReconcileRollout(ctx context.Context, threadID types.ThreadID, path string) error {
	items, err := rollout.ReadAll(path)
	if err != nil {
		return fmt.Errorf("statedb: reconcile read %s: %w", path, err)
	}
	existing, err := s.getThread(ctx, threadID)
	if err != nil {
		return err
	}
	meta := rollout.FoldMetadata(existing, path, items)
	meta.ID = threadID
	meta.Cwd = normalizeCwd(meta.Cwd)
	return s.UpsertThread(ctx, meta)
}

// PruneArchivedThreads deletes every thread archived before olderThan,
// along with its indexed tool specs, and reports how many rows were
// removed. The rollout file on disk is left untouched; this only trims
// the denormalized index, per retention.Scheduler's periodic sweep.
func (s *Store) PruneArchivedThreads(ctx context.Context, olderThan time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("statedb: begin prune: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM thread_tool_specs WHERE thread_id IN (
			SELECT id FROM threads WHERE archived_at IS NOT NULL AND archived_at < ?
		)
	`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("statedb: prune tool specs: %w", err)
	}

	res, err = tx.ExecContext(ctx, `
		DELETE FROM threads WHERE archived_at IS NOT NULL AND archived_at < ?
	`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("statedb: prune threads: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("statedb: prune threads rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("statedb: commit prune: %w", err)
	}
	return n, nil
}

func normalizeCwd(cwd string) string {
	if cwd == "" {
		return cwd
	}
	clean := cwd
	for len(clean) > 1 && clean[len(clean)-1] == '/' {
		clean = clean[:len(clean)-1]
	}
	return clean
}
