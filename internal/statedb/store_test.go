package statedb

import (
	"context"
	"testing"
	"time"

	"github.com/nexus-core/agentcore/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleMeta(id types.ThreadID, updated time.Time) *types.ThreadMetadata {
	return &types.ThreadMetadata{
		ID:            id,
		RolloutPath:   "/sessions/2026/01/rollout-" + id.String() + ".jsonl",
		CreatedAt:     updated,
		UpdatedAt:     updated,
		Source:        types.ThreadSourceInteractive,
		Cwd:           "/work",
		ModelProvider: "openai",
	}
}

func TestUpsertThreadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id := types.NewThreadID()
	meta := sampleMeta(id, time.Now().UTC())
	if err := s.UpsertThread(ctx, meta); err != nil {
		t.Fatalf("UpsertThread: %v", err)
	}
	meta.Title = "renamed"
	if err := s.UpsertThread(ctx, meta); err != nil {
		t.Fatalf("UpsertThread (again): %v", err)
	}

	got, err := s.getThread(ctx, id)
	if err != nil {
		t.Fatalf("getThread: %v", err)
	}
	if got == nil || got.Title != "renamed" {
		t.Fatalf("expected the second upsert to win, got %+v", got)
	}
}

func TestUpsertThreadPreservesFirstUserMessageOnceSet(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id := types.NewThreadID()
	meta := sampleMeta(id, time.Now().UTC())
	meta.FirstUserMessage = "original ask"
	if err := s.UpsertThread(ctx, meta); err != nil {
		t.Fatalf("UpsertThread: %v", err)
	}

	meta.FirstUserMessage = "should not overwrite"
	if err := s.UpsertThread(ctx, meta); err != nil {
		t.Fatalf("UpsertThread: %v", err)
	}

	got, err := s.getThread(ctx, id)
	if err != nil {
		t.Fatalf("getThread: %v", err)
	}
	if got.FirstUserMessage != "original ask" {
		t.Fatalf("expected first_user_message to stick, got %q", got.FirstUserMessage)
	}
}

func TestApplyRolloutItemsCreatesRowFromScratch(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id := types.NewThreadID()
	created := time.Now().UTC()
	items := []types.RolloutItem{
		{
			Kind:      types.RolloutItemSessionMeta,
			Timestamp: created,
			SessionMeta: &types.SessionMetaPayload{
				ThreadID: id, CreatedAt: created, Cwd: "/repo", Source: types.ThreadSourceInteractive,
			},
		},
	}

	if err := s.ApplyRolloutItems(ctx, id, "/sessions/2026/01/rollout-a.jsonl", items, nil); err != nil {
		t.Fatalf("ApplyRolloutItems: %v", err)
	}

	got, err := s.getThread(ctx, id)
	if err != nil {
		t.Fatalf("getThread: %v", err)
	}
	if got == nil || got.Cwd != "/repo" {
		t.Fatalf("expected a row folded from rollout items, got %+v", got)
	}
}

func TestApplyRolloutItemsInsertsToolSpecsOnce(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	id := types.NewThreadID()

	specs := map[string]string{"read_file": `{"type":"function"}`}
	if err := s.ApplyRolloutItems(ctx, id, "/sessions/2026/01/rollout-b.jsonl", nil, specs); err != nil {
		t.Fatalf("ApplyRolloutItems: %v", err)
	}
	// Re-applying with a different spec body must not overwrite the first.
	if err := s.ApplyRolloutItems(ctx, id, "/sessions/2026/01/rollout-b.jsonl", nil, map[string]string{"read_file": `{"type":"changed"}`}); err != nil {
		t.Fatalf("ApplyRolloutItems (again): %v", err)
	}

	var spec string
	row := s.db.QueryRowContext(ctx, `SELECT spec FROM thread_tool_specs WHERE thread_id = ? AND tool_name = ?`, string(id), "read_file")
	if err := row.Scan(&spec); err != nil {
		t.Fatalf("scan tool spec: %v", err)
	}
	if spec != `{"type":"function"}` {
		t.Fatalf("expected the first spec to stick (INSERT ... ON CONFLICT DO NOTHING), got %q", spec)
	}
}

func TestAddTokensUsedAccumulates(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	id := types.NewThreadID()

	meta := sampleMeta(id, time.Now().UTC())
	if err := s.UpsertThread(ctx, meta); err != nil {
		t.Fatalf("UpsertThread: %v", err)
	}

	if err := s.AddTokensUsed(ctx, id, 100); err != nil {
		t.Fatalf("AddTokensUsed: %v", err)
	}
	if err := s.AddTokensUsed(ctx, id, 50); err != nil {
		t.Fatalf("AddTokensUsed (again): %v", err)
	}

	got, err := s.getThread(ctx, id)
	if err != nil {
		t.Fatalf("getThread: %v", err)
	}
	if got.TokensUsed != 150 {
		t.Fatalf("expected accumulated tokens_used of 150, got %d", got.TokensUsed)
	}
}

func TestPruneArchivedThreadsDeletesOnlyThoseOlderThanCutoff(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	old := types.NewThreadID()
	oldMeta := sampleMeta(old, time.Now().UTC().Add(-48*time.Hour))
	archivedOld := oldMeta.CreatedAt
	oldMeta.ArchivedAt = &archivedOld
	if err := s.UpsertThread(ctx, oldMeta); err != nil {
		t.Fatalf("UpsertThread (old): %v", err)
	}

	recent := types.NewThreadID()
	recentMeta := sampleMeta(recent, time.Now().UTC())
	archivedRecent := recentMeta.CreatedAt
	recentMeta.ArchivedAt = &archivedRecent
	if err := s.UpsertThread(ctx, recentMeta); err != nil {
		t.Fatalf("UpsertThread (recent): %v", err)
	}

	active := types.NewThreadID()
	if err := s.UpsertThread(ctx, sampleMeta(active, time.Now().UTC())); err != nil {
		t.Fatalf("UpsertThread (active): %v", err)
	}

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	n, err := s.PruneArchivedThreads(ctx, cutoff)
	if err != nil {
		t.Fatalf("PruneArchivedThreads: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected exactly 1 pruned row, got %d", n)
	}

	if got, err := s.getThread(ctx, old); err != nil || got != nil {
		t.Fatalf("expected the old archived thread to be gone, got %+v (err=%v)", got, err)
	}
	if got, err := s.getThread(ctx, recent); err != nil || got == nil {
		t.Fatalf("expected the recently archived thread to survive, err=%v", err)
	}
	if got, err := s.getThread(ctx, active); err != nil || got == nil {
		t.Fatalf("expected the active thread to survive, err=%v", err)
	}
}
