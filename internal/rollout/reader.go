package rollout

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nexus-core/agentcore/pkg/types"
)

// ReadAll performs a full sequential scan of the rollout file at path,
// returning every RolloutItem in causal order. A truncated final line (the
// tail of a writer interrupted mid-flush) is skipped rather than treated as
// an error, since the item it would have held was never durably appended.
func ReadAll(path string) ([]types.RolloutItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rollout: open %s: %w", path, err)
	}
	defer f.Close()

	var items []types.RolloutItem
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var item types.RolloutItem
		if err := json.Unmarshal([]byte(line), &item); err != nil {
			continue
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil && err != io.ErrUnexpectedEOF {
		return items, fmt.Errorf("rollout: scan %s: %w", path, err)
	}
	return items, nil
}

// FoldMetadata derives a ThreadMetadata snapshot by folding every item in
// items, in order, starting from a zero-value metadata record (or from
// base, when resuming a partially-built one). Mirrors apply_rollout_items'
// "load or default metadata, fold each item into it" step, and is also the
// engine behind reconcile_rollout, which folds a freshly-read file.
func FoldMetadata(base *types.ThreadMetadata, rolloutPath string, items []types.RolloutItem) *types.ThreadMetadata {
	meta := base
	if meta == nil {
		meta = &types.ThreadMetadata{RolloutPath: rolloutPath}
	}

	for _, item := range items {
		switch item.Kind {
		case types.RolloutItemSessionMeta:
			sm := item.SessionMeta
			if sm == nil {
				continue
			}
			meta.ID = sm.ThreadID
			meta.CreatedAt = sm.CreatedAt
			meta.UpdatedAt = sm.CreatedAt
			meta.Cwd = sm.Cwd
			meta.Source = sm.Source
		case types.RolloutItemTurnContext:
			tc := item.TurnContext
			if tc == nil {
				continue
			}
			meta.ModelProvider = tc.ModelInfo.Provider
			meta.ApprovalMode = string(tc.ApprovalPolicy)
			meta.SandboxPolicyKind = string(tc.SandboxPolicy.Kind)
			meta.Touch(item.Timestamp)
		case types.RolloutItemResponse:
			ri := item.Response
			if ri == nil {
				continue
			}
			if meta.FirstUserMessage == "" {
				if text, ok := firstUserText(ri); ok {
					meta.FirstUserMessage = text
				}
			}
			meta.Touch(item.Timestamp)
		case types.RolloutItemCompacted, types.RolloutItemEvent:
			meta.Touch(item.Timestamp)
		}
	}
	meta.RolloutPath = rolloutPath
	return meta
}

func firstUserText(item *types.ResponseItem) (string, bool) {
	if item.Kind != types.ResponseItemMessage || item.Message == nil {
		return "", false
	}
	if item.Message.Role != "user" {
		return "", false
	}
	for _, block := range item.Message.Content {
		if block.Text != "" {
			return block.Text, true
		}
	}
	return "", false
}
