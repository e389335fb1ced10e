package types

import "time"

// ThreadSource identifies what started a thread: an interactive user
// session, a resumed session, or a spawned sub-agent.
type ThreadSource string

const (
	ThreadSourceInteractive ThreadSource = "interactive"
	ThreadSourceResumed     ThreadSource = "resumed"
	ThreadSourceSubAgent    ThreadSource = "sub_agent"
	ThreadSourceReview      ThreadSource = "review"
)

// GitInfo captures the repository coordinates a thread was opened against,
// when known.
type GitInfo struct {
	SHA    string `json:"sha,omitempty"`
	Branch string `json:"branch,omitempty"`
	Origin string `json:"origin,omitempty"`
}

// ThreadMetadata is the indexed, queryable record describing a thread. The
// rollout file referenced by RolloutPath is the source of truth for the
// conversation itself; this struct is a derived, denormalized view kept by
// the state index (see internal/statedb) for cheap listing and search.
type ThreadMetadata struct {
	ID                ThreadID     `json:"id"`
	RolloutPath       string       `json:"rollout_path"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
	Source            ThreadSource `json:"source"`
	Cwd               string       `json:"cwd"`
	ModelProvider     string       `json:"model_provider"`
	Title             string       `json:"title,omitempty"`
	ApprovalMode      string       `json:"approval_mode"`
	SandboxPolicyKind string       `json:"sandbox_policy_kind"`
	FirstUserMessage  string       `json:"first_user_message,omitempty"`
	ArchivedAt        *time.Time   `json:"archived_at,omitempty"`
	Git               *GitInfo     `json:"git,omitempty"`
	TokensUsed        int64        `json:"tokens_used"`
}

// Archive sets ArchivedAt if it is not already set. It never clears an
// existing archived timestamp, matching the monotonic set-or-unset
// invariant on the field.
func (m *ThreadMetadata) Archive(at time.Time) {
	if m.ArchivedAt != nil {
		return
	}
	m.ArchivedAt = &at
}

// Unarchive clears ArchivedAt.
func (m *ThreadMetadata) Unarchive() {
	m.ArchivedAt = nil
}

// IsArchived reports whether the thread is archived.
func (m *ThreadMetadata) IsArchived() bool {
	return m.ArchivedAt != nil
}

// Touch bumps UpdatedAt to at, refusing to move it backwards so that
// updated_at >= created_at and is monotonically non-decreasing.
func (m *ThreadMetadata) Touch(at time.Time) {
	if at.Before(m.CreatedAt) {
		at = m.CreatedAt
	}
	if at.After(m.UpdatedAt) {
		m.UpdatedAt = at
	}
}
