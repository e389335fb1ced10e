package unifiedexec

import (
	"fmt"
	"strings"

	"github.com/nexus-core/agentcore/pkg/types"
)

// UnknownProcessIDError is returned when a caller addresses a process_id
// that is not (or no longer) registered.
type UnknownProcessIDError struct {
	ProcessID types.ProcessID
}

func (e *UnknownProcessIDError) Error() string {
	return fmt.Sprintf("unifiedexec: unknown process_id %d", e.ProcessID)
}

// ErrTooManyProcesses is returned when exec is called while the manager is
// already at MaxProcesses live slots.
var ErrTooManyProcesses = fmt.Errorf("unifiedexec: at capacity (%d processes)", MaxProcesses)

// sandboxDenialMarkers are substrings commonly emitted by shells and
// sandbox helpers when a spawn is rejected by policy rather than failing on
// its own merits.
var sandboxDenialMarkers = []string{
	"operation not permitted",
	"permission denied",
	"sandbox",
	"seccomp",
	"read-only file system",
}

// isLikelySandboxDenied applies a conservative heuristic over a failed
// command's combined output to decide whether the failure looks like a
// sandbox policy rejection (worth a single retry at SandboxType::None)
// rather than a genuine program error.
func isLikelySandboxDenied(output string) bool {
	lower := strings.ToLower(output)
	for _, marker := range sandboxDenialMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
