package unifiedexec

import (
	"context"
	"strings"
	"testing"

	"github.com/nexus-core/agentcore/pkg/types"
)

// directRunner spawns req.Command with no sandbox transformation at all; it
// exists purely so manager tests exercise real child processes without
// depending on internal/sandbox.
func directRunner(ctx context.Context, req ExecRequest, sandboxDisabled bool) (*process, error) {
	return startProcess(ctx, 0, req.Command, req.Cwd, req.Env)
}

func TestExecShortCommandReturnsOutputAndReleasesSlot(t *testing.T) {
	m := NewManager()
	id := m.AllocateProcessID()

	resp, err := m.Exec(context.Background(), id, ExecRequest{
		Command:     []string{"sh", "-c", "echo hello"},
		YieldTimeMS: 2500,
	}, directRunner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ProcessID != nil {
		t.Fatalf("expected a short-lived command to release its slot, got process_id %v", *resp.ProcessID)
	}
	if !strings.Contains(resp.Output, "hello") {
		t.Fatalf("expected output to contain 'hello', got %q", resp.Output)
	}
	if resp.ExitCode == nil || *resp.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %v", resp.ExitCode)
	}
	if m.Count() != 0 {
		t.Fatalf("expected no live processes after exit, got %d", m.Count())
	}
}

func TestExecLongRunningCommandPersistsAndAcceptsStdin(t *testing.T) {
	m := NewManager()
	id := m.AllocateProcessID()

	resp, err := m.Exec(context.Background(), id, ExecRequest{
		Command:     []string{"sh", "-c", "read line; echo got:$line"},
		YieldTimeMS: 250,
	}, directRunner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ProcessID == nil {
		t.Fatal("expected the still-running shell to be registered with a process_id")
	}

	out, err := m.WriteStdin(*resp.ProcessID, "world\n", 2500, nil)
	if err != nil {
		t.Fatalf("unexpected error writing stdin: %v", err)
	}
	if !strings.Contains(out.Output, "got:world") {
		t.Fatalf("expected echoed stdin in output, got %q", out.Output)
	}
	if out.ExitCode == nil {
		t.Fatal("expected the process to have exited after consuming its single input line")
	}
	if m.Count() != 0 {
		t.Fatalf("expected the slot to be released after exit, got %d live", m.Count())
	}
}

func TestWriteStdinUnknownProcessID(t *testing.T) {
	m := NewManager()
	_, err := m.WriteStdin(types.ProcessID(999), "", 100, nil)
	if _, ok := err.(*UnknownProcessIDError); !ok {
		t.Fatalf("expected UnknownProcessIDError, got %v", err)
	}
}

func TestWarningMessageAppearsNearCapacity(t *testing.T) {
	m := NewManager()
	if msg := m.WarningMessage(); msg != "" {
		t.Fatalf("expected no warning for an empty manager, got %q", msg)
	}

	for i := 0; i < WarningProcesses; i++ {
		id := m.AllocateProcessID()
		resp, err := m.Exec(context.Background(), id, ExecRequest{
			Command:     []string{"sh", "-c", "read line"},
			YieldTimeMS: MinYieldTimeMS,
		}, directRunner)
		if err != nil {
			t.Fatalf("unexpected error on iteration %d: %v", i, err)
		}
		if resp.ProcessID == nil {
			t.Fatalf("expected process %d to persist", i)
		}
	}

	if msg := m.WarningMessage(); msg == "" {
		t.Fatal("expected a warning once the warning threshold is reached")
	}
}

func TestTruncateToTokenBudgetKeepsTail(t *testing.T) {
	out := strings.Repeat("x", 100)
	truncated := truncateToTokenBudget(out, 10) // 10 tokens * 4 bytes = 40 bytes
	if len(truncated) != 40 {
		t.Fatalf("expected 40 bytes retained, got %d", len(truncated))
	}
}

func TestExecAtCapacityReturnsError(t *testing.T) {
	m := NewManager()
	for i := 0; i < MaxProcesses; i++ {
		id := m.AllocateProcessID()
		if _, err := m.Exec(context.Background(), id, ExecRequest{
			Command:     []string{"sh", "-c", "read line"},
			YieldTimeMS: MinYieldTimeMS,
		}, directRunner); err != nil {
			t.Fatalf("unexpected error filling slot %d: %v", i, err)
		}
	}

	id := m.AllocateProcessID()
	_, err := m.Exec(context.Background(), id, ExecRequest{
		Command:     []string{"sh", "-c", "echo overflow"},
		YieldTimeMS: MinYieldTimeMS,
	}, directRunner)
	if err != ErrTooManyProcesses {
		t.Fatalf("expected ErrTooManyProcesses, got %v", err)
	}
}
