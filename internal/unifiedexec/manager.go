package unifiedexec

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nexus-core/agentcore/pkg/types"
)

const (
	MinYieldTimeMS      = 250
	MinEmptyYieldTimeMS = 5_000
	MaxYieldTimeMS      = 30_000
	DefaultMaxOutputTokens = 10_000

	MaxProcesses     = 64
	WarningProcesses = 60
)

// ClampYieldTime enforces [MinYieldTimeMS, MaxYieldTimeMS] on a caller-
// requested yield window.
func ClampYieldTime(yieldMS int64) int64 {
	if yieldMS < MinYieldTimeMS {
		return MinYieldTimeMS
	}
	if yieldMS > MaxYieldTimeMS {
		return MaxYieldTimeMS
	}
	return yieldMS
}

// ResolveMaxTokens applies the DefaultMaxOutputTokens fallback.
func ResolveMaxTokens(maxTokens *int) int {
	if maxTokens == nil {
		return DefaultMaxOutputTokens
	}
	return *maxTokens
}

// ExecRequest is a single unified-exec call.
type ExecRequest struct {
	Command           []string
	Cwd               string
	Env               map[string]string
	TTY               bool
	YieldTimeMS       int64
	MaxOutputTokens   *int
	SandboxPermissions []string
	Justification     string
}

// ExecResponse is returned from both Exec and WriteStdin.
type ExecResponse struct {
	ProcessID *types.ProcessID
	Output    string
	ExitCode  *int
}

// SandboxRunner transforms and spawns a command under the turn's sandbox
// policy. The unified exec manager calls it once, and — if the result looks
// like a sandbox denial — once more with sandboxDisabled=true.
type SandboxRunner func(ctx context.Context, req ExecRequest, sandboxDisabled bool) (*process, error)

// Manager tracks the live process slab for one session.
type Manager struct {
	mu        sync.Mutex
	processes map[types.ProcessID]*process
	reserved  map[types.ProcessID]struct{}
	nextID    uint64
}

func NewManager() *Manager {
	return &Manager{
		processes: make(map[types.ProcessID]*process),
		reserved:  make(map[types.ProcessID]struct{}),
	}
}

// AllocateProcessID reserves a fresh, session-unique ProcessID before a spawn
// attempt, so the caller can reference it even if exec races with another
// allocation.
func (m *Manager) AllocateProcessID() types.ProcessID {
	id := types.ProcessID(atomic.AddUint64(&m.nextID, 1))
	m.mu.Lock()
	m.reserved[id] = struct{}{}
	m.mu.Unlock()
	return id
}

// Count reports the number of live (non-reserved-only) process slots.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.processes)
}

// WarningMessage returns a non-empty model-stream warning once the slab has
// reached WarningProcesses live slots, and empty otherwise.
func (m *Manager) WarningMessage() string {
	if m.Count() >= WarningProcesses {
		return "unified exec process count is approaching the session limit; consider closing finished interactive sessions"
	}
	return ""
}

// Exec runs a command to completion or until yield_time_ms elapses,
// whichever comes first. On apparent sandbox denial it retries once with
// sandboxing disabled. If the process is still running when the yield
// window closes, it is registered under processID and kept alive;
// otherwise its slot is released immediately.
func (m *Manager) Exec(ctx context.Context, processID types.ProcessID, req ExecRequest, run SandboxRunner) (*ExecResponse, error) {
	if m.Count() >= MaxProcesses {
		m.releaseReservation(processID)
		return nil, ErrTooManyProcesses
	}

	yieldFor := time.Duration(ClampYieldTime(req.YieldTimeMS)) * time.Millisecond

	p, err := run(ctx, req, false)
	if err != nil {
		return nil, err
	}

	p.writeStdin("", yieldFor)
	output, exitCode, exited := p.snapshot()

	if !exited && isLikelySandboxDenied(string(output)) {
		p.kill()
		p, err = run(ctx, req, true)
		if err != nil {
			return nil, err
		}
		p.writeStdin("", yieldFor)
		output, exitCode, exited = p.snapshot()
	}

	text := truncateToTokenBudget(string(output), ResolveMaxTokens(req.MaxOutputTokens))

	if exited {
		m.releaseReservation(processID)
		code := exitCode
		return &ExecResponse{Output: text, ExitCode: &code}, nil
	}

	p.id = processID
	m.register(processID, p)
	return &ExecResponse{ProcessID: &processID, Output: text}, nil
}

// truncateToTokenBudget approximates a token count as 4 bytes/token (the
// same ratio UNIFIED_EXEC_OUTPUT_MAX_TOKENS uses against
// UNIFIED_EXEC_OUTPUT_MAX_BYTES) and keeps the tail of output, the half of
// the stream most likely to hold the command's final result.
func truncateToTokenBudget(output string, maxTokens int) string {
	maxBytes := maxTokens * 4
	if len(output) <= maxBytes {
		return output
	}
	return output[len(output)-maxBytes:]
}

// WriteStdin locates processID and writes input (possibly empty, to poll),
// returning accumulated output up to the yield deadline. Empty input uses a
// longer minimum yield window so a bare poll has a chance to observe output
// that is still arriving.
func (m *Manager) WriteStdin(processID types.ProcessID, input string, yieldMS int64, maxOutputTokens *int) (*ExecResponse, error) {
	p := m.lookup(processID)
	if p == nil {
		return nil, &UnknownProcessIDError{ProcessID: processID}
	}

	clamped := ClampYieldTime(yieldMS)
	if input == "" && clamped < MinEmptyYieldTimeMS {
		clamped = MinEmptyYieldTimeMS
	}

	p.writeStdin(input, time.Duration(clamped)*time.Millisecond)
	output, exitCode, exited := p.snapshot()
	text := truncateToTokenBudget(string(output), ResolveMaxTokens(maxOutputTokens))

	if exited {
		m.releaseProcess(processID)
		code := exitCode
		return &ExecResponse{Output: text, ExitCode: &code}, nil
	}
	return &ExecResponse{ProcessID: &processID, Output: text}, nil
}

func (m *Manager) register(id types.ProcessID, p *process) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processes[id] = p
}

func (m *Manager) lookup(id types.ProcessID) *process {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processes[id]
}

// releaseProcess removes both the process slot and its id reservation
// atomically, so a subsequent write_stdin sees UnknownProcessId.
func (m *Manager) releaseProcess(id types.ProcessID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.processes, id)
	delete(m.reserved, id)
}

func (m *Manager) releaseReservation(id types.ProcessID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reserved, id)
}
