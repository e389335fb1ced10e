package dispatch

import "time"

// HookOutcome is the result of the AfterToolUse hook (dispatch step 6).
type HookOutcome string

const (
	HookSuccess        HookOutcome = "success"
	HookFailedContinue HookOutcome = "failed_continue"
	HookFailedAbort    HookOutcome = "failed_abort"
)

// HookResult carries the outcome and, for the two failure variants, the
// error that produced it.
type HookResult struct {
	Outcome HookOutcome
	Err     error
}

// AfterToolUseContext is what the hook inspects: the original invocation,
// how long execution took, and a preview of the produced output. Grounded
// on the teacher's hooks.ToolHookContext (input/output/duration/error
// shape), trimmed to the fields dispatch step 6 actually names.
type AfterToolUseContext struct {
	Invocation   Invocation
	Duration     time.Duration
	OutputPreview string
	Err          error
}

// maxOutputPreview bounds how much of a tool's output is copied into the
// hook context, matching the 1KiB preview the teacher's plugin tracing
// attaches to tool-finished spans in spirit (full output already lives in
// the ResponseItem; the hook only needs enough to log or audit).
const maxOutputPreview = 2048

func truncatePreview(s string) string {
	if len(s) <= maxOutputPreview {
		return s
	}
	return s[:maxOutputPreview]
}

// AfterToolUseHook observes every completed tool execution and decides
// whether the dispatch loop should continue.
type AfterToolUseHook func(ctx AfterToolUseContext) HookResult

// NoopAfterToolUse always continues; used when no hook is configured.
func NoopAfterToolUse(AfterToolUseContext) HookResult {
	return HookResult{Outcome: HookSuccess}
}
