package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"

	"github.com/nexus-core/agentcore/pkg/types"
)

// Dispatcher wires together the registry, the mutating-call gate, the MCP
// approval cache, the OTel duration counter, and the AfterToolUse hook
// into the seven-step dispatch algorithm.
type Dispatcher struct {
	registry *Registry
	gate     *Gate
	approval *ApprovalCache
	schemas  *SchemaRegistry
	metrics  *ExecMetrics
	hook     AfterToolUseHook
	log      zerolog.Logger
}

// Option configures a Dispatcher at construction time.
type Option func(*Dispatcher)

// WithApprovalCache wires an MCP approval cache; without one, privileged
// MCP calls are denied rather than silently allowed.
func WithApprovalCache(c *ApprovalCache) Option {
	return func(d *Dispatcher) { d.approval = c }
}

// WithMeter builds and wires the OTel duration counter from meter.
func WithMeter(meter metric.Meter) Option {
	return func(d *Dispatcher) {
		m, err := NewExecMetrics(meter)
		if err == nil {
			d.metrics = m
		}
	}
}

// WithSchemas wires an MCP tool input-schema validator; without one, MCP
// payloads reach their handler unvalidated.
func WithSchemas(schemas *SchemaRegistry) Option {
	return func(d *Dispatcher) { d.schemas = schemas }
}

// WithAfterToolUse wires a post-execution hook; without one, every
// execution is treated as HookSuccess.
func WithAfterToolUse(hook AfterToolUseHook) Option {
	return func(d *Dispatcher) { d.hook = hook }
}

// WithLogger overrides the dispatcher's structured logging scope.
func WithLogger(log zerolog.Logger) Option {
	return func(d *Dispatcher) { d.log = log }
}

// NewDispatcher builds a Dispatcher over registry with the given options.
func NewDispatcher(registry *Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		gate:     NewGate(),
		hook:     NoopAfterToolUse,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs the seven-step tool dispatch algorithm against inv and
// returns the ResponseItem to append to the turn, or a *FatalError that
// should abort the turn.
func (d *Dispatcher) Dispatch(ctx context.Context, inv Invocation) (types.ResponseItem, error) {
	scope := d.log.With().Str("tool", inv.ToolName).Str("call_id", string(inv.CallID)).Logger()

	// Step 1: registry lookup.
	handler, ok := d.registry.Get(inv.ToolName)
	if !ok {
		scope.Warn().Msg("unsupported call")
		err := &ErrUnsupportedCall{ToolName: inv.ToolName}
		return types.NewFunctionCallOutputItem(inv.CallID, err.Error(), false), nil
	}

	// Step 2: payload-kind verification.
	if handler.Kind() != inv.Kind {
		return types.ResponseItem{}, &FatalError{
			Reason: fmt.Sprintf("tool %q expects a %s payload, got %s", inv.ToolName, handler.Kind(), inv.Kind),
		}
	}

	// Step 2b: MCP input-schema validation, folded into payload-kind
	// verification since both reject a call before it reaches the gate.
	if inv.Kind == ToolKindMcp && d.schemas != nil {
		if err := d.schemas.Validate(inv.ToolName, inv.Payload); err != nil {
			scope.Warn().Err(err).Msg("mcp payload failed schema validation")
			return d.deniedOutput(inv, err.Error()), nil
		}
	}

	// Step 3: mutating-call gate.
	if handler.IsMutating(inv) {
		release, err := d.gate.Await(ctx)
		if err != nil {
			return types.ResponseItem{}, err
		}
		defer release()
	}

	// Step 4: MCP approval prompt.
	if RequiresApproval(inv) {
		if d.approval == nil {
			return d.deniedOutput(inv, "no approval mechanism configured"), nil
		}
		allowed, decision := d.approval.Resolve(inv)
		scope.Info().Str("decision", string(decision)).Msg("mcp approval")
		if !allowed {
			return d.deniedOutput(inv, fmt.Sprintf("denied: %s", decision)), nil
		}
	}

	// Step 5: OTel-instrumented execution inside the structured logging
	// scope.
	start := time.Now()
	out, execErr := handler.Execute(ctx, inv)
	elapsed := time.Since(start)

	status := StatusSuccess
	if execErr != nil {
		status = StatusError
	}
	d.metrics.Record(ctx, inv.Sandbox, inv.SandboxPolicy, status, elapsed)
	scope.Info().Dur("elapsed", elapsed).Str("status", string(status)).Msg("tool executed")

	// Step 6: AfterToolUse hook.
	hookResult := d.hook(AfterToolUseContext{
		Invocation:    inv,
		Duration:      elapsed,
		OutputPreview: truncatePreview(out.Content),
		Err:           execErr,
	})
	switch hookResult.Outcome {
	case HookFailedAbort:
		return types.ResponseItem{}, &FatalError{Reason: hookResult.Err.Error()}
	case HookFailedContinue:
		scope.Warn().Err(hookResult.Err).Msg("after_tool_use: continuing past hook failure")
	}

	if execErr != nil {
		return d.errorOutput(inv, execErr), nil
	}

	// Step 7: convert to the matching response variant.
	return d.convert(inv, out), nil
}

func (d *Dispatcher) deniedOutput(inv Invocation, reason string) types.ResponseItem {
	switch inv.Kind {
	case ToolKindMcp:
		return types.NewMcpToolCallOutputItem(inv.CallID, []byte(fmt.Sprintf(`{"error":%q}`, reason)))
	case ToolKindCustom:
		return types.NewCustomToolCallOutputItem(inv.CallID, reason)
	default:
		return types.NewFunctionCallOutputItem(inv.CallID, reason, false)
	}
}

func (d *Dispatcher) errorOutput(inv Invocation, err error) types.ResponseItem {
	switch inv.Kind {
	case ToolKindMcp:
		return types.NewMcpToolCallOutputItem(inv.CallID, []byte(fmt.Sprintf(`{"error":%q}`, err.Error())))
	case ToolKindCustom:
		return types.NewCustomToolCallOutputItem(inv.CallID, err.Error())
	default:
		return types.NewFunctionCallOutputItem(inv.CallID, err.Error(), false)
	}
}

func (d *Dispatcher) convert(inv Invocation, out ToolOutput) types.ResponseItem {
	switch inv.Kind {
	case ToolKindMcp:
		result := out.McpResult
		if result == nil {
			result = []byte("null")
		}
		return types.NewMcpToolCallOutputItem(inv.CallID, result)
	case ToolKindCustom:
		return types.NewCustomToolCallOutputItem(inv.CallID, out.Content)
	default:
		return types.NewFunctionCallOutputItem(inv.CallID, out.Content, out.Success)
	}
}
