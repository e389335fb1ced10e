package dispatch

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/nexus-core/agentcore/pkg/types"
)

// ExecStatus tags a completed dispatch for the duration counter.
type ExecStatus string

const (
	StatusSuccess ExecStatus = "success"
	StatusError   ExecStatus = "error"
	StatusDenied  ExecStatus = "denied"
)

// ExecMetrics records one OTel counter per tool execution, tagged with
// {sandbox, sandbox_policy, status} per the dispatch step-5 requirement.
// Grounded on the teacher's observability.Tracer (same meter provider
// plumbing, generalized from spans to a duration counter).
type ExecMetrics struct {
	duration metric.Float64Histogram
}

// NewExecMetrics creates the histogram against the given meter. meter may
// be the global no-op meter when no collector is configured; recordings
// are then simply discarded.
func NewExecMetrics(meter metric.Meter) (*ExecMetrics, error) {
	h, err := meter.Float64Histogram(
		"dispatch.tool.duration",
		metric.WithDescription("tool dispatch execution duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	return &ExecMetrics{duration: h}, nil
}

// Record stores one completed dispatch's duration and status.
func (m *ExecMetrics) Record(ctx context.Context, sandbox types.SandboxType, policy types.SandboxPolicyKind, status ExecStatus, elapsed time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.Record(ctx, float64(elapsed.Milliseconds()),
		metric.WithAttributes(
			attribute.String("sandbox", string(sandbox)),
			attribute.String("sandbox_policy", string(policy)),
			attribute.String("status", string(status)),
		),
	)
}
