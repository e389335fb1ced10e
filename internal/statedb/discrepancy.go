package statedb

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RepairStage identifies which read-repair path produced a discrepancy.
type RepairStage string

const (
	StagePathUpdated RepairStage = "path_updated"
	StageArchivedFlag RepairStage = "archived_flag"
	StageReconciled   RepairStage = "reconciled"
)

// RepairReason names why a discrepancy counter fired.
type RepairReason string

const (
	ReasonStaleRolloutPath RepairReason = "stale_rollout_path"
	ReasonStaleArchived     RepairReason = "stale_archived"
	ReasonMissingRow        RepairReason = "missing_row"
	ReasonMetadataDrift     RepairReason = "metadata_drift"
)

// DiscrepancyCounters tallies read-repair events, both as in-process
// atomics (cheap, always available for tests and status reporting) and, if
// a meter is attached, as an OpenTelemetry counter tagged {stage, reason}
// mirroring the duration histogram dispatch records for tool execution.
type DiscrepancyCounters struct {
	total   atomic.Int64
	counter metric.Int64Counter
}

// NewDiscrepancyCounters creates an unattached counter set; call
// AttachMeter to also export through OpenTelemetry.
func NewDiscrepancyCounters() *DiscrepancyCounters {
	return &DiscrepancyCounters{}
}

// AttachMeter wires an OTel meter for exporting repair counts, in addition
// to the always-on in-process tally.
func (c *DiscrepancyCounters) AttachMeter(meter metric.Meter) error {
	counter, err := meter.Int64Counter(
		"statedb.rollout.discrepancy",
		metric.WithDescription("read-repair discrepancies found reconciling the thread index against rollout files"),
	)
	if err != nil {
		return err
	}
	c.counter = counter
	return nil
}

// Record increments the tally for (stage, reason).
func (c *DiscrepancyCounters) Record(ctx context.Context, stage RepairStage, reason RepairReason) {
	c.total.Add(1)
	if c.counter == nil {
		return
	}
	c.counter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", string(stage)),
		attribute.String("reason", string(reason)),
	))
}

// Total returns the cumulative in-process discrepancy count.
func (c *DiscrepancyCounters) Total() int64 { return c.total.Load() }
