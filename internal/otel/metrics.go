package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "pane-mirror"

// Metrics holds all OTEL metric instruments for pane-mirror.
// All counters are cumulative (monotonic) and safe for concurrent use.
// Every Record method is a no-op on a nil *Metrics, so callers never
// need to check whether telemetry is enabled.
type Metrics struct {
	// Cycle counters
	Cycles        metric.Int64Counter
	CycleErrors   metric.Int64Counter
	CycleDuration metric.Float64Histogram

	// Per-pane work counters
	PanesSeen          metric.Int64Counter
	SnapshotsChanged   metric.Int64Counter
	SnapshotsUnchanged metric.Int64Counter
	QueueLines         metric.Int64Counter
	QueueErrors        metric.Int64Counter

	// Tree maintenance counters
	WindowsRenamed metric.Int64Counter
	DirsRemoved    metric.Int64Counter
	UnitErrors     metric.Int64Counter
}

// NewMetrics creates all metric instruments. Returns no-op instruments
// when no MeterProvider is registered (safe to call unconditionally).
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	// --- Cycle counters ---

	m.Cycles, err = meter.Int64Counter("mirror.cycles",
		metric.WithDescription("Total reconcile cycles completed"))
	if err != nil {
		return nil, err
	}

	m.CycleErrors, err = meter.Int64Counter("mirror.cycle_errors",
		metric.WithDescription("Reconcile cycles that failed before any per-pane work (discovery or root error)"))
	if err != nil {
		return nil, err
	}

	m.CycleDuration, err = meter.Float64Histogram("mirror.cycle_duration",
		metric.WithDescription("Wall time of one reconcile cycle"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	// --- Per-pane work counters ---

	m.PanesSeen, err = meter.Int64Counter("mirror.panes_seen",
		metric.WithDescription("Live panes visited across all cycles"))
	if err != nil {
		return nil, err
	}

	m.SnapshotsChanged, err = meter.Int64Counter("mirror.snapshots.changed",
		metric.WithDescription("Snapshot writes whose pane content differed from the previous cycle"))
	if err != nil {
		return nil, err
	}

	m.SnapshotsUnchanged, err = meter.Int64Counter("mirror.snapshots.unchanged",
		metric.WithDescription("Snapshot writes whose pane content was unchanged"))
	if err != nil {
		return nil, err
	}

	m.QueueLines, err = meter.Int64Counter("mirror.queue.lines",
		metric.WithDescription("Queued input lines dispatched to panes"),
		metric.WithUnit("{line}"))
	if err != nil {
		return nil, err
	}

	m.QueueErrors, err = meter.Int64Counter("mirror.queue.errors",
		metric.WithDescription("Queue drains that stopped early on a dispatch or file error"))
	if err != nil {
		return nil, err
	}

	// --- Tree maintenance counters ---

	m.WindowsRenamed, err = meter.Int64Counter("mirror.windows_renamed",
		metric.WithDescription("Window directories renamed in place after an upstream rename"))
	if err != nil {
		return nil, err
	}

	m.DirsRemoved, err = meter.Int64Counter("mirror.dirs_removed",
		metric.WithDescription("Stale session, window, and pane directories removed"))
	if err != nil {
		return nil, err
	}

	m.UnitErrors, err = meter.Int64Counter("mirror.unit_errors",
		metric.WithDescription("Per-unit errors tolerated during a cycle, partitioned by unit (session, window, pane)"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordCycle records one finished reconcile cycle and its duration.
func (m *Metrics) RecordCycle(ctx context.Context, d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.Cycles.Add(ctx, 1)
	m.CycleDuration.Record(ctx, d.Seconds())
	if failed {
		m.CycleErrors.Add(ctx, 1)
	}
}

// RecordPane records one visited pane and whether its snapshot changed.
func (m *Metrics) RecordPane(ctx context.Context, changed bool) {
	if m == nil {
		return
	}
	m.PanesSeen.Add(ctx, 1)
	if changed {
		m.SnapshotsChanged.Add(ctx, 1)
	} else {
		m.SnapshotsUnchanged.Add(ctx, 1)
	}
}

// RecordQueueLines records input lines dispatched to a pane.
func (m *Metrics) RecordQueueLines(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.QueueLines.Add(ctx, int64(n))
}

// RecordQueueError records a queue drain that stopped on an error.
func (m *Metrics) RecordQueueError(ctx context.Context) {
	if m == nil {
		return
	}
	m.QueueErrors.Add(ctx, 1)
}

// RecordRename records a window directory renamed in place.
func (m *Metrics) RecordRename(ctx context.Context) {
	if m == nil {
		return
	}
	m.WindowsRenamed.Add(ctx, 1)
}

// RecordRemovals records stale directories removed during cleanup.
func (m *Metrics) RecordRemovals(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.DirsRemoved.Add(ctx, int64(n))
}

// RecordUnitError records one tolerated per-unit error.
func (m *Metrics) RecordUnitError(ctx context.Context, unit string) {
	if m == nil {
		return
	}
	m.UnitErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("unit", unit),
	))
}
