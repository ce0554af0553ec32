// Package health probes pinning providers on a fixed interval, publishes
// the resulting health snapshot to the registry and reports tracked content
// that has fallen below its redundancy target.
package health

import (
	"context"
	"time"

	"github.com/DeBrosOfficial/pinvault/pkg/pinning"
	"github.com/DeBrosOfficial/pinvault/pkg/provider"
	"github.com/DeBrosOfficial/pinvault/pkg/registry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options configure a Monitor.
type Options struct {
	// Interval between cycles. Defaults to 5 minutes.
	Interval time.Duration
	// CycleBudget bounds one whole cycle. Work not started before it runs
	// out is skipped until the next cycle. Defaults to 2 minutes.
	CycleBudget time.Duration
	// ProbeTimeout caps a health probe on adapters that report no call
	// budget of their own. Defaults to 30 seconds.
	ProbeTimeout time.Duration
	// Threshold is the number of consecutive failures that mark a provider
	// unhealthy. Defaults to 1.
	Threshold int
	// Concurrency bounds parallel probes. Defaults to 10.
	Concurrency int
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = 5 * time.Minute
	}
	if o.CycleBudget <= 0 {
		o.CycleBudget = 2 * time.Minute
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = 30 * time.Second
	}
	if o.Threshold <= 0 {
		o.Threshold = 1
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 10
	}
	return o
}

// StatusChecker is the slice of the pinning service the monitor needs.
type StatusChecker interface {
	CheckPinningStatus(ctx context.Context, hash string) (*pinning.StatusReport, error)
}

// Reporter receives cycle results, e.g. to export them as metrics.
type Reporter interface {
	ReportSnapshot(s *registry.Snapshot)
	ReportUnderReplicated(n int)
}

// Tracked is a content item whose replication the monitor verifies.
type Tracked struct {
	ContentID  string
	Hash       string
	Redundancy int
}

// UnderReplicated is tracked content observed below its target.
type UnderReplicated struct {
	ContentID   string `json:"content_id"`
	Hash        string `json:"hash"`
	PinnedCount int    `json:"pinned_count"`
	Redundancy  int    `json:"redundancy"`
}

// CycleReport summarizes one monitor cycle.
type CycleReport struct {
	StartedAt       time.Time          `json:"started_at"`
	FinishedAt      time.Time          `json:"finished_at"`
	Probed          int                `json:"probed"`
	SkippedProbes   int                `json:"skipped_probes"`
	Checked         int                `json:"checked"`
	SkippedChecks   int                `json:"skipped_checks"`
	UnderReplicated []UnderReplicated  `json:"under_replicated"`
	Snapshot        *registry.Snapshot `json:"-"`
}

// Monitor is the HealthMonitor. It never mutates pinning records.
type Monitor struct {
	registry *registry.Registry
	checker  StatusChecker
	opts     Options
	logger   *zap.Logger
	reporter Reporter
	now      func() time.Time
}

// NewMonitor creates a monitor over reg. checker may be nil when only
// provider probing is wanted.
func NewMonitor(reg *registry.Registry, checker StatusChecker, opts Options, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		registry: reg,
		checker:  checker,
		opts:     opts.withDefaults(),
		logger:   logger,
		now:      time.Now,
	}
}

// SetReporter installs a reporter notified after each cycle.
func (m *Monitor) SetReporter(r Reporter) { m.reporter = r }

// Interval returns the configured cycle interval.
func (m *Monitor) Interval() time.Duration { return m.opts.Interval }

type probeResult struct {
	probed bool
	err    error
	at     time.Time
}

// ProbeProviders probes every enabled provider and publishes a new snapshot
// derived from the previous one. Providers whose probe could not start
// within budget keep their previous health.
func (m *Monitor) ProbeProviders(ctx context.Context) (*registry.Snapshot, int, int) {
	entries := m.registry.Entries()
	prev := m.registry.Snapshot()
	results := make([]probeResult, len(entries))

	g := new(errgroup.Group)
	g.SetLimit(m.opts.Concurrency)
	for i, e := range entries {
		if !e.Enabled {
			continue
		}
		i, a := i, e.Adapter
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout(a))
			defer cancel()
			err := a.HealthProbe(probeCtx)
			if err != nil && ctx.Err() != nil {
				// Cut off by the cycle budget, not a provider failure.
				return nil
			}
			results[i] = probeResult{probed: true, err: err, at: m.now().UTC()}
			return nil
		})
	}
	_ = g.Wait()

	probed, skipped := 0, 0
	health := make([]registry.ProviderHealth, 0, len(entries))
	for i, e := range entries {
		id := e.Adapter.ID()
		h, ok := prev.Get(id)
		if !ok {
			h = registry.ProviderHealth{Provider: id, State: registry.StateUnknown}
		}
		h.Priority = e.Priority
		h.Enabled = e.Enabled

		r := results[i]
		switch {
		case !e.Enabled:
		case !r.probed:
			skipped++
		default:
			probed++
			h = m.transition(h, r)
		}
		h.Healthy = h.Enabled && h.State != registry.StateUnhealthy
		health = append(health, h)
	}

	snap := registry.NewSnapshot(m.now().UTC(), health)
	m.registry.Publish(snap)
	return snap, probed, skipped
}

func (m *Monitor) probeTimeout(a provider.Adapter) time.Duration {
	if d, ok := provider.CallBudget(a); ok {
		return d
	}
	return m.opts.ProbeTimeout
}

// transition applies one probe result to the per-provider state machine:
// Unknown -> Healthy <-> Unhealthy.
func (m *Monitor) transition(h registry.ProviderHealth, r probeResult) registry.ProviderHealth {
	h.LastCheckedAt = r.at
	if r.err == nil {
		if h.State == registry.StateUnhealthy {
			m.logger.Info("provider recovered", zap.String("provider", string(h.Provider)))
		}
		h.State = registry.StateHealthy
		h.ConsecutiveFailures = 0
		h.LastError = ""
		return h
	}

	h.ConsecutiveFailures++
	h.LastError = r.err.Error()
	auth := provider.IsAuthFailure(r.err)
	if auth || h.ConsecutiveFailures >= m.opts.Threshold {
		if h.State != registry.StateUnhealthy {
			m.logger.Warn("provider marked unhealthy",
				zap.String("provider", string(h.Provider)),
				zap.Int("consecutive_failures", h.ConsecutiveFailures),
				zap.Bool("auth_failure", auth),
				zap.Error(r.err),
			)
		}
		h.State = registry.StateUnhealthy
	}
	return h
}

// CheckTracked verifies each tracked item once and returns those below
// target. It returns early, reporting the remainder as skipped, when ctx ends.
func (m *Monitor) CheckTracked(ctx context.Context, tracked []Tracked) ([]UnderReplicated, int, int) {
	if m.checker == nil {
		return nil, 0, len(tracked)
	}

	var under []UnderReplicated
	seen := make(map[string]bool, len(tracked))
	checked := 0
	for i, t := range tracked {
		if seen[t.ContentID] {
			continue
		}
		if ctx.Err() != nil {
			return under, checked, unseen(tracked[i:], seen)
		}
		seen[t.ContentID] = true

		report, err := m.checker.CheckPinningStatus(ctx, t.Hash)
		if err != nil {
			m.logger.Warn("status check failed",
				zap.String("content_id", t.ContentID),
				zap.String("hash", t.Hash),
				zap.Error(err),
			)
			continue
		}
		checked++

		target := t.Redundancy
		if target <= 0 {
			target = report.Summary.Redundancy
		}
		if report.Summary.PinnedCount < target {
			under = append(under, UnderReplicated{
				ContentID:   t.ContentID,
				Hash:        t.Hash,
				PinnedCount: report.Summary.PinnedCount,
				Redundancy:  target,
			})
		}
	}
	return under, checked, 0
}

// unseen counts distinct content ids in rest not yet in seen.
func unseen(rest []Tracked, seen map[string]bool) int {
	n := 0
	counted := make(map[string]bool, len(rest))
	for _, t := range rest {
		if seen[t.ContentID] || counted[t.ContentID] {
			continue
		}
		counted[t.ContentID] = true
		n++
	}
	return n
}

// RunCycle probes providers then checks tracked content, all within the
// configured cycle budget.
func (m *Monitor) RunCycle(ctx context.Context, tracked []Tracked) *CycleReport {
	report := &CycleReport{StartedAt: m.now().UTC()}

	cycleCtx, cancel := context.WithTimeout(ctx, m.opts.CycleBudget)
	defer cancel()

	report.Snapshot, report.Probed, report.SkippedProbes = m.ProbeProviders(cycleCtx)
	report.UnderReplicated, report.Checked, report.SkippedChecks = m.CheckTracked(cycleCtx, tracked)
	report.FinishedAt = m.now().UTC()

	if m.reporter != nil {
		m.reporter.ReportSnapshot(report.Snapshot)
		m.reporter.ReportUnderReplicated(len(report.UnderReplicated))
	}

	m.logger.Info("health cycle finished",
		zap.Int("probed", report.Probed),
		zap.Int("skipped_probes", report.SkippedProbes),
		zap.Int("checked", report.Checked),
		zap.Int("skipped_checks", report.SkippedChecks),
		zap.Int("under_replicated", len(report.UnderReplicated)),
		zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report
}

// Run executes cycle every interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context, cycle func(ctx context.Context)) error {
	m.logger.Info("starting health monitor", zap.Duration("interval", m.opts.Interval))

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("health monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			cycle(ctx)
		}
	}
}
