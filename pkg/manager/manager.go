// Package manager binds the pinning service and health monitor to content
// lifecycle events. It is the only component that writes pinning records.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	perrors "github.com/DeBrosOfficial/pinvault/pkg/errors"
	"github.com/DeBrosOfficial/pinvault/pkg/health"
	"github.com/DeBrosOfficial/pinvault/pkg/pinning"
	"github.com/DeBrosOfficial/pinvault/pkg/provider"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EmergencyConfirmation must be passed verbatim to EmergencyUnpinAll.
const EmergencyConfirmation = "UNPIN_ALL_CONTENT_CONFIRMED"

// Repair results, also used as metric labels.
const (
	RepairRepaired = "repaired"
	RepairNoop     = "noop"
	RepairSkipped  = "skipped"
	RepairFailed   = "failed"
)

// Content status values reported by ListTracked.
const (
	StatusWellPinned      = "well_pinned"
	StatusUnderReplicated = "under_replicated"
	StatusUnpinned        = "unpinned"
)

var (
	// ErrAlreadyPinned is returned when a pin targets content that already
	// has an open record. Missing replicas are restored through repair.
	ErrAlreadyPinned = perrors.NewCodedError(perrors.CodeConflict, "content already pinned, use repair")

	// ErrContentUnpinned is returned when a pin targets content whose record
	// was closed. Closed records are kept as history and never reopened.
	ErrContentUnpinned = perrors.NewCodedError(perrors.CodeConflict, "content was unpinned")
)

// RecordStore is the content collaborator's record persistence.
type RecordStore interface {
	Persist(ctx context.Context, contentID string, rec *pinning.Record) error
	Load(ctx context.Context, contentID string) (*pinning.Record, error)
	ListContentIDs(ctx context.Context) ([]string, error)
}

// RepairObserver is notified of every repair attempt.
type RepairObserver interface {
	ObserveRepair(result string)
}

// Options configure a Manager.
type Options struct {
	DefaultRedundancy int
	AutoRepair        bool
}

// Manager is the PinningManager.
type Manager struct {
	service  *pinning.Service
	monitor  *health.Monitor
	store    RecordStore
	opts     Options
	logger   *zap.Logger
	observer RepairObserver
	now      func() time.Time

	mu        sync.Mutex
	repairing map[string]struct{}
}

// New creates a manager.
func New(svc *pinning.Service, monitor *health.Monitor, store RecordStore, opts Options, logger *zap.Logger) *Manager {
	if opts.DefaultRedundancy <= 0 {
		opts.DefaultRedundancy = svc.DefaultRedundancy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		service:   svc,
		monitor:   monitor,
		store:     store,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
		repairing: make(map[string]struct{}),
	}
}

// SetRepairObserver installs an observer for repair results.
func (m *Manager) SetRepairObserver(o RepairObserver) { m.observer = o }

// Service returns the underlying pinning service.
func (m *Manager) Service() *pinning.Service { return m.service }

// OnContentCreated pins new content. Raw bytes take the upload path; an
// existing hash takes the pin-existing path.
func (m *Manager) OnContentCreated(ctx context.Context, contentID string, data []byte, existingHash string) (*pinning.Record, *pinning.PinOutcome, error) {
	switch {
	case len(data) > 0:
		return m.PinContent(ctx, contentID, data, "")
	case existingHash != "":
		return m.PinContentHash(ctx, contentID, existingHash)
	default:
		return nil, nil, perrors.NewValidationError("content", "either bytes or an existing hash is required", contentID)
	}
}

// OnContentRemoved unpins removed content.
func (m *Manager) OnContentRemoved(ctx context.Context, contentID string) (*pinning.UnpinOutcome, error) {
	return m.UnpinContent(ctx, contentID)
}

// PinContent uploads data and commits a record with whatever replicas were
// achieved. A partial outcome is committed and left to the next health cycle.
func (m *Manager) PinContent(ctx context.Context, contentID string, data []byte, name string) (*pinning.Record, *pinning.PinOutcome, error) {
	if contentID == "" {
		return nil, nil, perrors.NewValidationError("content_id", "must not be empty", contentID)
	}
	if name == "" {
		name = contentID
	}
	release, err := m.claim(ctx, contentID)
	if err != nil {
		return nil, nil, err
	}
	defer release()
	out, err := m.service.UploadAndPin(ctx, data, name, pinning.PinOptions{
		Redundancy: m.opts.DefaultRedundancy,
		Meta:       map[string]string{"content_id": contentID},
	})
	if err != nil {
		return nil, out, err
	}
	rec, err := m.commit(ctx, contentID, out, int64(len(data)))
	return rec, out, err
}

// PinContentHash pins an already-addressed hash for contentID.
func (m *Manager) PinContentHash(ctx context.Context, contentID, hash string) (*pinning.Record, *pinning.PinOutcome, error) {
	if contentID == "" {
		return nil, nil, perrors.NewValidationError("content_id", "must not be empty", contentID)
	}
	release, err := m.claim(ctx, contentID)
	if err != nil {
		return nil, nil, err
	}
	defer release()
	out, err := m.service.PinExistingHash(ctx, hash, pinning.PinOptions{Redundancy: m.opts.DefaultRedundancy})
	if err != nil {
		return nil, out, err
	}
	rec, err := m.commit(ctx, contentID, out, 0)
	return rec, out, err
}

// claim reserves contentID for a first pin. It fails while a pin or repair
// of the same content is running, or once any record exists for it.
func (m *Manager) claim(ctx context.Context, contentID string) (func(), error) {
	if !m.acquire(contentID) {
		return nil, fmt.Errorf("%s: %w", contentID, ErrAlreadyPinned)
	}
	rec, err := m.store.Load(ctx, contentID)
	switch {
	case perrors.IsNotFound(err):
		return func() { m.release(contentID) }, nil
	case err != nil:
		err = perrors.Wrapf(err, "load pinning record for %s", contentID)
	case rec.Closed():
		err = fmt.Errorf("%s: %w", contentID, ErrContentUnpinned)
	default:
		err = fmt.Errorf("%s: %w", contentID, ErrAlreadyPinned)
	}
	m.release(contentID)
	return nil, err
}

func (m *Manager) commit(ctx context.Context, contentID string, out *pinning.PinOutcome, size int64) (*pinning.Record, error) {
	rec := &pinning.Record{
		ContentID:        contentID,
		PrimaryHash:      out.Hash,
		RedundancyTarget: out.Target,
		PinnedAt:         m.now().UTC(),
	}
	for _, r := range out.Replicas {
		if r.Size == 0 {
			r.Size = size
		}
		rec.UpsertReplica(r)
	}
	if err := m.store.Persist(ctx, contentID, rec); err != nil {
		return nil, perrors.Wrapf(err, "persist pinning record for %s", contentID)
	}

	if out.Partial {
		m.logger.Warn("content pinned below redundancy target",
			zap.String("content_id", contentID),
			zap.String("hash", out.Hash),
			zap.Int("replicas", out.Achieved()),
			zap.Int("target", out.Target),
		)
	} else {
		m.logger.Info("content pinned",
			zap.String("content_id", contentID),
			zap.String("hash", out.Hash),
			zap.Int("replicas", out.Achieved()),
		)
	}
	return rec, nil
}

// UnpinContent removes every replica listed in the record and closes it.
// The record is kept. Replicas whose unpin failed stay listed so a later
// call can retry them.
func (m *Manager) UnpinContent(ctx context.Context, contentID string) (*pinning.UnpinOutcome, error) {
	rec, err := m.store.Load(ctx, contentID)
	if err != nil {
		return nil, err
	}

	if rec.Closed() && len(rec.Replicas) == 0 {
		return &pinning.UnpinOutcome{OperationID: uuid.NewString(), Hash: rec.PrimaryHash, Success: true}, nil
	}

	var out *pinning.UnpinOutcome
	if len(rec.Replicas) > 0 {
		out, err = m.service.UnpinHash(ctx, rec.PrimaryHash, rec.Providers())
	} else {
		out, err = m.service.UnpinHash(ctx, rec.PrimaryHash, nil)
	}
	if err != nil {
		return nil, err
	}

	for _, id := range out.Unpinned {
		rec.RemoveReplica(id)
	}
	if rec.UnpinnedAt == nil {
		at := m.now().UTC()
		rec.UnpinnedAt = &at
	}
	if err := m.store.Persist(ctx, contentID, rec); err != nil {
		return out, perrors.Wrapf(err, "persist unpinned record for %s", contentID)
	}

	m.logger.Info("content unpinned",
		zap.String("content_id", contentID),
		zap.String("hash", rec.PrimaryHash),
		zap.Int("unpinned", len(out.Unpinned)),
		zap.Int("failed", len(out.Failed)),
	)
	return out, nil
}

// RepairOutcome describes one repair attempt.
type RepairOutcome struct {
	ContentID string              `json:"content_id"`
	Hash      string              `json:"hash"`
	Repaired  bool                `json:"repaired"`
	Reason    string              `json:"reason,omitempty"`
	Needed    int                 `json:"needed"`
	Dropped   []provider.ID       `json:"dropped,omitempty"`
	Added     []pinning.Replica   `json:"added,omitempty"`
	Pin       *pinning.PinOutcome `json:"pin,omitempty"`
	Record    *pinning.Record     `json:"record,omitempty"`
}

func (m *Manager) acquire(contentID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.repairing[contentID]; busy {
		return false
	}
	m.repairing[contentID] = struct{}{}
	return true
}

func (m *Manager) release(contentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.repairing, contentID)
}

func (m *Manager) observe(result string) {
	if m.observer != nil {
		m.observer.ObserveRepair(result)
	}
}

// RepairContentPinning re-verifies the replicas of contentID and pins the
// hash on enough healthy providers not already holding it to reach the
// record's target. Working replicas are never removed; a replica is dropped
// only when its provider positively reports the hash unpinned.
func (m *Manager) RepairContentPinning(ctx context.Context, contentID string) (*RepairOutcome, error) {
	rec, err := m.store.Load(ctx, contentID)
	if err != nil {
		return nil, err
	}
	out := &RepairOutcome{ContentID: contentID, Hash: rec.PrimaryHash}
	if rec.Closed() {
		out.Reason = "unpinned"
		m.observe(RepairSkipped)
		return out, nil
	}
	if !m.acquire(contentID) {
		out.Reason = "repair already in progress"
		m.observe(RepairSkipped)
		return out, nil
	}
	defer m.release(contentID)

	report, err := m.service.CheckPinningStatus(ctx, rec.PrimaryHash)
	if err != nil {
		m.observe(RepairFailed)
		return out, err
	}

	changed := false
	for _, id := range rec.Providers() {
		pinned, checked := report.Providers[id]
		if _, failed := report.Errors[id]; checked && !failed && !pinned {
			rec.RemoveReplica(id)
			out.Dropped = append(out.Dropped, id)
			changed = true
		}
	}
	for _, id := range report.PinnedOn() {
		if !rec.HasReplica(id) {
			rec.UpsertReplica(pinning.Replica{Provider: id, Hash: rec.PrimaryHash, PinnedAt: report.CheckedAt})
			changed = true
		}
	}

	snap := m.service.Registry().Snapshot()
	healthyReplicas := 0
	for _, id := range rec.Providers() {
		if snap.Healthy(id) {
			healthyReplicas++
		}
	}
	out.Needed = rec.RedundancyTarget - healthyReplicas

	if out.Needed <= 0 {
		out.Needed = 0
		out.Reason = "already well pinned"
		if changed {
			kept, err := m.persistRepair(ctx, contentID, rec)
			if err != nil {
				return out, err
			}
			if !kept {
				return m.closedDuringRepair(ctx, out, nil), nil
			}
		}
		out.Record = rec
		m.observe(RepairNoop)
		return out, nil
	}

	var candidates []provider.ID
	for _, a := range m.service.Registry().EnabledHealthy() {
		if !rec.HasReplica(a.ID()) {
			candidates = append(candidates, a.ID())
		}
	}
	if len(candidates) == 0 {
		out.Reason = "no healthy providers available"
		if changed {
			kept, err := m.persistRepair(ctx, contentID, rec)
			if err != nil {
				return out, err
			}
			if !kept {
				return m.closedDuringRepair(ctx, out, nil), nil
			}
		}
		out.Record = rec
		m.observe(RepairFailed)
		return out, nil
	}

	pin, err := m.service.PinExistingHash(ctx, rec.PrimaryHash, pinning.PinOptions{
		Redundancy: out.Needed,
		Providers:  candidates,
	})
	out.Pin = pin
	if pin != nil {
		for _, r := range pin.Replicas {
			rec.UpsertReplica(r)
			out.Added = append(out.Added, r)
		}
	}
	at := m.now().UTC()
	rec.LastRepairAt = &at

	kept, perr := m.persistRepair(ctx, contentID, rec)
	if perr != nil {
		return out, perr
	}
	if !kept {
		return m.closedDuringRepair(ctx, out, pin), nil
	}
	out.Record = rec
	out.Repaired = len(out.Added) > 0

	switch {
	case out.Repaired && !rec.UnderReplicated():
		m.observe(RepairRepaired)
	case out.Repaired:
		out.Reason = fmt.Sprintf("pinned to %d of %d target providers", rec.Observed(), rec.RedundancyTarget)
		m.observe(RepairRepaired)
	default:
		out.Reason = "no provider accepted the pin"
		m.observe(RepairFailed)
	}

	m.logger.Info("repair finished",
		zap.String("content_id", contentID),
		zap.String("hash", rec.PrimaryHash),
		zap.Int("dropped", len(out.Dropped)),
		zap.Int("added", len(out.Added)),
		zap.Int("replicas", rec.Observed()),
		zap.Int("target", rec.RedundancyTarget),
	)
	if err != nil && !out.Repaired {
		return out, err
	}
	return out, nil
}

// persistRepair writes rec unless the record was closed while the repair
// ran, in which case the unpin wins and kept is false.
func (m *Manager) persistRepair(ctx context.Context, contentID string, rec *pinning.Record) (kept bool, err error) {
	current, err := m.store.Load(ctx, contentID)
	if err == nil && current.Closed() {
		return false, nil
	}
	if err := m.store.Persist(ctx, contentID, rec); err != nil {
		return false, perrors.Wrapf(err, "persist repaired record for %s", contentID)
	}
	return true, nil
}

// closedDuringRepair reports a repair overtaken by an unpin. Replicas the
// repair added are removed again, best effort.
func (m *Manager) closedDuringRepair(ctx context.Context, out *RepairOutcome, pin *pinning.PinOutcome) *RepairOutcome {
	out.Reason = "unpinned"
	out.Repaired = false
	out.Added = nil
	out.Record = nil
	m.observe(RepairSkipped)

	if pin == nil || len(pin.Replicas) == 0 {
		return out
	}
	ids := make([]provider.ID, 0, len(pin.Replicas))
	for _, r := range pin.Replicas {
		ids = append(ids, r.Provider)
	}
	res, err := m.service.UnpinHash(ctx, out.Hash, ids)
	switch {
	case err != nil:
		m.logger.Warn("failed to undo repair of unpinned content",
			zap.String("content_id", out.ContentID),
			zap.String("hash", out.Hash),
			zap.Error(err),
		)
	case len(res.Failed) > 0:
		m.logger.Warn("repair replicas left behind after unpin",
			zap.String("content_id", out.ContentID),
			zap.String("hash", out.Hash),
			zap.Int("failed", len(res.Failed)),
		)
	}
	return out
}

// HealthCheckReport is the result of PerformHealthCheck.
type HealthCheckReport struct {
	Cycle      *health.CycleReport `json:"cycle"`
	AutoRepair bool                `json:"auto_repair"`
	Repairs    []*RepairOutcome    `json:"repairs,omitempty"`
	Errors     map[string]string   `json:"errors,omitempty"`
}

func (m *Manager) trackedContent(ctx context.Context) ([]health.Tracked, error) {
	ids, err := m.store.ListContentIDs(ctx)
	if err != nil {
		return nil, err
	}
	tracked := make([]health.Tracked, 0, len(ids))
	for _, id := range ids {
		rec, err := m.store.Load(ctx, id)
		if err != nil {
			m.logger.Warn("failed to load pinning record", zap.String("content_id", id), zap.Error(err))
			continue
		}
		if rec.Closed() {
			continue
		}
		tracked = append(tracked, health.Tracked{ContentID: id, Hash: rec.PrimaryHash, Redundancy: rec.RedundancyTarget})
	}
	return tracked, nil
}

// PerformHealthCheck runs one monitor cycle over every open record and,
// when auto-repair is enabled, repairs each under-replicated item in turn.
func (m *Manager) PerformHealthCheck(ctx context.Context) (*HealthCheckReport, error) {
	tracked, err := m.trackedContent(ctx)
	if err != nil {
		return nil, perrors.Wrap(err, "list tracked content")
	}

	report := &HealthCheckReport{AutoRepair: m.opts.AutoRepair}
	report.Cycle = m.monitor.RunCycle(ctx, tracked)

	if !m.opts.AutoRepair {
		for _, u := range report.Cycle.UnderReplicated {
			m.logger.Warn("content under-replicated, auto-repair disabled",
				zap.String("content_id", u.ContentID),
				zap.Int("pinned", u.PinnedCount),
				zap.Int("target", u.Redundancy),
			)
		}
		return report, nil
	}

	seen := make(map[string]bool, len(report.Cycle.UnderReplicated))
	for _, u := range report.Cycle.UnderReplicated {
		if seen[u.ContentID] || ctx.Err() != nil {
			continue
		}
		seen[u.ContentID] = true

		out, err := m.RepairContentPinning(ctx, u.ContentID)
		if out != nil {
			report.Repairs = append(report.Repairs, out)
		}
		if err != nil {
			if report.Errors == nil {
				report.Errors = make(map[string]string)
			}
			report.Errors[u.ContentID] = err.Error()
			m.logger.Error("repair failed", zap.String("content_id", u.ContentID), zap.Error(err))
		}
	}
	return report, nil
}

// Run performs a health check every monitor interval until ctx ends.
func (m *Manager) Run(ctx context.Context) error {
	err := m.monitor.Run(ctx, func(ctx context.Context) {
		if _, err := m.PerformHealthCheck(ctx); err != nil {
			m.logger.Error("health check failed", zap.Error(err))
		}
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// EmergencyItem is one content id's outcome in an EmergencyReport.
type EmergencyItem struct {
	ContentID string                `json:"content_id"`
	Success   bool                  `json:"success"`
	Error     string                `json:"error,omitempty"`
	Unpin     *pinning.UnpinOutcome `json:"unpin,omitempty"`
}

// EmergencyReport enumerates every content id touched by EmergencyUnpinAll.
type EmergencyReport struct {
	OperationID string          `json:"operation_id"`
	Total       int             `json:"total"`
	Succeeded   int             `json:"succeeded"`
	Failed      int             `json:"failed"`
	Items       []EmergencyItem `json:"items"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
}

// EmergencyUnpinAll unpins every tracked record. confirmation must equal
// EmergencyConfirmation or nothing is touched.
func (m *Manager) EmergencyUnpinAll(ctx context.Context, confirmation string) (*EmergencyReport, error) {
	if confirmation != EmergencyConfirmation {
		return nil, perrors.NewConfirmationError("emergency unpin of all content")
	}

	report := &EmergencyReport{OperationID: uuid.NewString(), StartedAt: m.now().UTC()}
	ids, err := m.store.ListContentIDs(ctx)
	if err != nil {
		report.FinishedAt = m.now().UTC()
		return report, perrors.Wrap(err, "list tracked content")
	}

	m.logger.Warn("emergency unpin of all content started",
		zap.String("operation_id", report.OperationID),
		zap.Int("records", len(ids)),
	)

	for _, id := range ids {
		item := EmergencyItem{ContentID: id}
		out, err := m.UnpinContent(ctx, id)
		item.Unpin = out
		switch {
		case err != nil:
			item.Error = err.Error()
		case !out.Success:
			item.Error = fmt.Sprintf("unpin failed on %d providers", len(out.Failed))
		default:
			item.Success = true
		}
		if item.Success {
			report.Succeeded++
		} else {
			report.Failed++
		}
		report.Items = append(report.Items, item)
	}
	report.Total = len(report.Items)
	report.FinishedAt = m.now().UTC()

	m.logger.Warn("emergency unpin of all content finished",
		zap.String("operation_id", report.OperationID),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// TrackedContent is one record with its derived status.
type TrackedContent struct {
	ContentID  string          `json:"content_id"`
	Hash       string          `json:"hash"`
	Status     string          `json:"status"`
	Replicas   int             `json:"replicas"`
	Redundancy int             `json:"redundancy"`
	Record     *pinning.Record `json:"record"`
}

func statusOf(rec *pinning.Record) string {
	switch {
	case rec.Closed():
		return StatusUnpinned
	case rec.UnderReplicated():
		return StatusUnderReplicated
	default:
		return StatusWellPinned
	}
}

// ListTracked returns every record with its status as last recorded. It
// makes no provider calls.
func (m *Manager) ListTracked(ctx context.Context) ([]TrackedContent, error) {
	ids, err := m.store.ListContentIDs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]TrackedContent, 0, len(ids))
	for _, id := range ids {
		rec, err := m.store.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, TrackedContent{
			ContentID:  id,
			Hash:       rec.PrimaryHash,
			Status:     statusOf(rec),
			Replicas:   rec.Observed(),
			Redundancy: rec.RedundancyTarget,
			Record:     rec,
		})
	}
	return out, nil
}

// PinningStats aggregates record counts and provider health.
type PinningStats struct {
	Total           int                   `json:"total"`
	WellPinned      int                   `json:"well_pinned"`
	UnderReplicated int                   `json:"under_replicated"`
	Unpinned        int                   `json:"unpinned"`
	AutoRepair      bool                  `json:"auto_repair"`
	Redundancy      int                   `json:"redundancy"`
	Health          *pinning.HealthStatus `json:"health"`
}

// GetPinningStats counts records by status.
func (m *Manager) GetPinningStats(ctx context.Context) (*PinningStats, error) {
	tracked, err := m.ListTracked(ctx)
	if err != nil {
		return nil, err
	}
	stats := &PinningStats{
		Total:      len(tracked),
		AutoRepair: m.opts.AutoRepair,
		Redundancy: m.opts.DefaultRedundancy,
		Health:     m.service.GetHealthStatus(),
	}
	for _, t := range tracked {
		switch t.Status {
		case StatusUnpinned:
			stats.Unpinned++
		case StatusUnderReplicated:
			stats.UnderReplicated++
		default:
			stats.WellPinned++
		}
	}
	return stats, nil
}
