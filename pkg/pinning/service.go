// Package pinning orchestrates one logical pin operation across the
// providers held by a registry and folds N provider outcomes into one result.
package pinning

import (
	"context"
	"fmt"
	"sort"
	"time"

	perrors "github.com/DeBrosOfficial/pinvault/pkg/errors"
	"github.com/DeBrosOfficial/pinvault/pkg/provider"
	"github.com/DeBrosOfficial/pinvault/pkg/registry"
	"github.com/google/uuid"
	"github.com/ipfs/go-cid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Operation names recorded on ProviderResult.
const (
	OpUpload = "upload"
	OpPin    = "pin"
	OpUnpin  = "unpin"
	OpStatus = "status"
	OpUsage  = "usage"
)

var (
	// ErrNoProviders is returned when no healthy provider is available.
	ErrNoProviders = perrors.NewCodedError(perrors.CodeServiceUnavailable, "no healthy pinning providers available")

	// ErrUploadFailed is returned when the upload failed on every candidate provider.
	ErrUploadFailed = perrors.NewCodedError(perrors.CodeNoReplicas, "upload failed on every provider")

	// ErrNoReplicas is returned when no provider accepted a pin.
	ErrNoReplicas = perrors.NewCodedError(perrors.CodeNoReplicas, "no provider accepted the pin")
)

// Options configure a Service.
type Options struct {
	// DefaultRedundancy is used when a call does not specify one. Defaults to 2.
	DefaultRedundancy int

	// Concurrency bounds the provider fan-out. Zero means "equal to the
	// redundancy of the call".
	Concurrency int

	// CallTimeout caps calls on adapters that do not report a budget of
	// their own. Defaults to 60 seconds.
	CallTimeout time.Duration

	// MaxFileSize rejects larger uploads. Zero disables the check.
	MaxFileSize int64
}

// PinOptions tune a single pin call.
type PinOptions struct {
	Redundancy int
	// Providers restricts candidates to these ids. Empty means every healthy provider.
	Providers []provider.ID
	Meta      map[string]string
}

// Service is the PinningService.
type Service struct {
	registry *registry.Registry
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a Service over reg.
func NewService(reg *registry.Registry, opts Options, logger *zap.Logger) *Service {
	if opts.DefaultRedundancy <= 0 {
		opts.DefaultRedundancy = 2
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		registry: reg,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// DefaultRedundancy returns the configured redundancy target.
func (s *Service) DefaultRedundancy() int { return s.opts.DefaultRedundancy }

// Registry returns the provider registry the service selects from.
func (s *Service) Registry() *registry.Registry { return s.registry }

// ValidateHash rejects strings that are not content identifiers.
func ValidateHash(hash string) error {
	if hash == "" {
		return perrors.NewValidationError("hash", "must not be empty", hash)
	}
	if _, err := cid.Decode(hash); err != nil {
		return perrors.NewValidationError("hash", "not a valid content identifier", hash)
	}
	return nil
}

func (s *Service) redundancy(r int) int {
	if r <= 0 {
		return s.opts.DefaultRedundancy
	}
	return r
}

func (s *Service) concurrency(redundancy int) int {
	if s.opts.Concurrency > 0 {
		return s.opts.Concurrency
	}
	if redundancy < 1 {
		return 1
	}
	return redundancy
}

// candidates returns healthy adapters in priority order, optionally restricted.
func (s *Service) candidates(only []provider.ID) []provider.Adapter {
	healthy := s.registry.EnabledHealthy()
	if len(only) == 0 {
		return healthy
	}
	allowed := make(map[provider.ID]bool, len(only))
	for _, id := range only {
		allowed[id] = true
	}
	out := healthy[:0:0]
	for _, a := range healthy {
		if allowed[a.ID()] {
			out = append(out, a)
		}
	}
	return out
}

// callTimeout caps one call on a. Adapters that bound their own calls get
// their full retry budget; CallTimeout applies to the rest.
func (s *Service) callTimeout(a provider.Adapter) time.Duration {
	if d, ok := provider.CallBudget(a); ok {
		return d
	}
	return s.opts.CallTimeout
}

// call runs one adapter call under its timeout and folds the error into a
// typed result. An auth failure takes the provider out of selection at once.
func (s *Service) call(ctx context.Context, a provider.Adapter, op string, fn func(ctx context.Context) (Success, error)) ProviderResult {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout(a))
	defer cancel()

	started := s.now()
	success, err := fn(callCtx)
	result := ProviderResult{
		Provider:  a.ID(),
		Op:        op,
		Latency:   time.Since(started),
		Timestamp: started,
	}
	if err != nil {
		ae := provider.AsAdapterError(a.ID(), op, err)
		result.Outcome = Failure{Kind: ae.Kind, Message: ae.Error(), Retryable: ae.Retryable}
		s.logger.Warn("provider call failed",
			zap.String("provider", string(a.ID())),
			zap.String("op", op),
			zap.String("kind", string(ae.Kind)),
			zap.Bool("retryable", ae.Retryable),
			zap.Duration("latency", result.Latency),
		)
		if ae.Kind == provider.KindAuthFailure && s.registry.MarkUnhealthy(a.ID(), ae.Error(), s.now().UTC()) {
			s.logger.Warn("provider marked unhealthy after auth failure",
				zap.String("provider", string(a.ID())),
				zap.String("op", op),
			)
		}
		return result
	}
	result.Outcome = success
	return result
}

func (s *Service) pinOne(ctx context.Context, a provider.Adapter, hash string) ProviderResult {
	return s.call(ctx, a, OpPin, func(ctx context.Context) (Success, error) {
		res, err := a.PinExisting(ctx, hash)
		if err != nil {
			return Success{}, err
		}
		return Success{URL: res.URL, RemoteHash: hash}, nil
	})
}

// pinAcross issues PinExisting to candidates in priority order until need
// successes are collected or candidates run out. Each round starts as many
// calls as are still needed, so a failure falls back to the next provider.
func (s *Service) pinAcross(ctx context.Context, hash string, candidates []provider.Adapter, need, limit int) []ProviderResult {
	var results []ProviderResult
	next := 0
	for need > 0 && next < len(candidates) && ctx.Err() == nil {
		n := need
		if rest := len(candidates) - next; n > rest {
			n = rest
		}
		batch := candidates[next : next+n]
		next += n

		round := make([]ProviderResult, len(batch))
		var g errgroup.Group
		g.SetLimit(limit)
		for i, a := range batch {
			i, a := i, a
			g.Go(func() error {
				round[i] = s.pinOne(ctx, a, hash)
				return nil
			})
		}
		_ = g.Wait()

		for _, r := range round {
			if r.Succeeded() {
				need--
			}
		}
		results = append(results, round...)
	}
	return results
}

func (s *Service) replicasFrom(results []ProviderResult, hash string, size int64) []Replica {
	var out []Replica
	for _, r := range results {
		success, ok := r.Outcome.(Success)
		if !ok {
			continue
		}
		h := success.RemoteHash
		if h == "" {
			h = hash
		}
		out = append(out, Replica{
			Provider: r.Provider,
			Hash:     h,
			URL:      success.URL,
			PinnedAt: r.Timestamp.Add(r.Latency).UTC(),
			Size:     size,
		})
	}
	return out
}

// UploadAndPin uploads data to the highest-priority healthy provider that
// accepts it, then pins the resulting hash on further providers until the
// redundancy target is met. Falling short of the target is reported as a
// partial outcome, not an error; only a failed upload on every candidate is.
func (s *Service) UploadAndPin(ctx context.Context, data []byte, name string, opts PinOptions) (*PinOutcome, error) {
	if len(data) == 0 {
		return nil, perrors.NewValidationError("data", "must not be empty", nil)
	}
	if s.opts.MaxFileSize > 0 && int64(len(data)) > s.opts.MaxFileSize {
		return nil, perrors.NewValidationError("data",
			fmt.Sprintf("size %d exceeds limit of %d bytes", len(data), s.opts.MaxFileSize), len(data))
	}

	redundancy := s.redundancy(opts.Redundancy)
	outcome := &PinOutcome{OperationID: uuid.NewString(), Target: redundancy}
	candidates := s.candidates(opts.Providers)
	if len(candidates) == 0 {
		outcome.finalize()
		return outcome, ErrNoProviders
	}

	// Upload is retried on the next provider before any pin is attempted,
	// because pins need the hash the upload produces.
	uploader := -1
	var size int64
	for i, a := range candidates {
		a := a
		r := s.call(ctx, a, OpUpload, func(ctx context.Context) (Success, error) {
			res, err := a.Upload(ctx, data, name, opts.Meta)
			if err != nil {
				return Success{}, err
			}
			return Success{URL: res.URL, RemoteHash: res.Hash, SizeConfirmed: res.Size}, nil
		})
		outcome.Results = append(outcome.Results, r)
		if success, ok := r.Outcome.(Success); ok {
			uploader = i
			outcome.Hash = success.RemoteHash
			size = int64(len(data))
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	if uploader < 0 {
		outcome.finalize()
		return outcome, fmt.Errorf("%w (%d providers tried)", ErrUploadFailed, len(outcome.Results))
	}

	rest := candidates[uploader+1:]
	outcome.Results = append(outcome.Results,
		s.pinAcross(ctx, outcome.Hash, rest, redundancy-1, s.concurrency(redundancy))...)
	outcome.Replicas = s.replicasFrom(outcome.Results, outcome.Hash, size)
	outcome.finalize()

	s.logger.Info("upload and pin finished",
		zap.String("hash", outcome.Hash),
		zap.String("operation_id", outcome.OperationID),
		zap.Int("replicas", outcome.Achieved()),
		zap.Int("target", redundancy),
		zap.Bool("partial", outcome.Partial),
	)
	return outcome, nil
}

// PinExistingHash pins an already-addressed hash on up to Redundancy
// healthy providers. An error is returned only when nothing was pinned.
func (s *Service) PinExistingHash(ctx context.Context, hash string, opts PinOptions) (*PinOutcome, error) {
	if err := ValidateHash(hash); err != nil {
		return nil, err
	}

	redundancy := s.redundancy(opts.Redundancy)
	outcome := &PinOutcome{OperationID: uuid.NewString(), Hash: hash, Target: redundancy}
	candidates := s.candidates(opts.Providers)
	if len(candidates) == 0 {
		outcome.finalize()
		return outcome, ErrNoProviders
	}

	outcome.Results = s.pinAcross(ctx, hash, candidates, redundancy, s.concurrency(redundancy))
	outcome.Replicas = s.replicasFrom(outcome.Results, hash, 0)
	outcome.finalize()

	s.logger.Info("pin existing hash finished",
		zap.String("hash", hash),
		zap.String("operation_id", outcome.OperationID),
		zap.Int("replicas", outcome.Achieved()),
		zap.Int("target", redundancy),
	)
	if outcome.Achieved() == 0 {
		return outcome, ErrNoReplicas
	}
	return outcome, nil
}

// UnpinHash removes the hash from the given providers, or from every
// provider that reports holding it when providers is empty. Providers that
// do not hold the hash count as unpinned.
func (s *Service) UnpinHash(ctx context.Context, hash string, providers []provider.ID) (*UnpinOutcome, error) {
	if err := ValidateHash(hash); err != nil {
		return nil, err
	}

	outcome := &UnpinOutcome{OperationID: uuid.NewString(), Hash: hash}

	var targets []provider.Adapter
	if len(providers) > 0 {
		for _, id := range providers {
			a, ok := s.registry.Get(id)
			if !ok {
				outcome.Results = append(outcome.Results, ProviderResult{
					Provider:  id,
					Op:        OpUnpin,
					Outcome:   Failure{Kind: provider.KindUnknown, Message: "provider not configured"},
					Timestamp: s.now(),
				})
				outcome.Failed = append(outcome.Failed, id)
				continue
			}
			targets = append(targets, a)
		}
	} else {
		targets = s.holders(ctx, hash, s.registry.All())
	}

	results := make([]ProviderResult, len(targets))
	var g errgroup.Group
	g.SetLimit(s.concurrency(len(targets)))
	for i, a := range targets {
		i, a := i, a
		g.Go(func() error {
			results[i] = s.call(ctx, a, OpUnpin, func(ctx context.Context) (Success, error) {
				err := a.Unpin(ctx, hash)
				if provider.IsNotFound(err) {
					err = nil
				}
				return Success{RemoteHash: hash}, err
			})
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		if r.Succeeded() {
			outcome.Unpinned = append(outcome.Unpinned, r.Provider)
		} else {
			outcome.Failed = append(outcome.Failed, r.Provider)
		}
	}
	outcome.Results = append(outcome.Results, results...)
	outcome.Success = len(outcome.Failed) == 0
	return outcome, nil
}

// holders narrows adapters to those that report the hash pinned. A provider
// whose status check fails is kept, so a flaky status endpoint cannot leave
// a stray pin behind.
func (s *Service) holders(ctx context.Context, hash string, adapters []provider.Adapter) []provider.Adapter {
	pinned := make([]bool, len(adapters))
	var g errgroup.Group
	g.SetLimit(s.concurrency(len(adapters)))
	for i, a := range adapters {
		i, a := i, a
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
			defer cancel()
			ok, err := a.IsPinned(callCtx, hash)
			pinned[i] = ok || err != nil
			return nil
		})
	}
	_ = g.Wait()

	var out []provider.Adapter
	for i, a := range adapters {
		if pinned[i] {
			out = append(out, a)
		}
	}
	return out
}

// CheckPinningStatus asks every enabled provider whether it holds hash.
func (s *Service) CheckPinningStatus(ctx context.Context, hash string) (*StatusReport, error) {
	if err := ValidateHash(hash); err != nil {
		return nil, err
	}

	adapters := s.registry.All()
	snap := s.registry.Snapshot()
	results := make([]ProviderResult, len(adapters))
	pinned := make([]bool, len(adapters))

	var g errgroup.Group
	g.SetLimit(s.concurrency(len(adapters)))
	for i, a := range adapters {
		i, a := i, a
		g.Go(func() error {
			results[i] = s.call(ctx, a, OpStatus, func(ctx context.Context) (Success, error) {
				ok, err := a.IsPinned(ctx, hash)
				pinned[i] = ok
				return Success{RemoteHash: hash}, err
			})
			return nil
		})
	}
	_ = g.Wait()

	report := &StatusReport{
		Hash:      hash,
		Providers: make(map[provider.ID]bool, len(adapters)),
		CheckedAt: s.now().UTC(),
	}
	for i, a := range adapters {
		id := a.ID()
		if f, failed := results[i].Outcome.(Failure); failed {
			if report.Errors == nil {
				report.Errors = make(map[provider.ID]string)
			}
			report.Errors[id] = f.Message
			report.Providers[id] = false
			continue
		}
		report.Providers[id] = pinned[i]
		if pinned[i] {
			report.Summary.PinnedCount++
		}
		if snap.Healthy(id) {
			report.Summary.HealthyCount++
		}
	}
	report.Summary.CheckedCount = len(adapters)
	report.Summary.Redundancy = s.opts.DefaultRedundancy
	report.Summary.IsWellPinned = report.Summary.PinnedCount >= s.opts.DefaultRedundancy
	return report, nil
}

// GetStorageUsage collects usage from every enabled provider. A provider
// that fails degrades to an unknown entry.
func (s *Service) GetStorageUsage(ctx context.Context) *UsageReport {
	adapters := s.registry.All()
	entries := make([]ProviderUsage, len(adapters))

	var g errgroup.Group
	g.SetLimit(s.concurrency(len(adapters)))
	for i, a := range adapters {
		i, a := i, a
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
			defer cancel()
			entry := ProviderUsage{Provider: a.ID()}
			u, err := a.Usage(callCtx)
			if err != nil {
				entry.Error = err.Error()
			} else {
				entry.Known = true
				entry.Usage = u
			}
			entries[i] = entry
			return nil
		})
	}
	_ = g.Wait()

	report := &UsageReport{Providers: entries}
	for _, e := range entries {
		if e.Known {
			report.TotalBytes += e.Usage.UsedBytes
			report.TotalPins += e.Usage.PinCount
		}
	}
	return report
}

// GetHealthStatus returns the latest provider health snapshot.
func (s *Service) GetHealthStatus() *HealthStatus {
	providers := s.registry.Health()
	status := &HealthStatus{Providers: providers, TakenAt: s.registry.Snapshot().TakenAt}
	for _, h := range providers {
		status.Summary.Total++
		if !h.Enabled {
			continue
		}
		status.Summary.Enabled++
		switch h.State {
		case registry.StateHealthy:
			status.Summary.Healthy++
		case registry.StateUnhealthy:
			status.Summary.Unhealthy++
		default:
			status.Summary.Unknown++
		}
	}
	sort.SliceStable(status.Providers, func(i, j int) bool {
		return status.Providers[i].Priority < status.Providers[j].Priority
	})
	return status
}
