package pinning

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/DeBrosOfficial/pinvault/pkg/provider"
	"github.com/DeBrosOfficial/pinvault/pkg/registry"
)

// PinTarget identifies what must be replicated and to what degree.
type PinTarget struct {
	Hash       string `json:"hash"`
	Size       int64  `json:"size"`
	Redundancy int    `json:"redundancy"`
}

// Outcome is either Success or Failure.
type Outcome interface {
	isOutcome()
}

// Success is a provider call that completed.
type Success struct {
	URL           string `json:"url,omitempty"`
	RemoteHash    string `json:"remote_hash,omitempty"`
	SizeConfirmed int64  `json:"size_confirmed,omitempty"`
}

// Failure is a provider call that did not complete.
type Failure struct {
	Kind      provider.Kind `json:"kind"`
	Message   string        `json:"message"`
	Retryable bool          `json:"retryable"`
}

func (Success) isOutcome() {}
func (Failure) isOutcome() {}

// ProviderResult records one adapter invocation. It is never mutated after creation.
type ProviderResult struct {
	Provider  provider.ID
	Op        string
	Outcome   Outcome
	Latency   time.Duration
	Timestamp time.Time
}

// Succeeded reports whether the outcome is a Success.
func (r ProviderResult) Succeeded() bool {
	_, ok := r.Outcome.(Success)
	return ok
}

// MarshalJSON flattens the outcome into a tagged object.
func (r ProviderResult) MarshalJSON() ([]byte, error) {
	out := struct {
		Provider  provider.ID `json:"provider"`
		Op        string      `json:"op"`
		Success   bool        `json:"success"`
		Result    *Success    `json:"result,omitempty"`
		Error     *Failure    `json:"error,omitempty"`
		LatencyMs int64       `json:"latency_ms"`
		Timestamp time.Time   `json:"timestamp"`
	}{
		Provider:  r.Provider,
		Op:        r.Op,
		LatencyMs: r.Latency.Milliseconds(),
		Timestamp: r.Timestamp,
	}
	switch o := r.Outcome.(type) {
	case Success:
		out.Success = true
		out.Result = &o
	case Failure:
		out.Error = &o
	}
	return json.Marshal(out)
}

// PinOutcome is the synthesized result of an upload or pin across providers.
type PinOutcome struct {
	OperationID     string           `json:"operation_id"`
	Hash            string           `json:"hash"`
	Target          int              `json:"target"`
	Replicas        []Replica        `json:"replicas"`
	Results         []ProviderResult `json:"results"`
	Partial         bool             `json:"partial"`
	NeededForTarget int              `json:"needed_for_target"`
	Reason          string           `json:"reason,omitempty"`
}

// Achieved is the number of replicas confirmed by this operation.
func (o *PinOutcome) Achieved() int { return len(o.Replicas) }

func (o *PinOutcome) finalize() {
	o.NeededForTarget = o.Target - len(o.Replicas)
	if o.NeededForTarget < 0 {
		o.NeededForTarget = 0
	}
	o.Partial = o.NeededForTarget > 0
	if o.Partial {
		o.Reason = fmt.Sprintf("pinned to %d of %d target providers", len(o.Replicas), o.Target)
	}
}

// UnpinOutcome aggregates unpin calls across providers.
type UnpinOutcome struct {
	OperationID string           `json:"operation_id"`
	Hash        string           `json:"hash"`
	Unpinned    []provider.ID    `json:"unpinned"`
	Failed      []provider.ID    `json:"failed"`
	Results     []ProviderResult `json:"results"`
	Success     bool             `json:"success"`
}

// StatusSummary condenses a StatusReport.
type StatusSummary struct {
	PinnedCount  int  `json:"pinned_count"`
	HealthyCount int  `json:"healthy_count"`
	CheckedCount int  `json:"checked_count"`
	Redundancy   int  `json:"redundancy"`
	IsWellPinned bool `json:"is_well_pinned"`
}

// StatusReport is the per-provider pin state of a hash.
type StatusReport struct {
	Hash      string                 `json:"hash"`
	Providers map[provider.ID]bool   `json:"providers"`
	Errors    map[provider.ID]string `json:"errors,omitempty"`
	Summary   StatusSummary          `json:"summary"`
	CheckedAt time.Time              `json:"checked_at"`
}

// PinnedOn lists providers that reported the hash as pinned.
func (r *StatusReport) PinnedOn() []provider.ID {
	var out []provider.ID
	for id, ok := range r.Providers {
		if ok {
			out = append(out, id)
		}
	}
	return out
}

// ProviderUsage is one provider's entry in a UsageReport. Known is false
// when the provider failed or does not report usage.
type ProviderUsage struct {
	Provider provider.ID     `json:"provider"`
	Known    bool            `json:"known"`
	Usage    *provider.Usage `json:"usage,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// UsageReport aggregates storage usage across providers.
type UsageReport struct {
	Providers  []ProviderUsage `json:"providers"`
	TotalBytes int64           `json:"total_bytes"`
	TotalPins  int64           `json:"total_pins"`
}

// HealthSummary counts providers by state.
type HealthSummary struct {
	Total     int `json:"total"`
	Enabled   int `json:"enabled"`
	Healthy   int `json:"healthy"`
	Unhealthy int `json:"unhealthy"`
	Unknown   int `json:"unknown"`
}

// HealthStatus is the latest provider health snapshot.
type HealthStatus struct {
	Providers []registry.ProviderHealth `json:"providers"`
	Summary   HealthSummary             `json:"summary"`
	TakenAt   time.Time                 `json:"taken_at"`
}
