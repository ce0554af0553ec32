// Package registry holds the configured pinning adapters in priority order
// together with the most recent provider health snapshot.
package registry

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/DeBrosOfficial/pinvault/pkg/provider"
)

// State is a provider's health state.
type State string

const (
	StateUnknown   State = "unknown"
	StateHealthy   State = "healthy"
	StateUnhealthy State = "unhealthy"
)

// Entry registers one adapter. Lower priority is preferred.
type Entry struct {
	Adapter  provider.Adapter
	Priority int
	Enabled  bool
}

// ProviderHealth is the observed health of one provider.
type ProviderHealth struct {
	Provider            provider.ID `json:"provider"`
	Priority            int         `json:"priority"`
	Enabled             bool        `json:"enabled"`
	Healthy             bool        `json:"healthy"`
	State               State       `json:"state"`
	LastCheckedAt       time.Time   `json:"last_checked_at,omitempty"`
	ConsecutiveFailures int         `json:"consecutive_failures"`
	LastError           string      `json:"last_error,omitempty"`
}

// Snapshot is an immutable view of every provider's health. It is replaced
// wholesale, never mutated after publication.
type Snapshot struct {
	TakenAt   time.Time
	providers map[provider.ID]ProviderHealth
}

// NewSnapshot builds a snapshot from per-provider health values.
func NewSnapshot(takenAt time.Time, health []ProviderHealth) *Snapshot {
	m := make(map[provider.ID]ProviderHealth, len(health))
	for _, h := range health {
		m[h.Provider] = h
	}
	return &Snapshot{TakenAt: takenAt, providers: m}
}

// Get returns the health of one provider.
func (s *Snapshot) Get(id provider.ID) (ProviderHealth, bool) {
	h, ok := s.providers[id]
	return h, ok
}

// All returns every provider in the snapshot ordered by id.
func (s *Snapshot) All() []ProviderHealth {
	out := make([]ProviderHealth, 0, len(s.providers))
	for _, h := range s.providers {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// Healthy reports whether id may be offered for new pins. Providers that
// have never been probed are eligible.
func (s *Snapshot) Healthy(id provider.ID) bool {
	h, ok := s.providers[id]
	if !ok {
		return true
	}
	return h.Enabled && h.State != StateUnhealthy
}

// Registry is read-only after construction except for the health snapshot.
type Registry struct {
	entries  []Entry
	snapshot atomic.Pointer[Snapshot]
}

// New sorts entries by ascending priority, ties broken by provider id.
func New(entries ...Entry) *Registry {
	sorted := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Adapter != nil {
			sorted = append(sorted, e)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority < sorted[j].Priority
		}
		return sorted[i].Adapter.ID() < sorted[j].Adapter.ID()
	})

	r := &Registry{entries: sorted}
	initial := make([]ProviderHealth, 0, len(sorted))
	for _, e := range sorted {
		initial = append(initial, ProviderHealth{
			Provider: e.Adapter.ID(),
			Priority: e.Priority,
			Enabled:  e.Enabled,
			Healthy:  e.Enabled,
			State:    StateUnknown,
		})
	}
	r.snapshot.Store(NewSnapshot(time.Time{}, initial))
	return r
}

// All returns every enabled adapter in priority order regardless of health.
func (r *Registry) All() []provider.Adapter {
	out := make([]provider.Adapter, 0, len(r.entries))
	for _, e := range r.entries {
		if e.Enabled {
			out = append(out, e.Adapter)
		}
	}
	return out
}

// EnabledHealthy returns enabled adapters the latest snapshot considers healthy.
func (r *Registry) EnabledHealthy() []provider.Adapter {
	snap := r.Snapshot()
	out := make([]provider.Adapter, 0, len(r.entries))
	for _, e := range r.entries {
		if e.Enabled && snap.Healthy(e.Adapter.ID()) {
			out = append(out, e.Adapter)
		}
	}
	return out
}

// Entries returns every registered entry, enabled or not, in priority order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Get looks up an adapter by id.
func (r *Registry) Get(id provider.ID) (provider.Adapter, bool) {
	for _, e := range r.entries {
		if e.Adapter.ID() == id {
			return e.Adapter, true
		}
	}
	return nil, false
}

// Snapshot returns the current health snapshot.
func (r *Registry) Snapshot() *Snapshot {
	return r.snapshot.Load()
}

// Publish atomically replaces the health snapshot.
func (r *Registry) Publish(s *Snapshot) {
	r.snapshot.Store(s)
}

// MarkUnhealthy publishes a copy of the current snapshot with id set
// unhealthy. It retries if another snapshot was published concurrently and
// reports whether the provider was newly marked.
func (r *Registry) MarkUnhealthy(id provider.ID, reason string, at time.Time) bool {
	for {
		prev := r.snapshot.Load()
		h, ok := prev.providers[id]
		if !ok {
			return false
		}
		if h.State == StateUnhealthy {
			return false
		}

		next := make(map[provider.ID]ProviderHealth, len(prev.providers))
		for k, v := range prev.providers {
			next[k] = v
		}
		h.State = StateUnhealthy
		h.Healthy = false
		h.ConsecutiveFailures++
		h.LastError = reason
		h.LastCheckedAt = at
		next[id] = h

		if r.snapshot.CompareAndSwap(prev, &Snapshot{TakenAt: at, providers: next}) {
			return true
		}
	}
}

// Health lists the current snapshot in priority order.
func (r *Registry) Health() []ProviderHealth {
	snap := r.Snapshot()
	out := make([]ProviderHealth, 0, len(r.entries))
	for _, e := range r.entries {
		if h, ok := snap.Get(e.Adapter.ID()); ok {
			out = append(out, h)
		}
	}
	return out
}
