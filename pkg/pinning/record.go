package pinning

import (
	"time"

	"github.com/DeBrosOfficial/pinvault/pkg/provider"
)

// Replica is one provider's confirmed pin of a hash.
type Replica struct {
	Provider provider.ID `json:"provider"`
	Hash     string      `json:"hash"`
	URL      string      `json:"url,omitempty"`
	PinnedAt time.Time   `json:"pinned_at"`
	Size     int64       `json:"size,omitempty"`
}

// Record is the durable pinning state attached to a content item.
// Replicas holds at most one entry per provider.
type Record struct {
	ContentID        string     `json:"content_id"`
	PrimaryHash      string     `json:"primary_hash"`
	Replicas         []Replica  `json:"replicas"`
	RedundancyTarget int        `json:"redundancy_target"`
	PinnedAt         time.Time  `json:"pinned_at"`
	UnpinnedAt       *time.Time `json:"unpinned_at,omitempty"`
	LastRepairAt     *time.Time `json:"last_repair_at,omitempty"`
}

// Closed reports whether the record was unpinned. Closed records are kept
// for audit but no longer acted on.
func (r *Record) Closed() bool {
	return r.UnpinnedAt != nil
}

// Observed is the current observed redundancy.
func (r *Record) Observed() int {
	return len(r.Replicas)
}

// UnderReplicated reports whether an open record is below its target.
func (r *Record) UnderReplicated() bool {
	return !r.Closed() && len(r.Replicas) < r.RedundancyTarget
}

// HasReplica reports whether id holds a replica.
func (r *Record) HasReplica(id provider.ID) bool {
	for _, rep := range r.Replicas {
		if rep.Provider == id {
			return true
		}
	}
	return false
}

// Providers lists the providers holding replicas.
func (r *Record) Providers() []provider.ID {
	out := make([]provider.ID, 0, len(r.Replicas))
	for _, rep := range r.Replicas {
		out = append(out, rep.Provider)
	}
	return out
}

// UpsertReplica adds rep or replaces the existing replica from the same provider.
func (r *Record) UpsertReplica(rep Replica) {
	for i := range r.Replicas {
		if r.Replicas[i].Provider == rep.Provider {
			r.Replicas[i] = rep
			return
		}
	}
	r.Replicas = append(r.Replicas, rep)
}

// RemoveReplica drops the replica held by id, if any.
func (r *Record) RemoveReplica(id provider.ID) bool {
	for i := range r.Replicas {
		if r.Replicas[i].Provider == id {
			r.Replicas = append(r.Replicas[:i], r.Replicas[i+1:]...)
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	c := *r
	c.Replicas = append([]Replica(nil), r.Replicas...)
	if r.UnpinnedAt != nil {
		t := *r.UnpinnedAt
		c.UnpinnedAt = &t
	}
	if r.LastRepairAt != nil {
		t := *r.LastRepairAt
		c.LastRepairAt = &t
	}
	return &c
}
