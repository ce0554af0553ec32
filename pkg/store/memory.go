// Package store holds reference implementations of the content
// collaborator's pinning record persistence.
package store

import (
	"context"
	"sort"
	"sync"

	perrors "github.com/DeBrosOfficial/pinvault/pkg/errors"
	"github.com/DeBrosOfficial/pinvault/pkg/pinning"
)

const resourceRecord = "pinning record"

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*pinning.Record
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*pinning.Record)}
}

// Persist stores a copy of rec under contentID.
func (s *MemoryStore) Persist(_ context.Context, contentID string, rec *pinning.Record) error {
	if contentID == "" {
		return perrors.NewValidationError("content_id", "must not be empty", contentID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[contentID] = rec.Clone()
	return nil
}

// Load returns a copy of the record for contentID.
func (s *MemoryStore) Load(_ context.Context, contentID string) (*pinning.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[contentID]
	if !ok {
		return nil, perrors.NewNotFoundError(resourceRecord, contentID)
	}
	return rec.Clone(), nil
}

// ListContentIDs returns every stored content id in lexical order.
func (s *MemoryStore) ListContentIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
