package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	perrors "github.com/DeBrosOfficial/pinvault/pkg/errors"
	"github.com/DeBrosOfficial/pinvault/pkg/pinning"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordStore interface {
	Persist(ctx context.Context, contentID string, rec *pinning.Record) error
	Load(ctx context.Context, contentID string) (*pinning.Record, error)
	ListContentIDs(ctx context.Context) ([]string, error)
}

func sampleRecord() *pinning.Record {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &pinning.Record{
		ContentID:        "c1",
		PrimaryHash:      "bafkreihdwdcefgh4dqkjv67uzcmw7ojee6xedzdetojuzjevtenxquvyku",
		RedundancyTarget: 2,
		PinnedAt:         now,
		Replicas: []pinning.Replica{
			{Provider: "pinata", Hash: "bafkreihdwdcefgh4dqkjv67uzcmw7ojee6xedzdetojuzjevtenxquvyku", PinnedAt: now, Size: 5},
		},
	}
}

func exerciseStore(t *testing.T, s recordStore) {
	ctx := context.Background()

	_, err := s.Load(ctx, "missing")
	assert.True(t, perrors.IsNotFound(err))

	rec := sampleRecord()
	require.NoError(t, s.Persist(ctx, "c1", rec))

	got, err := s.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, rec.PrimaryHash, got.PrimaryHash)
	require.Len(t, got.Replicas, 1)
	assert.True(t, got.PinnedAt.Equal(rec.PinnedAt))

	closedAt := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	got.UnpinnedAt = &closedAt
	require.NoError(t, s.Persist(ctx, "c1", got))
	require.NoError(t, s.Persist(ctx, "c0", sampleRecord()))

	again, err := s.Load(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, again.Closed())

	ids, err := s.ListContentIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c0", "c1"}, ids)

	assert.True(t, perrors.IsValidation(s.Persist(ctx, "", rec)))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	rec := sampleRecord()
	require.NoError(t, s.Persist(ctx, "c1", rec))

	rec.Replicas = nil
	got, err := s.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, got.Replicas, 1)
}

func TestSQLStoreSQLite(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "pins.db")
	s, err := Open(context.Background(), DriverSQLite, dsn, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	exerciseStore(t, s)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "postgres", "x", nil)
	assert.True(t, perrors.IsValidation(err))
}
