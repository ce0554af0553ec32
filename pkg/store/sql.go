package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	perrors "github.com/DeBrosOfficial/pinvault/pkg/errors"
	"github.com/DeBrosOfficial/pinvault/pkg/pinning"
	"go.uber.org/zap"

	_ "github.com/mattn/go-sqlite3"        // "sqlite3" database/sql driver
	_ "github.com/rqlite/gorqlite/stdlib" // "rqlite" database/sql driver
)

// Supported database/sql drivers.
const (
	DriverSQLite = "sqlite3"
	DriverRQLite = "rqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS pinning_records (
	content_id   TEXT PRIMARY KEY,
	primary_hash TEXT NOT NULL,
	closed       INTEGER NOT NULL DEFAULT 0,
	record       TEXT NOT NULL,
	updated_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// SQLStore persists records as JSON documents in a single table. It works
// on a local SQLite file or on an rqlite cluster.
type SQLStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open connects to driver/dsn and ensures the schema exists.
func Open(ctx context.Context, driver, dsn string, logger *zap.Logger) (*SQLStore, error) {
	switch driver {
	case DriverSQLite, DriverRQLite:
	default:
		return nil, perrors.NewValidationError("store.driver", fmt.Sprintf("unsupported driver %q", driver), driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", driver, err)
	}
	if driver == DriverSQLite {
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
	}
	s, err := NewSQLStore(ctx, db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an existing handle and ensures the schema exists.
func NewSQLStore(ctx context.Context, db *sql.DB, logger *zap.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("create pinning_records table: %w", err)
	}
	return &SQLStore{db: db, logger: logger}, nil
}

// Close releases the database handle.
func (s *SQLStore) Close() error { return s.db.Close() }

// Persist upserts rec; the last writer wins.
func (s *SQLStore) Persist(ctx context.Context, contentID string, rec *pinning.Record) error {
	if contentID == "" {
		return perrors.NewValidationError("content_id", "must not be empty", contentID)
	}
	doc, err := json.Marshal(rec)
	if err != nil {
		return perrors.Wrap(err, "encode pinning record")
	}
	closed := 0
	if rec.Closed() {
		closed = 1
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO pinning_records (content_id, primary_hash, closed, record, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(content_id) DO UPDATE SET
	primary_hash = excluded.primary_hash,
	closed       = excluded.closed,
	record       = excluded.record,
	updated_at   = excluded.updated_at`,
		contentID, rec.PrimaryHash, closed, string(doc), time.Now().UTC())
	if err != nil {
		return perrors.NewCodedError(perrors.CodeStorageError, fmt.Sprintf("persist pinning record %s: %v", contentID, err))
	}
	s.logger.Debug("pinning record persisted",
		zap.String("content_id", contentID),
		zap.Int("replicas", len(rec.Replicas)),
		zap.Bool("closed", closed == 1),
	)
	return nil
}

// Load reads the record for contentID.
func (s *SQLStore) Load(ctx context.Context, contentID string) (*pinning.Record, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM pinning_records WHERE content_id = ?`, contentID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, perrors.NewNotFoundError(resourceRecord, contentID)
	}
	if err != nil {
		return nil, perrors.NewCodedError(perrors.CodeStorageError, fmt.Sprintf("load pinning record %s: %v", contentID, err))
	}

	var rec pinning.Record
	if err := json.Unmarshal([]byte(doc), &rec); err != nil {
		return nil, perrors.Wrapf(err, "decode pinning record %s", contentID)
	}
	return &rec, nil
}

// ListContentIDs returns every stored content id, closed records included.
func (s *SQLStore) ListContentIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT content_id FROM pinning_records ORDER BY content_id`)
	if err != nil {
		return nil, perrors.NewCodedError(perrors.CodeStorageError, fmt.Sprintf("list pinning records: %v", err))
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, perrors.Wrap(err, "scan content id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
