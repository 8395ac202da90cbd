// Package localstore provides the on-device persistent store backing the
// sync engine.
//
// The store is an embedded SQLite database (WAL mode for concurrent readers
// during writer sections) holding three kinds of state:
//
//   - records: every synchronized entity, keyed by (entity_type, id)
//   - change_queue: pending local mutations awaiting upload
//   - sync_cursors: per-entity-type reconciliation bookkeeping
//
// The change queue and cursors are owned exclusively by the engine and
// survive process restarts; everything else about sync state is ephemeral
// and rebuilt on startup.
package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/quickserve/possync/internal/entity"
)

// DB wraps the SQLite connection with store-specific functionality.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates a database connection at the specified path.
//
// The database is opened in WAL mode so UI reads are never blocked by sync
// writes. If the database doesn't exist it is created; call InitSchema
// before first use. The caller MUST call Close when done.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn, path: path}

	// WAL keeps readers live while the engine writes.
	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// Path returns the database file location.
func (db *DB) Path() string {
	return db.path
}

// InitSchema creates the database schema if it doesn't exist.
// Idempotent - safe to call multiple times.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		entity_type TEXT NOT NULL,
		id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		created_at TEXT NOT NULL,
		last_modified TEXT NOT NULL,
		deleted INTEGER NOT NULL DEFAULT 0,
		payload TEXT,  -- JSON object
		PRIMARY KEY (entity_type, id)
	);

	CREATE INDEX IF NOT EXISTS idx_records_tenant ON records(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_records_modified ON records(entity_type, last_modified);

	CREATE TABLE IF NOT EXISTS change_queue (
		id TEXT PRIMARY KEY,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		op TEXT NOT NULL,
		record TEXT,  -- JSON envelope, NULL for deletes
		ts TEXT NOT NULL,
		retry_count INTEGER NOT NULL DEFAULT 0,
		enqueued_at TEXT NOT NULL,
		next_attempt_at TEXT NOT NULL,
		last_error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_queue_fifo ON change_queue(entity_type, enqueued_at);

	CREATE TABLE IF NOT EXISTS sync_cursors (
		entity_type TEXT PRIMARY KEY,
		last_full_sync_at TEXT NOT NULL DEFAULT '',
		listener_active INTEGER NOT NULL DEFAULT 0
	);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// ===== Record CRUD =====

// Get returns the record with the given type and id, or nil if absent.
func (db *DB) Get(ctx context.Context, t entity.Type, id string) (*entity.Record, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, tenant_id, created_at, last_modified, deleted, payload
		FROM records WHERE entity_type = ? AND id = ?`, string(t), id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", t, id, err)
	}
	return rec, nil
}

// GetAll returns every record of the given type, tombstones included.
func (db *DB) GetAll(ctx context.Context, t entity.Type) ([]*entity.Record, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, tenant_id, created_at, last_modified, deleted, payload
		FROM records WHERE entity_type = ? ORDER BY id`, string(t))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", t, err)
	}
	defer rows.Close()

	var recs []*entity.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s record: %w", t, err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Upsert inserts or replaces a record.
func (db *DB) Upsert(ctx context.Context, t entity.Type, rec *entity.Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("cannot store invalid record: %w", err)
	}

	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for %s/%s: %w", t, rec.ID, err)
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO records (entity_type, id, tenant_id, created_at, last_modified, deleted, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_type, id) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			last_modified = excluded.last_modified,
			deleted = excluded.deleted,
			payload = excluded.payload`,
		string(t), rec.ID, rec.TenantID,
		encodeTime(rec.CreatedAt), encodeTime(rec.LastModified),
		boolToInt(rec.Deleted), string(payload))
	if err != nil {
		return fmt.Errorf("failed to upsert %s/%s: %w", t, rec.ID, err)
	}
	return nil
}

// Delete removes a record outright. Idempotent - deleting an absent record
// is not an error. Tombstone-style deletion is an Upsert with Deleted set;
// this is the hard-removal path used by maintenance sweeps.
func (db *DB) Delete(ctx context.Context, t entity.Type, id string) error {
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM records WHERE entity_type = ? AND id = ?`, string(t), id); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", t, id, err)
	}
	return nil
}

// DeleteBatch removes a set of records of one type in a single transaction.
func (db *DB) DeleteBatch(ctx context.Context, t entity.Type, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin batch delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`DELETE FROM records WHERE entity_type = ? AND id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch delete: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, string(t), id); err != nil {
			return fmt.Errorf("failed to delete %s/%s: %w", t, id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch delete: %w", err)
	}
	return nil
}

// CountRecords returns the number of live (non-tombstone) records of a type.
func (db *DB) CountRecords(ctx context.Context, t entity.Type) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE entity_type = ? AND deleted = 0`,
		string(t)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", t, err)
	}
	return n, nil
}

// ===== Change queue =====

// AppendChange adds a pending mutation to the tail of the queue.
func (db *DB) AppendChange(ctx context.Context, c *entity.ChangeRecord) error {
	var recJSON any
	if c.Record != nil {
		data, err := json.Marshal(c.Record)
		if err != nil {
			return fmt.Errorf("failed to marshal change record: %w", err)
		}
		recJSON = string(data)
	}

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO change_queue
			(id, entity_type, entity_id, op, record, ts, retry_count, enqueued_at, next_attempt_at, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, string(c.EntityType), c.EntityID, string(c.Op), recJSON,
		encodeTime(c.Timestamp), c.RetryCount,
		encodeTime(c.EnqueuedAt), encodeTime(c.NextAttemptAt), c.LastError)
	if err != nil {
		return fmt.Errorf("failed to append change %s: %w", c.ID, err)
	}
	return nil
}

// PendingChanges returns queued changes across all entity types
// oldest-first, up to limit. Diagnostic surface; the uploader drains lanes
// through PendingChangesByType instead so one backlogged type cannot crowd
// the others out of a bounded window.
func (db *DB) PendingChanges(ctx context.Context, limit int) ([]*entity.ChangeRecord, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, entity_type, entity_id, op, record, ts, retry_count, enqueued_at, next_attempt_at, last_error
		FROM change_queue ORDER BY enqueued_at, rowid LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query change queue: %w", err)
	}
	return scanChanges(rows)
}

// PendingChangesByType returns one entity type's queued changes
// oldest-first, up to limit.
//
// All of the lane's pending changes are returned regardless of their
// next_attempt_at; the uploader enforces backoff eligibility so that a
// waiting head still blocks later changes in the lane (FIFO per type is a
// hard guarantee). Insertion rowid breaks enqueued_at ties, so two changes
// stamped within one clock granule keep their append order.
func (db *DB) PendingChangesByType(ctx context.Context, t entity.Type, limit int) ([]*entity.ChangeRecord, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, entity_type, entity_id, op, record, ts, retry_count, enqueued_at, next_attempt_at, last_error
		FROM change_queue WHERE entity_type = ? ORDER BY enqueued_at, rowid LIMIT ?`, string(t), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s change queue: %w", t, err)
	}
	return scanChanges(rows)
}

func scanChanges(rows *sql.Rows) ([]*entity.ChangeRecord, error) {
	defer rows.Close()

	var changes []*entity.ChangeRecord
	for rows.Next() {
		var (
			c       entity.ChangeRecord
			et, op  string
			recJSON sql.NullString
			ts, eq  string
			na      string
		)
		if err := rows.Scan(&c.ID, &et, &c.EntityID, &op, &recJSON,
			&ts, &c.RetryCount, &eq, &na, &c.LastError); err != nil {
			return nil, fmt.Errorf("failed to scan change: %w", err)
		}
		c.EntityType = entity.Type(et)
		c.Op = entity.Op(op)
		if recJSON.Valid && recJSON.String != "" {
			var rec entity.Record
			if err := json.Unmarshal([]byte(recJSON.String), &rec); err != nil {
				return nil, fmt.Errorf("failed to decode change %s record: %w", c.ID, err)
			}
			c.Record = &rec
		}
		var err error
		if c.Timestamp, err = decodeTime(ts); err != nil {
			return nil, err
		}
		if c.EnqueuedAt, err = decodeTime(eq); err != nil {
			return nil, err
		}
		if c.NextAttemptAt, err = decodeTime(na); err != nil {
			return nil, err
		}
		changes = append(changes, &c)
	}
	return changes, rows.Err()
}

// MarkChangeRetry records a failed upload attempt: bumps the retry count
// and reschedules the next attempt.
func (db *DB) MarkChangeRetry(ctx context.Context, id string, retryCount int, nextAttempt time.Time, lastError string) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE change_queue SET retry_count = ?, next_attempt_at = ?, last_error = ?
		WHERE id = ?`, retryCount, encodeTime(nextAttempt), lastError, id)
	if err != nil {
		return fmt.Errorf("failed to mark change %s for retry: %w", id, err)
	}
	return nil
}

// RemoveChange deletes an acknowledged change from the queue. Idempotent.
func (db *DB) RemoveChange(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM change_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove change %s: %w", id, err)
	}
	return nil
}

// QueueDepth returns the number of pending changes.
func (db *DB) QueueDepth(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM change_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count change queue: %w", err)
	}
	return n, nil
}

// ===== Sync cursors =====

// Cursor returns the cursor for an entity type. A type that has never been
// reconciled gets a zero-valued cursor, not an error.
func (db *DB) Cursor(ctx context.Context, t entity.Type) (*entity.SyncCursor, error) {
	var (
		lastSync string
		active   int
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT last_full_sync_at, listener_active
		FROM sync_cursors WHERE entity_type = ?`, string(t)).Scan(&lastSync, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return &entity.SyncCursor{EntityType: t}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cursor for %s: %w", t, err)
	}

	c := &entity.SyncCursor{EntityType: t, ListenerActive: active != 0}
	if lastSync != "" {
		if c.LastFullSyncAt, err = decodeTime(lastSync); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// PutCursor inserts or replaces a cursor.
func (db *DB) PutCursor(ctx context.Context, c *entity.SyncCursor) error {
	lastSync := ""
	if !c.LastFullSyncAt.IsZero() {
		lastSync = encodeTime(c.LastFullSyncAt)
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO sync_cursors (entity_type, last_full_sync_at, listener_active)
		VALUES (?, ?, ?)
		ON CONFLICT(entity_type) DO UPDATE SET
			last_full_sync_at = excluded.last_full_sync_at,
			listener_active = excluded.listener_active`,
		string(c.EntityType), lastSync, boolToInt(c.ListenerActive))
	if err != nil {
		return fmt.Errorf("failed to put cursor for %s: %w", c.EntityType, err)
	}
	return nil
}

// SetListenerActive flags whether the remote subscription for a type is live.
func (db *DB) SetListenerActive(ctx context.Context, t entity.Type, active bool) error {
	c, err := db.Cursor(ctx, t)
	if err != nil {
		return err
	}
	c.ListenerActive = active
	return db.PutCursor(ctx, c)
}

// ===== helpers =====

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*entity.Record, error) {
	var (
		rec      entity.Record
		created  string
		modified string
		deleted  int
		payload  sql.NullString
	)
	if err := row.Scan(&rec.ID, &rec.TenantID, &created, &modified, &deleted, &payload); err != nil {
		return nil, err
	}

	var err error
	if rec.CreatedAt, err = decodeTime(created); err != nil {
		return nil, err
	}
	if rec.LastModified, err = decodeTime(modified); err != nil {
		return nil, err
	}
	rec.Deleted = deleted != 0

	if payload.Valid && payload.String != "" {
		if err := json.Unmarshal([]byte(payload.String), &rec.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode payload for %s: %w", rec.ID, err)
		}
	}
	return &rec, nil
}

func encodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse stored timestamp %q: %w", s, err)
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
