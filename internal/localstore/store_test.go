package localstore

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/quickserve/possync/internal/entity"
)

// testDB opens a fresh store under a temp dir with schema applied.
func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "pos.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return db
}

func testRecord(id string, modified time.Time) *entity.Record {
	return &entity.Record{
		ID:           id,
		TenantID:     "cafe@example.com",
		CreatedAt:    modified.Add(-time.Minute),
		LastModified: modified,
		Payload:      entity.Payload{"status": "open", "total_amount": 25.43},
	}
}

// TestInitSchema_Idempotent tests that schema creation is repeatable.
func TestInitSchema_Idempotent(t *testing.T) {
	db := testDB(t)
	if err := db.InitSchema(); err != nil {
		t.Errorf("second InitSchema() failed: %v", err)
	}
}

// TestUpsertGet_RoundTrip tests that a stored record reads back unchanged.
func TestUpsertGet_RoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rec := testRecord("ord-1", now)
	if err := db.Upsert(ctx, entity.TypeOrder, rec); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	got, err := db.Get(ctx, entity.TypeOrder, "ord-1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got == nil {
		t.Fatal("Get() returned nil for stored record")
	}
	if got.ID != rec.ID || got.TenantID != rec.TenantID {
		t.Errorf("identity mismatch: got %s/%s", got.ID, got.TenantID)
	}
	if !got.LastModified.Equal(rec.LastModified) {
		t.Errorf("LastModified = %v, want %v", got.LastModified, rec.LastModified)
	}
	if got.Payload.Number("total_amount") != 25.43 {
		t.Errorf("payload total_amount = %v", got.Payload.Number("total_amount"))
	}
}

// TestGet_Missing tests that an absent record returns nil without error.
func TestGet_Missing(t *testing.T) {
	db := testDB(t)

	got, err := db.Get(context.Background(), entity.TypeOrder, "nope")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got != nil {
		t.Errorf("Get() = %+v, want nil", got)
	}
}

// TestUpsert_Replaces tests last-write replacement of an existing row.
func TestUpsert_Replaces(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := db.Upsert(ctx, entity.TypeOrder, testRecord("ord-1", now)); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	newer := testRecord("ord-1", now.Add(time.Second))
	newer.Payload["total_amount"] = 50.0
	newer.Deleted = true
	if err := db.Upsert(ctx, entity.TypeOrder, newer); err != nil {
		t.Fatalf("second Upsert() failed: %v", err)
	}

	got, err := db.Get(ctx, entity.TypeOrder, "ord-1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Payload.Number("total_amount") != 50.0 {
		t.Errorf("total_amount = %v, want 50.0", got.Payload.Number("total_amount"))
	}
	if !got.Deleted {
		t.Error("tombstone flag not persisted")
	}
}

// TestDeleteBatch tests transactional multi-row deletion.
func TestDeleteBatch(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	var ids []string
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("ord-%d", i)
		ids = append(ids, id)
		if err := db.Upsert(ctx, entity.TypeOrder, testRecord(id, now)); err != nil {
			t.Fatalf("Upsert() failed: %v", err)
		}
	}

	if err := db.DeleteBatch(ctx, entity.TypeOrder, ids[:3]); err != nil {
		t.Fatalf("DeleteBatch() failed: %v", err)
	}

	n, err := db.CountRecords(ctx, entity.TypeOrder)
	if err != nil {
		t.Fatalf("CountRecords() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("CountRecords() = %d, want 2", n)
	}
}

// TestChangeQueue_FIFO tests that pending changes come back oldest-first.
func TestChangeQueue_FIFO(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 3; i++ {
		c := &entity.ChangeRecord{
			ID:            fmt.Sprintf("chg-%d", i),
			EntityType:    entity.TypeOrder,
			EntityID:      "ord-1",
			Op:            entity.OpUpsert,
			Record:        testRecord("ord-1", base.Add(time.Duration(i)*time.Second)),
			Timestamp:     base.Add(time.Duration(i) * time.Second),
			EnqueuedAt:    base.Add(time.Duration(i) * time.Second),
			NextAttemptAt: base,
		}
		if err := db.AppendChange(ctx, c); err != nil {
			t.Fatalf("AppendChange() failed: %v", err)
		}
	}

	changes, err := db.PendingChanges(ctx, 100)
	if err != nil {
		t.Fatalf("PendingChanges() failed: %v", err)
	}
	if len(changes) != 3 {
		t.Fatalf("PendingChanges() returned %d changes, want 3", len(changes))
	}
	for i, c := range changes {
		want := fmt.Sprintf("chg-%d", i)
		if c.ID != want {
			t.Errorf("changes[%d].ID = %s, want %s", i, c.ID, want)
		}
	}
}

// TestChangeQueue_SameTimestampKeepsAppendOrder tests that changes stamped
// within one clock granule drain in the order they were appended. The ids
// sort against insertion order on purpose, so an id tie-break would fail.
func TestChangeQueue_SameTimestampKeepsAppendOrder(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	ids := []string{"zzz-first", "mmm-second", "aaa-third"}
	for _, id := range ids {
		c := &entity.ChangeRecord{
			ID:            id,
			EntityType:    entity.TypeOrder,
			EntityID:      "ord-1",
			Op:            entity.OpUpsert,
			Record:        testRecord("ord-1", now),
			Timestamp:     now,
			EnqueuedAt:    now,
			NextAttemptAt: now,
		}
		if err := db.AppendChange(ctx, c); err != nil {
			t.Fatalf("AppendChange(%s) failed: %v", id, err)
		}
	}

	changes, err := db.PendingChangesByType(ctx, entity.TypeOrder, 10)
	if err != nil {
		t.Fatalf("PendingChangesByType() failed: %v", err)
	}
	if len(changes) != 3 {
		t.Fatalf("PendingChangesByType() returned %d changes, want 3", len(changes))
	}
	for i, c := range changes {
		if c.ID != ids[i] {
			t.Errorf("changes[%d].ID = %s, want %s", i, c.ID, ids[i])
		}
	}
}

// TestChangeQueue_ByTypeFiltersLanes tests that per-type loading returns
// only the requested lane even when another lane fills the window.
func TestChangeQueue_ByTypeFiltersLanes(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		c := &entity.ChangeRecord{
			ID:            fmt.Sprintf("chg-order-%d", i),
			EntityType:    entity.TypeOrder,
			EntityID:      fmt.Sprintf("ord-%d", i),
			Op:            entity.OpDelete,
			Timestamp:     now,
			EnqueuedAt:    now.Add(time.Duration(i) * time.Millisecond),
			NextAttemptAt: now,
		}
		if err := db.AppendChange(ctx, c); err != nil {
			t.Fatalf("AppendChange() failed: %v", err)
		}
	}
	menu := &entity.ChangeRecord{
		ID:            "chg-menu",
		EntityType:    entity.TypeMenuItem,
		EntityID:      "itm-1",
		Op:            entity.OpUpsert,
		Record:        testRecord("itm-1", now),
		Timestamp:     now,
		EnqueuedAt:    now.Add(time.Second),
		NextAttemptAt: now,
	}
	if err := db.AppendChange(ctx, menu); err != nil {
		t.Fatalf("AppendChange() failed: %v", err)
	}

	// A window smaller than the order backlog still reaches the menu lane.
	changes, err := db.PendingChangesByType(ctx, entity.TypeMenuItem, 3)
	if err != nil {
		t.Fatalf("PendingChangesByType() failed: %v", err)
	}
	if len(changes) != 1 || changes[0].ID != "chg-menu" {
		t.Fatalf("menu lane = %v, want [chg-menu]", changes)
	}

	orders, err := db.PendingChangesByType(ctx, entity.TypeOrder, 3)
	if err != nil {
		t.Fatalf("PendingChangesByType() failed: %v", err)
	}
	if len(orders) != 3 {
		t.Fatalf("order lane window = %d changes, want 3", len(orders))
	}
	for i, c := range orders {
		want := fmt.Sprintf("chg-order-%d", i)
		if c.ID != want {
			t.Errorf("orders[%d].ID = %s, want %s", i, c.ID, want)
		}
	}
}

// TestChangeQueue_RetryBookkeeping tests retry count and schedule updates.
func TestChangeQueue_RetryBookkeeping(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	c := &entity.ChangeRecord{
		ID: "chg-1", EntityType: entity.TypeOrder, EntityID: "ord-1",
		Op: entity.OpDelete, Timestamp: now, EnqueuedAt: now, NextAttemptAt: now,
	}
	if err := db.AppendChange(ctx, c); err != nil {
		t.Fatalf("AppendChange() failed: %v", err)
	}

	next := now.Add(30 * time.Second)
	if err := db.MarkChangeRetry(ctx, "chg-1", 3, next, "connection refused"); err != nil {
		t.Fatalf("MarkChangeRetry() failed: %v", err)
	}

	changes, err := db.PendingChanges(ctx, 10)
	if err != nil {
		t.Fatalf("PendingChanges() failed: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("queue depth = %d, want 1", len(changes))
	}
	got := changes[0]
	if got.RetryCount != 3 {
		t.Errorf("RetryCount = %d, want 3", got.RetryCount)
	}
	if !got.NextAttemptAt.Equal(next) {
		t.Errorf("NextAttemptAt = %v, want %v", got.NextAttemptAt, next)
	}
	if got.LastError != "connection refused" {
		t.Errorf("LastError = %q", got.LastError)
	}
}

// TestChangeQueue_RestartSafety tests that queue contents survive a
// close-and-reopen cycle exactly, with nothing lost or duplicated.
func TestChangeQueue_RestartSafety(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pos.db")
	ctx := context.Background()
	now := time.Now().UTC()

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}

	for i := 0; i < 4; i++ {
		c := &entity.ChangeRecord{
			ID:            fmt.Sprintf("chg-%d", i),
			EntityType:    entity.TypeMenuItem,
			EntityID:      fmt.Sprintf("itm-%d", i),
			Op:            entity.OpUpsert,
			Record:        testRecord(fmt.Sprintf("itm-%d", i), now),
			Timestamp:     now,
			EnqueuedAt:    now.Add(time.Duration(i) * time.Millisecond),
			NextAttemptAt: now,
		}
		if err := db.AppendChange(ctx, c); err != nil {
			t.Fatalf("AppendChange() failed: %v", err)
		}
	}
	if err := db.PutCursor(ctx, &entity.SyncCursor{
		EntityType:     entity.TypeMenuItem,
		LastFullSyncAt: now,
	}); err != nil {
		t.Fatalf("PutCursor() failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	// Reopen as if the process restarted mid-upload.
	db2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db2.Close()

	changes, err := db2.PendingChanges(ctx, 100)
	if err != nil {
		t.Fatalf("PendingChanges() after reopen failed: %v", err)
	}
	if len(changes) != 4 {
		t.Fatalf("queue depth after restart = %d, want 4", len(changes))
	}
	for i, c := range changes {
		want := fmt.Sprintf("chg-%d", i)
		if c.ID != want {
			t.Errorf("changes[%d].ID = %s, want %s", i, c.ID, want)
		}
	}

	cur, err := db2.Cursor(ctx, entity.TypeMenuItem)
	if err != nil {
		t.Fatalf("Cursor() after reopen failed: %v", err)
	}
	if !cur.LastFullSyncAt.Equal(now) {
		t.Errorf("cursor LastFullSyncAt = %v, want %v", cur.LastFullSyncAt, now)
	}
}

// TestCursor_DefaultAndUpdate tests zero-value cursors and upsert semantics.
func TestCursor_DefaultAndUpdate(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	cur, err := db.Cursor(ctx, entity.TypeOrder)
	if err != nil {
		t.Fatalf("Cursor() failed: %v", err)
	}
	if !cur.LastFullSyncAt.IsZero() || cur.ListenerActive {
		t.Errorf("default cursor = %+v, want zero values", cur)
	}

	if err := db.SetListenerActive(ctx, entity.TypeOrder, true); err != nil {
		t.Fatalf("SetListenerActive() failed: %v", err)
	}
	cur, err = db.Cursor(ctx, entity.TypeOrder)
	if err != nil {
		t.Fatalf("Cursor() failed: %v", err)
	}
	if !cur.ListenerActive {
		t.Error("ListenerActive not persisted")
	}
}
