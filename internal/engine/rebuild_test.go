package engine

import (
	"context"
	"testing"
	"time"

	"github.com/quickserve/possync/internal/entity"
)

func TestRebuildOrders_SynthesizesParentFromOrphans(t *testing.T) {
	e, db, _ := testEngine(t, nil)
	ctx := context.Background()

	// Three orphaned items totalling 22.50 with no parent order.
	items := []*entity.OrderItem{
		{ID: "i1", TenantID: testTenant, OrderID: "lost", Name: "Burger", UnitPrice: 10.00, Quantity: 1},
		{ID: "i2", TenantID: testTenant, OrderID: "lost", Name: "Fries", UnitPrice: 5.00, Quantity: 2},
		{ID: "i3", TenantID: testTenant, OrderID: "lost", Name: "Cola", UnitPrice: 2.50, Quantity: 1},
	}
	for _, it := range items {
		rec := it.ToRecord()
		rec.Touch()
		if err := db.Upsert(ctx, entity.TypeOrderItem, rec); err != nil {
			t.Fatalf("Upsert(%s) failed: %v", it.ID, err)
		}
	}

	stats, err := e.RebuildOrders(ctx)
	if err != nil {
		t.Fatalf("RebuildOrders() failed: %v", err)
	}
	if stats.Orders != 1 || stats.Items != 3 {
		t.Fatalf("stats = %d orders / %d items, want 1 / 3", stats.Orders, stats.Items)
	}

	rec, err := db.Get(ctx, entity.TypeOrder, "lost")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if rec == nil {
		t.Fatal("reconstructed order not written")
	}

	order := entity.OrderFromRecord(rec)
	if order.SubtotalAmount != 22.50 {
		t.Errorf("subtotal = %.2f, want 22.50", order.SubtotalAmount)
	}
	if order.TaxAmount != 2.93 {
		t.Errorf("tax = %.2f, want 2.93 (13%% of 22.50 rounded to cents)", order.TaxAmount)
	}
	if order.TotalAmount != 25.43 {
		t.Errorf("total = %.2f, want 25.43", order.TotalAmount)
	}
	if !order.Reconstructed {
		t.Error("reconstructed order not flagged")
	}
	if order.Status != "open" {
		t.Errorf("status = %q, want open", order.Status)
	}
}

// A second pass finds no orphans: the synthesized order reuses the items'
// order id, so reconstruction is idempotent.
func TestRebuildOrders_Idempotent(t *testing.T) {
	e, db, _ := testEngine(t, nil)
	ctx := context.Background()

	it := &entity.OrderItem{ID: "i1", TenantID: testTenant, OrderID: "lost", Name: "Soup", UnitPrice: 5.00, Quantity: 1}
	rec := it.ToRecord()
	rec.Touch()
	if err := db.Upsert(ctx, entity.TypeOrderItem, rec); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	if _, err := e.RebuildOrders(ctx); err != nil {
		t.Fatalf("first RebuildOrders() failed: %v", err)
	}
	stats, err := e.RebuildOrders(ctx)
	if err != nil {
		t.Fatalf("second RebuildOrders() failed: %v", err)
	}
	if stats.Orders != 0 {
		t.Errorf("second pass rebuilt %d orders, want 0", stats.Orders)
	}
}

func TestRebuildOrders_ExistingParentSkipped(t *testing.T) {
	e, db, _ := testEngine(t, nil)
	ctx := context.Background()

	if err := db.Upsert(ctx, entity.TypeOrder, orderRecord("o1", 12.0, nil)); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}
	if err := db.Upsert(ctx, entity.TypeOrderItem, itemRecord("i1", "o1", 12.0, 1)); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	stats, err := e.RebuildOrders(ctx)
	if err != nil {
		t.Fatalf("RebuildOrders() failed: %v", err)
	}
	if stats.Orders != 0 {
		t.Errorf("rebuilt %d orders, want 0: parent exists", stats.Orders)
	}
}

// Items under a tombstoned parent are leftovers of a deletion, not of a lost
// write. Recreating the order would undo the deletion.
func TestRebuildOrders_TombstonedParentNotResurrected(t *testing.T) {
	e, db, _ := testEngine(t, nil)
	ctx := context.Background()

	tomb := orderRecord("gone", 12.0, nil)
	tomb.Deleted = true
	if err := db.Upsert(ctx, entity.TypeOrder, tomb); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}
	if err := db.Upsert(ctx, entity.TypeOrderItem, itemRecord("i1", "gone", 12.0, 1)); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	stats, err := e.RebuildOrders(ctx)
	if err != nil {
		t.Fatalf("RebuildOrders() failed: %v", err)
	}
	if stats.Orders != 0 {
		t.Errorf("rebuilt %d orders, want 0: tombstoned parent must stay deleted", stats.Orders)
	}

	rec, _ := db.Get(ctx, entity.TypeOrder, "gone")
	if rec == nil || !rec.Deleted {
		t.Error("tombstone disturbed by reconstruction")
	}
}

// A real parent delivered by a listener while a reconstruction pass is
// running must survive. The pass writes under the order lock with an
// existence check inside it, so whichever side runs second sees the other:
// either the pass skips the group, or the newer remote parent replaces the
// synthesized order through conflict resolution.
func TestRebuildOrders_ParentArrivingMidPassWins(t *testing.T) {
	e, db, _ := testEngine(t, nil)
	ctx := context.Background()

	if err := db.Upsert(ctx, entity.TypeOrderItem, itemRecord("i1", "o1", 8.0, 1)); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	parent := orderRecord("o1", 50.0, nil)
	parent.LastModified = time.Now().UTC().Add(time.Minute)

	done := make(chan error, 1)
	go func() {
		_, err := e.RebuildOrders(ctx)
		done <- err
	}()
	if _, err := e.applyRemote(ctx, entity.TypeOrder, parent); err != nil {
		t.Fatalf("applyRemote() failed: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("RebuildOrders() failed: %v", err)
	}

	rec, err := db.Get(ctx, entity.TypeOrder, "o1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if rec == nil {
		t.Fatal("parent order missing after the pass")
	}
	order := entity.OrderFromRecord(rec)
	if order.Reconstructed {
		t.Fatal("synthesized order displaced the real parent")
	}
	if order.TotalAmount != 50.0 {
		t.Errorf("total = %.2f, want 50.00: real parent must survive the pass", order.TotalAmount)
	}
}

func TestRebuildOrders_ReconstructedOrderEnqueuedForUpload(t *testing.T) {
	e, db, _ := testEngine(t, nil)
	ctx := context.Background()

	if err := db.Upsert(ctx, entity.TypeOrderItem, itemRecord("i1", "lost", 8.0, 1)); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	if _, err := e.RebuildOrders(ctx); err != nil {
		t.Fatalf("RebuildOrders() failed: %v", err)
	}

	pending, err := db.PendingChanges(ctx, 10)
	if err != nil {
		t.Fatalf("PendingChanges() failed: %v", err)
	}
	if len(pending) != 1 || pending[0].EntityID != "lost" {
		t.Errorf("pending = %v, want one upsert of the reconstructed order", pending)
	}
}

func TestSynthesizeOrder_UsesEarliestItemTimestamp(t *testing.T) {
	early := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)

	order := synthesizeOrder("o1", testTenant, 0.13, []*entity.OrderItem{
		{ID: "i1", OrderID: "o1", UnitPrice: 5, Quantity: 1, CreatedAt: late},
		{ID: "i2", OrderID: "o1", UnitPrice: 5, Quantity: 1, CreatedAt: early},
	})
	if !order.CreatedAt.Equal(early) {
		t.Errorf("created_at = %s, want earliest item %s", order.CreatedAt, early)
	}
}
