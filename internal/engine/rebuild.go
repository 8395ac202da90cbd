package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/quickserve/possync/internal/entity"
)

// RebuildStats summarizes one order reconstruction pass.
type RebuildStats struct {
	Orders int // orders synthesized from orphaned line items
	Items  int // orphaned line items re-parented under them
}

// RebuildOrders finds line items whose parent order is missing from the
// local store and synthesizes a replacement order for each group, totalled
// from the items at the configured tax rate.
//
// The synthesized order reuses the orphans' order id and is flagged
// reconstructed, so a second pass finds no orphans and the pass is
// idempotent. Tombstoned parents are not missing: their items are leftovers
// of a deletion, not of a lost write, and recreating the order would undo
// the deletion.
func (e *Engine) RebuildOrders(ctx context.Context) (*RebuildStats, error) {
	if !e.rebuilding.CompareAndSwap(false, true) {
		return nil, ErrRebuildInFlight
	}
	defer e.rebuilding.Store(false)

	stats := &RebuildStats{}

	unlockItems := e.lockType(entity.TypeOrderItem)
	items, err := e.store.GetAll(ctx, entity.TypeOrderItem)
	unlockItems()
	if err != nil {
		return stats, fmt.Errorf("failed to read order items: %w", err)
	}

	// Group live items by parent order id.
	groups := make(map[string][]*entity.OrderItem)
	for _, rec := range items {
		if rec.Deleted {
			continue
		}
		it := entity.OrderItemFromRecord(rec)
		if it.OrderID == "" {
			continue
		}
		groups[it.OrderID] = append(groups[it.OrderID], it)
	}

	for orderID, group := range groups {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		order := synthesizeOrder(orderID, e.cfg.TenantID, e.cfg.TaxRate, group)
		written, err := e.putIfAbsent(ctx, entity.TypeOrder, order.ToRecord())
		if err != nil {
			return stats, fmt.Errorf("failed to write reconstructed order %s: %w", orderID, err)
		}
		if !written {
			// The real parent exists (or arrived mid-pass); these items
			// are not orphans.
			continue
		}
		e.log.Printf("Reconstructed order %s from %d orphaned items (total %.2f)", orderID, len(group), order.TotalAmount)
		stats.Orders++
		stats.Items += len(group)
	}

	if stats.Orders > 0 {
		e.notify.EntityTypeChanged(entity.TypeOrder)
		e.notify.SyncProgress(fmt.Sprintf("reconstructed %d orders from orphaned items", stats.Orders))
	}
	return stats, nil
}

// synthesizeOrder builds a replacement order from a group of orphaned items.
// The subtotal sums the items' line totals; tax and total round to cents.
func synthesizeOrder(orderID, tenantID string, taxRate float64, items []*entity.OrderItem) *entity.Order {
	var subtotal float64
	created := time.Now().UTC()
	for _, it := range items {
		subtotal += it.LineTotal()
		if !it.CreatedAt.IsZero() && it.CreatedAt.Before(created) {
			created = it.CreatedAt
		}
	}
	subtotal = entity.RoundCents(subtotal)
	tax := entity.RoundCents(subtotal * taxRate)

	return &entity.Order{
		ID:             orderID,
		TenantID:       tenantID,
		Status:         "open",
		SubtotalAmount: subtotal,
		TaxAmount:      tax,
		TotalAmount:    entity.RoundCents(subtotal + tax),
		Reconstructed:  true,
		CreatedAt:      created,
	}
}
