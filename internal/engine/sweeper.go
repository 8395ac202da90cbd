package engine

import (
	"context"
	"fmt"

	"github.com/quickserve/possync/internal/entity"
)

// SweepStats summarizes one ghost sweep pass.
type SweepStats struct {
	LocalOrders  int // ghost orders removed from the local store
	LocalItems   int // their line items removed from the local store
	RemoteOrders int // ghost orders removed from the remote store
	RemoteItems  int // their line items removed from the remote store
}

// SweepGhosts deletes structurally invalid orders from both stores: orders
// with no line items or a zero total that were neither voided nor comped.
// These are artifacts of crashed order flows, not business data, so they are
// destroyed outright rather than tombstoned.
//
// Each store is swept against its own contents. A ghost present only
// remotely is still removed even if this device never synced it.
func (e *Engine) SweepGhosts(ctx context.Context) (*SweepStats, error) {
	if !e.sweeping.CompareAndSwap(false, true) {
		return nil, ErrSweepInFlight
	}
	defer e.sweeping.Store(false)

	stats := &SweepStats{}
	e.log.Printf("Ghost sweep started")

	if err := e.sweepLocal(ctx, stats); err != nil {
		return stats, fmt.Errorf("local ghost sweep failed: %w", err)
	}
	if err := e.sweepRemote(ctx, stats); err != nil {
		return stats, fmt.Errorf("remote ghost sweep failed: %w", err)
	}

	e.log.Printf("Ghost sweep removed %d local and %d remote orders", stats.LocalOrders, stats.RemoteOrders)
	if stats.LocalOrders > 0 || stats.LocalItems > 0 {
		e.notify.EntityTypeChanged(entity.TypeOrder)
		e.notify.EntityTypeChanged(entity.TypeOrderItem)
	}
	return stats, nil
}

// sweepLocal removes local ghost orders and their line items in one pass.
func (e *Engine) sweepLocal(ctx context.Context, stats *SweepStats) error {
	unlockOrders := e.lockType(entity.TypeOrder)
	defer unlockOrders()
	unlockItems := e.lockType(entity.TypeOrderItem)
	defer unlockItems()

	orders, err := e.store.GetAll(ctx, entity.TypeOrder)
	if err != nil {
		return err
	}
	items, err := e.store.GetAll(ctx, entity.TypeOrderItem)
	if err != nil {
		return err
	}

	ghostOrders, ghostItems := findGhosts(orders, items)
	if len(ghostOrders) == 0 && len(ghostItems) == 0 {
		return nil
	}

	if err := e.store.DeleteBatch(ctx, entity.TypeOrder, ghostOrders); err != nil {
		return err
	}
	if err := e.store.DeleteBatch(ctx, entity.TypeOrderItem, ghostItems); err != nil {
		return err
	}
	stats.LocalOrders += len(ghostOrders)
	stats.LocalItems += len(ghostItems)
	return nil
}

// sweepRemote removes remote ghost orders judged against the remote store's
// own snapshot, chunked under the backend's batch write ceiling.
func (e *Engine) sweepRemote(ctx context.Context, stats *SweepStats) error {
	orders, err := e.remote.Snapshot(ctx, entity.TypeOrder)
	if err != nil {
		return err
	}
	items, err := e.remote.Snapshot(ctx, entity.TypeOrderItem)
	if err != nil {
		return err
	}

	ghostOrders, ghostItems := findGhosts(orders, items)

	for _, chunk := range chunkIDs(ghostOrders, e.cfg.MaxDeleteBatch) {
		if err := e.remote.DeleteBatch(ctx, entity.TypeOrder, chunk); err != nil {
			return err
		}
		stats.RemoteOrders += len(chunk)
	}
	for _, chunk := range chunkIDs(ghostItems, e.cfg.MaxDeleteBatch) {
		if err := e.remote.DeleteBatch(ctx, entity.TypeOrderItem, chunk); err != nil {
			return err
		}
		stats.RemoteItems += len(chunk)
	}
	return nil
}

// findGhosts returns the ids of ghost orders in one store's snapshot, plus
// the ids of line items belonging to those ghosts.
func findGhosts(orders, items []*entity.Record) (ghostOrders, ghostItems []string) {
	liveItems := make(map[string]int)
	itemsByOrder := make(map[string][]string)
	for _, it := range items {
		orderID := it.Payload.String("order_id")
		if orderID == "" {
			continue
		}
		itemsByOrder[orderID] = append(itemsByOrder[orderID], it.ID)
		if !it.Deleted {
			liveItems[orderID]++
		}
	}

	for _, o := range orders {
		if entity.IsGhostOrder(o, liveItems[o.ID]) {
			ghostOrders = append(ghostOrders, o.ID)
			ghostItems = append(ghostItems, itemsByOrder[o.ID]...)
		}
	}
	return ghostOrders, ghostItems
}

// chunkIDs splits ids into slices of at most size elements.
func chunkIDs(ids []string, size int) [][]string {
	if len(ids) == 0 {
		return nil
	}
	if size <= 0 {
		return [][]string{ids}
	}
	var chunks [][]string
	for len(ids) > size {
		chunks = append(chunks, ids[:size])
		ids = ids[size:]
	}
	return append(chunks, ids)
}
