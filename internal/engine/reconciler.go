package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/quickserve/possync/internal/entity"
)

// Reconcile performs one full bidirectional diff-and-merge across every
// entity type. Types reconcile in parallel; writes within a type stay
// serialized by the per-type locks. Concurrent calls coalesce: a second
// trigger while a pass is in flight returns ErrSyncInFlight.
func (e *Engine) Reconcile(ctx context.Context) error {
	if !e.reconciling.CompareAndSwap(false, true) {
		return ErrSyncInFlight
	}
	defer e.reconciling.Store(false)

	start := time.Now()
	e.notify.SyncProgress("full sync started")
	e.log.Printf("Full reconciliation started")

	types := entity.AllTypes()
	errs := make([]error, len(types))

	var wg sync.WaitGroup
	for i, t := range types {
		wg.Add(1)
		go func(i int, t entity.Type) {
			defer wg.Done()
			errs[i] = e.reconcileType(ctx, t)
		}(i, t)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		e.notify.SyncProgress("full sync finished with errors")
		return fmt.Errorf("reconciliation incomplete: %w", err)
	}

	e.log.Printf("Full reconciliation finished in %s", time.Since(start).Round(time.Millisecond))
	e.notify.SyncProgress("full sync finished")
	return nil
}

// reconcileType merges one entity type's local and remote collections and,
// on success, stamps the type's cursor so restart logic knows how stale the
// local copy can be.
func (e *Engine) reconcileType(ctx context.Context, t entity.Type) error {
	remoteRecs, err := e.remote.Snapshot(ctx, t)
	if err != nil {
		return fmt.Errorf("failed to snapshot remote %s: %w", t, err)
	}
	localRecs, err := e.store.GetAll(ctx, t)
	if err != nil {
		return fmt.Errorf("failed to read local %s: %w", t, err)
	}

	// Union of ids from both sides. The remote map also serves the per-id
	// lookups below.
	remoteByID := make(map[string]*entity.Record, len(remoteRecs))
	ids := make(map[string]struct{}, len(remoteRecs)+len(localRecs))
	for _, r := range remoteRecs {
		remoteByID[r.ID] = r
		ids[r.ID] = struct{}{}
	}
	for _, r := range localRecs {
		ids[r.ID] = struct{}{}
	}

	changed := false
	for id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		applied, err := e.reconcileOne(ctx, t, id, remoteByID[id])
		if err != nil {
			return err
		}
		changed = changed || applied
	}

	if changed {
		e.notify.EntityTypeChanged(t)
	}

	cur, err := e.store.Cursor(ctx, t)
	if err != nil {
		return err
	}
	cur.LastFullSyncAt = time.Now().UTC()
	if err := e.store.PutCursor(ctx, cur); err != nil {
		return fmt.Errorf("failed to update %s cursor: %w", t, err)
	}
	return nil
}

// reconcileOne resolves a single id under the type's writer lock. The local
// version is re-read inside the lock because the snapshot taken above may be
// stale by the time this id's turn comes.
func (e *Engine) reconcileOne(ctx context.Context, t entity.Type, id string, remoteRec *entity.Record) (bool, error) {
	unlock := e.lockType(t)
	defer unlock()

	local, err := e.store.Get(ctx, t, id)
	if err != nil {
		return false, err
	}

	switch Resolve(local, remoteRec) {
	case ApplyRemote:
		if err := e.store.Upsert(ctx, t, remoteRec); err != nil {
			return false, fmt.Errorf("failed to apply remote %s/%s: %w", t, id, err)
		}
		return true, nil
	case UploadLocal:
		if err := e.enqueue(ctx, t, entity.OpUpsert, local); err != nil {
			return false, err
		}
		return false, nil
	default:
		return false, nil
	}
}
