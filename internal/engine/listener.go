package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/quickserve/possync/internal/entity"
	"github.com/quickserve/possync/internal/remote"
)

// runListener maintains one remote change subscription for an entity type.
// It redials with exponential backoff on any drop and resets the backoff
// after a successful connection.
func (e *Engine) runListener(ctx context.Context, t entity.Type) {
	defer e.wg.Done()

	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		sub, err := e.remote.Listen(ctx, t)
		if err != nil {
			delay := e.cfg.ListenerBackoff.Delay(attempt)
			attempt++
			e.log.Printf("Listener for %s failed to connect (attempt %d), retrying in %s: %v", t, attempt, delay, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}

		attempt = 0
		e.log.Printf("Listener for %s connected", t)
		if err := e.store.SetListenerActive(ctx, t, true); err != nil && ctx.Err() == nil {
			e.log.Printf("Failed to mark listener %s active: %v", t, err)
		}

		e.consumeEvents(ctx, t, sub)
		sub.Close()

		if ctx.Err() != nil {
			return
		}
		e.log.Printf("Listener for %s dropped, reconnecting", t)
		if err := e.store.SetListenerActive(ctx, t, false); err != nil {
			e.log.Printf("Failed to mark listener %s inactive: %v", t, err)
		}
	}
}

// consumeEvents applies incoming batches until the subscription dies or the
// context is cancelled.
func (e *Engine) consumeEvents(ctx context.Context, t entity.Type, sub remote.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-sub.Events():
			if !ok {
				return
			}
			changed := false
			for _, ev := range batch {
				applied, err := e.applyRemote(ctx, t, ev.Record)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					e.notify.SyncError(fmt.Errorf("failed to apply remote change for %s: %w", t, err))
					continue
				}
				changed = changed || applied
			}
			if changed {
				e.notify.EntityTypeChanged(t)
			}
		}
	}
}

// applyRemote runs one incoming record through conflict resolution under the
// entity type's writer lock. Re-reading the local version inside the lock
// keeps a concurrent local edit from being clobbered by a stale event.
// Returns whether the local store changed.
func (e *Engine) applyRemote(ctx context.Context, t entity.Type, incoming *entity.Record) (bool, error) {
	if incoming == nil || incoming.ID == "" {
		return false, nil
	}

	unlock := e.lockType(t)
	defer unlock()

	local, err := e.store.Get(ctx, t, incoming.ID)
	if err != nil {
		return false, err
	}

	switch Resolve(local, incoming) {
	case ApplyRemote:
		if err := e.store.Upsert(ctx, t, incoming); err != nil {
			return false, err
		}
		return true, nil
	case UploadLocal:
		// The event is older than our local version, which means our copy
		// has not reached the remote store yet (or a peer's clock is
		// behind). Re-enqueue ours so the newer version wins everywhere.
		return false, e.enqueue(ctx, t, entity.OpUpsert, local)
	default:
		return false, nil
	}
}
