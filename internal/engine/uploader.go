package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/quickserve/possync/internal/entity"
)

// uploadBatchSize bounds how many queued changes one lane loads per drain.
const uploadBatchSize = 100

// runUploader drains the change queue until the context is cancelled.
func (e *Engine) runUploader(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.UploadPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.drainQueue(ctx); err != nil && ctx.Err() == nil {
				e.log.Printf("Queue drain pass failed: %v", err)
			}
		}
	}
}

// drainQueue pushes each entity type's pending changes in enqueue order.
// Lanes are loaded and drained independently, so a backlog in one type
// cannot crowd another type's changes out of the window or delay them.
func (e *Engine) drainQueue(ctx context.Context) error {
	for _, t := range entity.AllTypes() {
		if err := e.drainLane(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// drainLane pushes one lane's changes oldest-first, stopping at the first
// ineligible or failing change so a later edit to the same collection can
// never overtake an earlier one.
func (e *Engine) drainLane(ctx context.Context, t entity.Type) error {
	pending, err := e.store.PendingChangesByType(ctx, t, uploadBatchSize)
	if err != nil {
		return fmt.Errorf("failed to load pending %s changes: %w", t, err)
	}

	now := time.Now().UTC()
	for _, c := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if c.NextAttemptAt.After(now) {
			// Head is still backing off; everything behind it waits too.
			return nil
		}

		if err := c.Validate(); err != nil {
			// A malformed change cannot upload and must not be dropped.
			// Park it at the backoff cap and surface it for inspection.
			e.notify.SyncError(fmt.Errorf("change %s for %s/%s rejected: %w", c.ID, c.EntityType, c.EntityID, err))
			next := now.Add(e.cfg.UploadBackoff.Cap)
			return e.store.MarkChangeRetry(ctx, c.ID, c.RetryCount+1, next, err.Error())
		}

		if err := e.pushChange(ctx, c); err != nil {
			e.rescheduleChange(ctx, c, err)
			return nil
		}

		if err := e.store.RemoveChange(ctx, c.ID); err != nil {
			return fmt.Errorf("failed to remove acknowledged change %s: %w", c.ID, err)
		}
	}
	return nil
}

// pushChange performs the remote write for one change record.
func (e *Engine) pushChange(ctx context.Context, c *entity.ChangeRecord) error {
	switch c.Op {
	case entity.OpUpsert:
		return e.remote.Upsert(ctx, c.EntityType, c.Record)
	case entity.OpDelete:
		return e.remote.DeleteBatch(ctx, c.EntityType, []string{c.EntityID})
	default:
		return fmt.Errorf("unknown op %q", c.Op)
	}
}

// rescheduleChange advances retry bookkeeping after a failed push. The
// change stays queued indefinitely; crossing the retry ceiling only raises
// a notification.
func (e *Engine) rescheduleChange(ctx context.Context, c *entity.ChangeRecord, cause error) {
	retry := c.RetryCount + 1
	next := time.Now().UTC().Add(e.cfg.UploadBackoff.Delay(c.RetryCount))

	e.log.Printf("Upload of %s/%s failed (attempt %d): %v", c.EntityType, c.EntityID, retry, cause)
	if retry >= e.cfg.MaxUploadRetries {
		e.notify.SyncError(fmt.Errorf("change %s for %s/%s stuck after %d attempts: %w",
			c.ID, c.EntityType, c.EntityID, retry, cause))
	}

	if err := e.store.MarkChangeRetry(ctx, c.ID, retry, next, cause.Error()); err != nil && ctx.Err() == nil {
		e.log.Printf("Failed to record retry for change %s: %v", c.ID, err)
	}
}
