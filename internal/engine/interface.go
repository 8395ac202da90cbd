// Package engine implements the multi-device synchronization engine.
//
// The engine keeps an on-device store consistent with a shared cloud store
// for one tenant session. It owns five concurrent activities:
//
//  1. Uploader: drains the durable change queue to the remote store with
//     exponential backoff, preserving per-entity-type FIFO order.
//  2. Listener lanes: one remote change subscription per entity type,
//     applying winners chosen by the conflict resolver, restarting with
//     backoff on disconnect.
//  3. Reconciler: full bidirectional diff-and-merge across all entity
//     types, triggered on startup, on demand, and on a periodic timer.
//  4. Ghost sweeper: deletes structurally invalid orders from both stores.
//  5. Order reconstructor: rebuilds parent orders from orphaned line items.
//
// Local writes never block on the network: a mutation commits to the local
// store synchronously, and everything remote happens asynchronously behind
// the change queue. Conflicts resolve last-writer-wins on the record's
// modification timestamp, so arrival order between the upload and listener
// paths cannot corrupt data.
package engine

import (
	"context"
	"time"

	"github.com/quickserve/possync/internal/entity"
)

// Storage is the local persistence surface the engine consumes.
//
// The record CRUD portion is the on-device store shared with the UI layer;
// the change queue and cursor portions are owned exclusively by the engine
// and must survive process restarts. Implementations must allow concurrent
// readers while the engine writes (the engine itself serializes writers
// per entity type).
type Storage interface {
	// Get returns one record, or nil if absent.
	Get(ctx context.Context, t entity.Type, id string) (*entity.Record, error)

	// GetAll returns every record of a type, tombstones included.
	GetAll(ctx context.Context, t entity.Type) ([]*entity.Record, error)

	// Upsert inserts or replaces a record.
	Upsert(ctx context.Context, t entity.Type, rec *entity.Record) error

	// Delete removes a record outright. Idempotent.
	Delete(ctx context.Context, t entity.Type, id string) error

	// DeleteBatch removes several records of one type atomically.
	DeleteBatch(ctx context.Context, t entity.Type, ids []string) error

	// AppendChange adds a pending mutation to the tail of the change queue.
	AppendChange(ctx context.Context, c *entity.ChangeRecord) error

	// PendingChangesByType returns one entity type's queued changes
	// oldest-first, up to limit. Loading per type keeps one backlogged
	// lane from crowding other types out of a bounded window.
	PendingChangesByType(ctx context.Context, t entity.Type, limit int) ([]*entity.ChangeRecord, error)

	// MarkChangeRetry advances a change's retry bookkeeping after a
	// failed upload attempt.
	MarkChangeRetry(ctx context.Context, id string, retryCount int, nextAttempt time.Time, lastError string) error

	// RemoveChange deletes an acknowledged change. Idempotent.
	RemoveChange(ctx context.Context, id string) error

	// QueueDepth returns the number of pending changes.
	QueueDepth(ctx context.Context) (int, error)

	// Cursor returns the sync cursor for a type (zero-valued if never set).
	Cursor(ctx context.Context, t entity.Type) (*entity.SyncCursor, error)

	// PutCursor inserts or replaces a cursor.
	PutCursor(ctx context.Context, c *entity.SyncCursor) error

	// SetListenerActive flags whether a type's remote subscription is live.
	SetListenerActive(ctx context.Context, t entity.Type, active bool) error
}

// Notifier receives advisory callbacks from the engine.
//
// Callbacks fire after a conflict decision is applied locally or a
// maintenance pass completes. They are advisory only: no engine operation
// waits on a notifier, and consumers are expected to debounce their own
// re-renders. Implementations must not block.
type Notifier interface {
	// EntityTypeChanged fires when records of a type changed locally due
	// to sync activity (remote apply, sweep, reconstruction).
	EntityTypeChanged(t entity.Type)

	// SyncProgress carries human-readable status messages.
	SyncProgress(message string)

	// SyncError surfaces recovered failures: upload retries that exceeded
	// the retry ceiling, rejected queue records, listener trouble. These
	// are advisory; the engine has already handled the failure.
	SyncError(err error)
}

// NotifierFuncs adapts plain functions to the Notifier interface.
// Nil fields are no-ops.
type NotifierFuncs struct {
	OnEntityTypeChanged func(entity.Type)
	OnSyncProgress      func(string)
	OnSyncError         func(error)
}

func (n NotifierFuncs) EntityTypeChanged(t entity.Type) {
	if n.OnEntityTypeChanged != nil {
		n.OnEntityTypeChanged(t)
	}
}

func (n NotifierFuncs) SyncProgress(message string) {
	if n.OnSyncProgress != nil {
		n.OnSyncProgress(message)
	}
}

func (n NotifierFuncs) SyncError(err error) {
	if n.OnSyncError != nil {
		n.OnSyncError(err)
	}
}
