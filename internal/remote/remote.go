// Package remote defines the cloud store surface the sync engine consumes,
// plus the HTTP/WebSocket client implementing it.
//
// All operations are asynchronous and fallible from the engine's point of
// view: point reads and writes, full collection snapshots, bounded batch
// deletes, and a long-lived change subscription per entity type. The engine
// never sees the backend's internals; everything goes through Store.
package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/quickserve/possync/internal/entity"
)

// ChangeEvent is one remote mutation pushed over a subscription.
// A tombstoned Record signals deletion; events never carry bare absence.
type ChangeEvent struct {
	Type   entity.Type    `json:"type"`
	Record *entity.Record `json:"record"`
}

// Subscription is a live change feed for one entity type.
//
// Events delivers batches in arrival order. The channel is closed when the
// subscription dies (network drop, auth expiry, server shutdown); the
// consumer is expected to restart with backoff. Close is idempotent.
type Subscription interface {
	// Events returns the channel of incoming event batches.
	Events() <-chan []ChangeEvent

	// Close tears down the subscription and closes the events channel.
	Close() error
}

// Store is the remote store adapter.
//
// Implementations must treat batch deletes larger than the backend's write
// limit as a caller error (ErrBatchTooLarge); the engine chunks before
// calling, so seeing that error in production indicates a bug upstream.
type Store interface {
	// Get returns one record, or nil if the remote store has no document
	// with that id.
	Get(ctx context.Context, t entity.Type, id string) (*entity.Record, error)

	// Snapshot returns the full remote collection for one entity type.
	Snapshot(ctx context.Context, t entity.Type) ([]*entity.Record, error)

	// Upsert writes one record, replacing any existing version.
	Upsert(ctx context.Context, t entity.Type, rec *entity.Record) error

	// DeleteBatch permanently removes the given ids in one batch commit.
	DeleteBatch(ctx context.Context, t entity.Type, ids []string) error

	// Listen opens a change subscription for one entity type.
	Listen(ctx context.Context, t entity.Type) (Subscription, error)
}

// ErrBatchTooLarge indicates a DeleteBatch call exceeding the backend's
// per-commit operation ceiling. The engine must chunk before this can occur.
var ErrBatchTooLarge = errors.New("remote: batch exceeds backend write limit")

// StatusError is a non-2xx response from the remote store.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote: server returned status %d: %s", e.Code, e.Body)
}
