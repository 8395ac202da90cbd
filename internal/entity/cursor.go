package entity

import "time"

// SyncCursor tracks per-entity-type sync state for a tenant.
//
// One cursor exists per entity type. It survives process restarts so the
// reconciler can decide whether a full pass is overdue after startup.
// Cursors are owned exclusively by the engine.
type SyncCursor struct {
	EntityType     Type      `json:"entity_type"`
	LastFullSyncAt time.Time `json:"last_full_sync_at"`
	ListenerActive bool      `json:"listener_active"`
}

// FullSyncDue reports whether a full reconciliation pass is overdue given
// the configured interval.
func (c *SyncCursor) FullSyncDue(interval time.Duration, now time.Time) bool {
	if c.LastFullSyncAt.IsZero() {
		return true
	}
	return now.Sub(c.LastFullSyncAt) >= interval
}
