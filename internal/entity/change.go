package entity

import (
	"fmt"
	"time"
)

// Op is the kind of mutation a ChangeRecord carries to the remote store.
type Op string

const (
	// OpUpsert writes the record (including tombstone upserts, which is how
	// ordinary deletions propagate).
	OpUpsert Op = "upsert"

	// OpDelete removes the record outright. Only maintenance passes that
	// intentionally destroy data enqueue this.
	OpDelete Op = "delete"
)

// ChangeRecord is one pending local mutation awaiting upload.
//
// Records are created when a local write commits, mutated only to advance
// their retry bookkeeping, and removed once the remote store acknowledges
// the write. They are never reordered: the uploader drains them oldest-first
// within each entity type.
type ChangeRecord struct {
	ID            string    `json:"id"`
	EntityType    Type      `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Op            Op        `json:"op"`
	Record        *Record   `json:"record,omitempty"` // nil for OpDelete
	Timestamp     time.Time `json:"timestamp"`        // LastModified of the mutation
	RetryCount    int       `json:"retry_count"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
	NextAttemptAt time.Time `json:"next_attempt_at"`
	LastError     string    `json:"last_error,omitempty"`
}

// Validate checks that the change is well-formed enough to upload.
// Rejected changes stay in the queue for manual inspection.
func (c *ChangeRecord) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("change id is required")
	}
	if !c.EntityType.Valid() {
		return fmt.Errorf("unknown entity type %q", c.EntityType)
	}
	if c.EntityID == "" {
		return fmt.Errorf("entity id is required")
	}
	switch c.Op {
	case OpUpsert:
		if c.Record == nil {
			return fmt.Errorf("upsert change has no record")
		}
		if err := c.Record.Validate(); err != nil {
			return fmt.Errorf("invalid record: %w", err)
		}
	case OpDelete:
		// No record required.
	default:
		return fmt.Errorf("unknown op %q", c.Op)
	}
	return nil
}
