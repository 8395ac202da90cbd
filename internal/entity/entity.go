// Package entity defines the typed records that flow through the sync engine.
//
// Every record the engine moves between the local store and the remote store
// is wrapped in the same envelope (Record): an identity, a tenant scope, a
// pair of timestamps, a tombstone flag, and a free-form payload. The envelope
// is what conflict resolution operates on; the typed structs (Order,
// OrderItem, MenuItem, Category) convert to and from it.
package entity

import (
	"fmt"
	"time"
)

// Type identifies one of the synchronized collections.
//
// The string values double as collection names on the remote store and as
// table keys in the local store, so they must never change once data exists.
type Type string

const (
	TypeOrder         Type = "orders"
	TypeOrderItem     Type = "order_items"
	TypeMenuItem      Type = "menu_items"
	TypeCategory      Type = "categories"
	TypeUser          Type = "users"
	TypeInventoryItem Type = "inventory_items"
	TypeTable         Type = "tables"
)

// AllTypes returns every synchronized entity type.
//
// The engine starts one listener lane per entry and reconciles each entry
// independently, so the order here only affects log output.
func AllTypes() []Type {
	return []Type{
		TypeOrder,
		TypeOrderItem,
		TypeMenuItem,
		TypeCategory,
		TypeUser,
		TypeInventoryItem,
		TypeTable,
	}
}

// Valid reports whether t is one of the known entity types.
func (t Type) Valid() bool {
	switch t {
	case TypeOrder, TypeOrderItem, TypeMenuItem, TypeCategory,
		TypeUser, TypeInventoryItem, TypeTable:
		return true
	}
	return false
}

// Payload holds the type-specific fields of a record as a flat JSON object.
// Keys follow the snake_case wire format of the backing stores.
type Payload map[string]any

// String returns the payload value for key as a string, or "" if the key is
// absent or not a string.
func (p Payload) String(key string) string {
	if s, ok := p[key].(string); ok {
		return s
	}
	return ""
}

// Number returns the payload value for key as a float64.
//
// JSON decoding produces float64 for all numbers, but values written by Go
// code may be typed ints, so both are accepted. Absent keys return 0.
func (p Payload) Number(key string) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// Bool returns the payload value for key as a bool. Absent keys return false.
func (p Payload) Bool(key string) bool {
	if b, ok := p[key].(bool); ok {
		return b
	}
	return false
}

// Clone returns a shallow copy of the payload.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Record is the envelope shared by all synchronized entities.
//
// LastModified is set by whichever writer last mutated the record and is the
// sole input to conflict resolution: the version with the greater timestamp
// wins. Deleted is an explicit tombstone; the engine never infers deletion
// from absence, so a record missing on one side is treated as not-yet-seen
// rather than removed.
type Record struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastModified time.Time `json:"last_modified"`
	Deleted      bool      `json:"deleted,omitempty"`
	Payload      Payload   `json:"payload,omitempty"`
}

// Validate checks the invariants every record must satisfy before it is
// written to either store.
func (r *Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("id is required")
	}
	if r.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if r.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	if r.LastModified.IsZero() {
		return fmt.Errorf("last_modified is required")
	}
	if r.LastModified.Before(r.CreatedAt) {
		return fmt.Errorf("last_modified %s precedes created_at %s",
			r.LastModified.Format(time.RFC3339Nano), r.CreatedAt.Format(time.RFC3339Nano))
	}
	return nil
}

// Touch stamps the record as modified now (UTC).
// Call this on every local mutation before the record is persisted.
func (r *Record) Touch() {
	r.LastModified = time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = r.LastModified
	}
}

// Clone returns a copy of the record with its own payload map.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Payload = r.Payload.Clone()
	return &out
}
