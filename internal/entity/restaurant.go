package entity

import (
	"fmt"
	"time"
)

// User is a staff member who can sign in on a device.
type User struct {
	ID           string
	TenantID     string
	Name         string
	Role         string // server, manager, admin
	PIN          string
	Active       bool
	CreatedAt    time.Time
	LastModified time.Time
}

// Validate checks structural invariants for a well-formed user.
func (u *User) Validate() error {
	if u.ID == "" {
		return fmt.Errorf("id is required")
	}
	if u.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if u.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// ToRecord converts the user to the generic sync envelope.
func (u *User) ToRecord() *Record {
	return &Record{
		ID:           u.ID,
		TenantID:     u.TenantID,
		CreatedAt:    u.CreatedAt,
		LastModified: u.LastModified,
		Payload: Payload{
			"name":      u.Name,
			"role":      u.Role,
			"pin":       u.PIN,
			"is_active": u.Active,
		},
	}
}

// UserFromRecord converts a sync envelope back into a typed user.
func UserFromRecord(r *Record) *User {
	return &User{
		ID:           r.ID,
		TenantID:     r.TenantID,
		Name:         r.Payload.String("name"),
		Role:         r.Payload.String("role"),
		PIN:          r.Payload.String("pin"),
		Active:       r.Payload.Bool("is_active"),
		CreatedAt:    r.CreatedAt,
		LastModified: r.LastModified,
	}
}

// InventoryItem is a stocked ingredient or supply tracked per tenant.
type InventoryItem struct {
	ID                string
	TenantID          string
	Name              string
	Unit              string // each, kg, l
	StockQuantity     float64
	LowStockThreshold float64
	CreatedAt         time.Time
	LastModified      time.Time
}

// Validate checks structural invariants for a well-formed inventory item.
func (i *InventoryItem) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("id is required")
	}
	if i.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if i.Name == "" {
		return fmt.Errorf("name is required")
	}
	if i.StockQuantity < 0 {
		return fmt.Errorf("stock_quantity must not be negative (got %.2f)", i.StockQuantity)
	}
	return nil
}

// LowStock reports whether the item has fallen to its reorder threshold.
func (i *InventoryItem) LowStock() bool {
	return i.LowStockThreshold > 0 && i.StockQuantity <= i.LowStockThreshold
}

// ToRecord converts the inventory item to the generic sync envelope.
func (i *InventoryItem) ToRecord() *Record {
	return &Record{
		ID:           i.ID,
		TenantID:     i.TenantID,
		CreatedAt:    i.CreatedAt,
		LastModified: i.LastModified,
		Payload: Payload{
			"name":                i.Name,
			"unit":                i.Unit,
			"stock_quantity":      i.StockQuantity,
			"low_stock_threshold": i.LowStockThreshold,
		},
	}
}

// InventoryItemFromRecord converts a sync envelope back into a typed
// inventory item.
func InventoryItemFromRecord(r *Record) *InventoryItem {
	return &InventoryItem{
		ID:                r.ID,
		TenantID:          r.TenantID,
		Name:              r.Payload.String("name"),
		Unit:              r.Payload.String("unit"),
		StockQuantity:     r.Payload.Number("stock_quantity"),
		LowStockThreshold: r.Payload.Number("low_stock_threshold"),
		CreatedAt:         r.CreatedAt,
		LastModified:      r.LastModified,
	}
}

// Table is a physical table on the floor plan.
type Table struct {
	ID           string
	TenantID     string
	Name         string
	Seats        int
	Occupied     bool
	CreatedAt    time.Time
	LastModified time.Time
}

// Validate checks structural invariants for a well-formed table.
func (t *Table) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if t.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if t.Name == "" {
		return fmt.Errorf("name is required")
	}
	if t.Seats < 0 {
		return fmt.Errorf("seats must not be negative (got %d)", t.Seats)
	}
	return nil
}

// ToRecord converts the table to the generic sync envelope.
func (t *Table) ToRecord() *Record {
	return &Record{
		ID:           t.ID,
		TenantID:     t.TenantID,
		CreatedAt:    t.CreatedAt,
		LastModified: t.LastModified,
		Payload: Payload{
			"name":        t.Name,
			"seats":       t.Seats,
			"is_occupied": t.Occupied,
		},
	}
}

// TableFromRecord converts a sync envelope back into a typed table.
func TableFromRecord(r *Record) *Table {
	return &Table{
		ID:           r.ID,
		TenantID:     r.TenantID,
		Name:         r.Payload.String("name"),
		Seats:        int(r.Payload.Number("seats")),
		Occupied:     r.Payload.Bool("is_occupied"),
		CreatedAt:    r.CreatedAt,
		LastModified: r.LastModified,
	}
}
