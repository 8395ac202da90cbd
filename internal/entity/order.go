package entity

import (
	"fmt"
	"time"
)

// Order is a customer check. Its line items are persisted as separate
// OrderItem records keyed by OrderID, which is what makes orphaned items
// possible when an order write is lost mid-flight.
type Order struct {
	ID             string
	TenantID       string
	TableID        string
	Status         string // open, completed, cancelled
	SubtotalAmount float64
	TaxAmount      float64
	TotalAmount    float64
	Voided         bool
	Comped         bool
	Reconstructed  bool
	CreatedAt      time.Time
	LastModified   time.Time
}

// Validate checks structural invariants for a well-formed order.
func (o *Order) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("id is required")
	}
	if o.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if o.TotalAmount < 0 {
		return fmt.Errorf("total_amount must not be negative (got %.2f)", o.TotalAmount)
	}
	return nil
}

// ToRecord converts the order to the generic sync envelope.
func (o *Order) ToRecord() *Record {
	p := Payload{
		"table_id":        o.TableID,
		"status":          o.Status,
		"subtotal_amount": o.SubtotalAmount,
		"tax_amount":      o.TaxAmount,
		"total_amount":    o.TotalAmount,
	}
	if o.Voided {
		p["voided"] = true
	}
	if o.Comped {
		p["comped"] = true
	}
	if o.Reconstructed {
		p["reconstructed"] = true
	}
	return &Record{
		ID:           o.ID,
		TenantID:     o.TenantID,
		CreatedAt:    o.CreatedAt,
		LastModified: o.LastModified,
		Payload:      p,
	}
}

// OrderFromRecord converts a sync envelope back into a typed order.
func OrderFromRecord(r *Record) *Order {
	return &Order{
		ID:             r.ID,
		TenantID:       r.TenantID,
		TableID:        r.Payload.String("table_id"),
		Status:         r.Payload.String("status"),
		SubtotalAmount: r.Payload.Number("subtotal_amount"),
		TaxAmount:      r.Payload.Number("tax_amount"),
		TotalAmount:    r.Payload.Number("total_amount"),
		Voided:         r.Payload.Bool("voided"),
		Comped:         r.Payload.Bool("comped"),
		Reconstructed:  r.Payload.Bool("reconstructed"),
		CreatedAt:      r.CreatedAt,
		LastModified:   r.LastModified,
	}
}

// IsGhostOrder reports whether an order record is structurally invalid:
// no line items or a zero total.
//
// Orders explicitly flagged voided or comped are exempt; a legitimately
// zero-value comped check must survive the sweep. Tombstoned records are
// never ghosts because they are already logically gone.
func IsGhostOrder(r *Record, itemCount int) bool {
	if r.Deleted {
		return false
	}
	if r.Payload.Bool("voided") || r.Payload.Bool("comped") {
		return false
	}
	return itemCount == 0 || r.Payload.Number("total_amount") == 0
}

// OrderItem is a single line on an order. It is owned by its parent order
// but stored as an independent record.
type OrderItem struct {
	ID           string
	TenantID     string
	OrderID      string
	MenuItemID   string
	Name         string
	UnitPrice    float64
	Quantity     int
	Notes        string
	CreatedAt    time.Time
	LastModified time.Time
}

// Validate checks structural invariants for a well-formed order item.
func (i *OrderItem) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("id is required")
	}
	if i.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if i.OrderID == "" {
		return fmt.Errorf("order_id is required")
	}
	if i.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive (got %d)", i.Quantity)
	}
	if i.UnitPrice < 0 {
		return fmt.Errorf("unit_price must not be negative (got %.2f)", i.UnitPrice)
	}
	return nil
}

// LineTotal returns unit price times quantity, rounded to cents.
func (i *OrderItem) LineTotal() float64 {
	return RoundCents(i.UnitPrice * float64(i.Quantity))
}

// ToRecord converts the item to the generic sync envelope.
func (i *OrderItem) ToRecord() *Record {
	p := Payload{
		"order_id":     i.OrderID,
		"menu_item_id": i.MenuItemID,
		"name":         i.Name,
		"unit_price":   i.UnitPrice,
		"quantity":     i.Quantity,
	}
	if i.Notes != "" {
		p["notes"] = i.Notes
	}
	return &Record{
		ID:           i.ID,
		TenantID:     i.TenantID,
		CreatedAt:    i.CreatedAt,
		LastModified: i.LastModified,
		Payload:      p,
	}
}

// OrderItemFromRecord converts a sync envelope back into a typed order item.
func OrderItemFromRecord(r *Record) *OrderItem {
	return &OrderItem{
		ID:           r.ID,
		TenantID:     r.TenantID,
		OrderID:      r.Payload.String("order_id"),
		MenuItemID:   r.Payload.String("menu_item_id"),
		Name:         r.Payload.String("name"),
		UnitPrice:    r.Payload.Number("unit_price"),
		Quantity:     int(r.Payload.Number("quantity")),
		Notes:        r.Payload.String("notes"),
		CreatedAt:    r.CreatedAt,
		LastModified: r.LastModified,
	}
}
