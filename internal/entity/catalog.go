package entity

import (
	"fmt"
	"time"
)

// Category groups menu items on the ordering screens.
// Field names follow the wire payload keys used by the stores.
type Category struct {
	ID           string
	TenantID     string
	Name         string
	Description  string
	Color        string
	Icon         string
	SortOrder    int
	Active       bool
	CreatedAt    time.Time
	LastModified time.Time
}

// Validate checks structural invariants for a well-formed category.
func (c *Category) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}
	if c.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// ToRecord converts the category to the generic sync envelope.
func (c *Category) ToRecord() *Record {
	return &Record{
		ID:           c.ID,
		TenantID:     c.TenantID,
		CreatedAt:    c.CreatedAt,
		LastModified: c.LastModified,
		Payload: Payload{
			"name":        c.Name,
			"description": c.Description,
			"color":       c.Color,
			"icon":        c.Icon,
			"sort_order":  c.SortOrder,
			"is_active":   c.Active,
		},
	}
}

// CategoryFromRecord converts a sync envelope back into a typed category.
func CategoryFromRecord(r *Record) *Category {
	return &Category{
		ID:           r.ID,
		TenantID:     r.TenantID,
		Name:         r.Payload.String("name"),
		Description:  r.Payload.String("description"),
		Color:        r.Payload.String("color"),
		Icon:         r.Payload.String("icon"),
		SortOrder:    int(r.Payload.Number("sort_order")),
		Active:       r.Payload.Bool("is_active"),
		CreatedAt:    r.CreatedAt,
		LastModified: r.LastModified,
	}
}

// MenuItem is a sellable item on the menu.
type MenuItem struct {
	ID                string
	TenantID          string
	CategoryID        string
	Name              string
	Description       string
	Price             float64
	Available         bool
	StockQuantity     int
	LowStockThreshold int
	CreatedAt         time.Time
	LastModified      time.Time
}

// Validate checks structural invariants for a well-formed menu item.
func (m *MenuItem) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("id is required")
	}
	if m.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	if m.Price < 0 {
		return fmt.Errorf("price must not be negative (got %.2f)", m.Price)
	}
	return nil
}

// ToRecord converts the menu item to the generic sync envelope.
func (m *MenuItem) ToRecord() *Record {
	return &Record{
		ID:           m.ID,
		TenantID:     m.TenantID,
		CreatedAt:    m.CreatedAt,
		LastModified: m.LastModified,
		Payload: Payload{
			"category_id":         m.CategoryID,
			"name":                m.Name,
			"description":         m.Description,
			"price":               m.Price,
			"is_available":        m.Available,
			"stock_quantity":      m.StockQuantity,
			"low_stock_threshold": m.LowStockThreshold,
		},
	}
}

// MenuItemFromRecord converts a sync envelope back into a typed menu item.
func MenuItemFromRecord(r *Record) *MenuItem {
	return &MenuItem{
		ID:                r.ID,
		TenantID:          r.TenantID,
		CategoryID:        r.Payload.String("category_id"),
		Name:              r.Payload.String("name"),
		Description:       r.Payload.String("description"),
		Price:             r.Payload.Number("price"),
		Available:         r.Payload.Bool("is_available"),
		StockQuantity:     int(r.Payload.Number("stock_quantity")),
		LowStockThreshold: int(r.Payload.Number("low_stock_threshold")),
		CreatedAt:         r.CreatedAt,
		LastModified:      r.LastModified,
	}
}
