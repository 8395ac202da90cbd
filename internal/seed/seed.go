// Package seed imports a menu definition from a YAML file into the store.
//
// Seeding goes through the engine's ordinary write path, so the imported
// categories and menu items are queued for upload and reach every other
// device like any local edit would.
package seed

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/quickserve/possync/internal/entity"
)

// Writer is the slice of the engine the seeder needs.
type Writer interface {
	Put(ctx context.Context, t entity.Type, rec *entity.Record) error
}

// File is the YAML menu definition.
type File struct {
	Categories []Category `yaml:"categories"`
	MenuItems  []MenuItem `yaml:"menu_items"`
}

// Category is one menu section in the seed file.
type Category struct {
	ID          string `yaml:"id"` // optional; generated when empty
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Color       string `yaml:"color"`
	Icon        string `yaml:"icon"`
	SortOrder   int    `yaml:"sort_order"`
}

// MenuItem is one sellable item in the seed file. Category references the
// category's name, not its id, so seed files stay human-editable.
type MenuItem struct {
	ID          string  `yaml:"id"` // optional; generated when empty
	Category    string  `yaml:"category"`
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Price       float64 `yaml:"price"`
	Available   *bool   `yaml:"available"` // nil means true
}

// Load parses and validates a seed file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks the seed file for the mistakes hand-edited YAML invites:
// duplicate names, dangling category references, nonsense prices.
func (f *File) Validate() error {
	names := make(map[string]bool, len(f.Categories))
	for i, c := range f.Categories {
		if c.Name == "" {
			return fmt.Errorf("category %d has no name", i)
		}
		if names[c.Name] {
			return fmt.Errorf("duplicate category %q", c.Name)
		}
		names[c.Name] = true
	}

	for i, m := range f.MenuItems {
		if m.Name == "" {
			return fmt.Errorf("menu item %d has no name", i)
		}
		if m.Category == "" {
			return fmt.Errorf("menu item %q has no category", m.Name)
		}
		if !names[m.Category] {
			return fmt.Errorf("menu item %q references unknown category %q", m.Name, m.Category)
		}
		if m.Price < 0 {
			return fmt.Errorf("menu item %q has negative price %.2f", m.Name, m.Price)
		}
	}
	return nil
}

// Stats summarizes one import.
type Stats struct {
	Categories int
	MenuItems  int
}

// Apply writes the seed file's contents through the engine. Categories keep
// their listed order as sort_order unless the file sets one explicitly.
func Apply(ctx context.Context, w Writer, tenantID string, f *File) (*Stats, error) {
	stats := &Stats{}
	catIDs := make(map[string]string, len(f.Categories))

	for i, c := range f.Categories {
		id := c.ID
		if id == "" {
			id = uuid.NewString()
		}
		catIDs[c.Name] = id

		sortOrder := c.SortOrder
		if sortOrder == 0 {
			sortOrder = i + 1
		}

		cat := &entity.Category{
			ID:          id,
			TenantID:    tenantID,
			Name:        c.Name,
			Description: c.Description,
			Color:       c.Color,
			Icon:        c.Icon,
			SortOrder:   sortOrder,
			Active:      true,
		}
		if err := w.Put(ctx, entity.TypeCategory, cat.ToRecord()); err != nil {
			return stats, fmt.Errorf("failed to seed category %q: %w", c.Name, err)
		}
		stats.Categories++
	}

	for _, m := range f.MenuItems {
		id := m.ID
		if id == "" {
			id = uuid.NewString()
		}
		available := true
		if m.Available != nil {
			available = *m.Available
		}

		item := &entity.MenuItem{
			ID:          id,
			TenantID:    tenantID,
			CategoryID:  catIDs[m.Category],
			Name:        m.Name,
			Description: m.Description,
			Price:       m.Price,
			Available:   available,
		}
		if err := w.Put(ctx, entity.TypeMenuItem, item.ToRecord()); err != nil {
			return stats, fmt.Errorf("failed to seed menu item %q: %w", m.Name, err)
		}
		stats.MenuItems++
	}
	return stats, nil
}
