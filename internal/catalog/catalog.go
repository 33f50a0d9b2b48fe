// Package catalog holds the read-only product index used for price lookups
// and fuzzy item matching.
package catalog

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/AssadourKH/NEWAIBOT/internal/models"
)

// Index is an immutable product lookup built from a catalog snapshot.
// It is safe for concurrent readers.
type Index struct {
	entries []models.CatalogEntry
	byID    map[string]int
	lower   []string
}

// Load builds an index from records, preserving their order for name lookups.
// Records without an id are skipped; a duplicate id keeps the first record.
func Load(records []models.CatalogEntry) *Index {
	idx := &Index{
		entries: make([]models.CatalogEntry, 0, len(records)),
		byID:    make(map[string]int, len(records)),
		lower:   make([]string, 0, len(records)),
	}
	for _, r := range records {
		r.ID = strings.TrimSpace(r.ID)
		if r.ID == "" {
			slog.Warn("catalog.Load: skipping record without id", "name", r.Name)
			continue
		}
		if _, dup := idx.byID[r.ID]; dup {
			slog.Warn("catalog.Load: duplicate id, keeping first", "id", r.ID, "name", r.Name)
			continue
		}
		if r.Currency == "" {
			r.Currency = DefaultCurrency
		}
		idx.byID[r.ID] = len(idx.entries)
		idx.entries = append(idx.entries, r)
		idx.lower = append(idx.lower, strings.ToLower(r.Name))
	}
	slog.Debug("catalog.Load: index built", "entries", len(idx.entries))
	return idx
}

// Empty returns an index with no entries. Every lookup misses.
func Empty() *Index {
	return Load(nil)
}

// FindByID returns the entry with the exact id.
func (i *Index) FindByID(id string) (models.CatalogEntry, bool) {
	if i == nil || id == "" {
		return models.CatalogEntry{}, false
	}
	pos, ok := i.byID[id]
	if !ok {
		return models.CatalogEntry{}, false
	}
	return i.entries[pos], true
}

// FindByNameSubstring returns the first entry, in ingestion order, whose name
// contains name case-insensitively. An empty name never matches.
func (i *Index) FindByNameSubstring(name string) (models.CatalogEntry, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if i == nil || needle == "" {
		return models.CatalogEntry{}, false
	}
	for pos, hay := range i.lower {
		if strings.Contains(hay, needle) {
			return i.entries[pos], true
		}
	}
	return models.CatalogEntry{}, false
}

// Len reports the number of entries.
func (i *Index) Len() int {
	if i == nil {
		return 0
	}
	return len(i.entries)
}

// Entries returns a copy of the entries in ingestion order.
func (i *Index) Entries() []models.CatalogEntry {
	if i == nil {
		return nil
	}
	return append([]models.CatalogEntry(nil), i.entries...)
}

// PromptText renders the catalog for the system prompt as
// "[id] name = CURprice :: description" joined by " | ".
func (i *Index) PromptText() string {
	if i.Len() == 0 {
		return ""
	}
	parts := make([]string, 0, len(i.entries))
	for _, e := range i.entries {
		line := fmt.Sprintf("[%s] %s = %s%d", e.ID, e.Name, e.Currency, e.UnitPrice)
		if e.Description != "" {
			line += " :: " + e.Description
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, " | ")
}
