// Package order implements order-state reconciliation: turning a model reply
// into a structured intent, applying it to a customer's order context, and
// deciding which outbound side effect follows.
package order

import (
	"log/slog"

	"github.com/AssadourKH/NEWAIBOT/internal/models"
)

// Lookup is the read side of the catalog needed for pricing.
type Lookup interface {
	FindByID(id string) (models.CatalogEntry, bool)
	FindByNameSubstring(name string) (models.CatalogEntry, bool)
}

// Resolve finds the catalog entry for an item: by id first, then by name.
func Resolve(item models.OrderItem, idx Lookup) (models.CatalogEntry, bool) {
	if idx == nil {
		return models.CatalogEntry{}, false
	}
	if item.ID != "" {
		if e, ok := idx.FindByID(item.ID); ok {
			return e, true
		}
	}
	return idx.FindByNameSubstring(item.Name)
}

// Recompute totals items against the catalog. Items that cannot be resolved
// contribute nothing and are returned by name. Non-positive quantities are
// skipped.
func Recompute(items []models.OrderItem, idx Lookup) (total int64, unresolved []string) {
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		e, ok := Resolve(item, idx)
		if !ok {
			unresolved = append(unresolved, itemLabel(item))
			continue
		}
		if e.UnitPrice <= 0 {
			slog.Warn("order.Recompute: catalog entry has no usable price", "id", e.ID, "name", e.Name)
			continue
		}
		total += int64(item.Quantity) * e.UnitPrice
	}
	if len(unresolved) > 0 {
		slog.Warn("order.Recompute: items not found in catalog", "items", unresolved)
	}
	return total, unresolved
}

func itemLabel(item models.OrderItem) string {
	if item.Name != "" {
		return item.Name
	}
	return item.ID
}
