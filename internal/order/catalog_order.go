package order

import (
	"fmt"
	"strings"

	"github.com/AssadourKH/NEWAIBOT/internal/models"
)

// NoCatalogItemsText is the turn text for a catalog order with no products.
const NoCatalogItemsText = "⚠️ No items found in the order."

// FormatCatalogOrder turns a native WhatsApp catalog order into the text the
// model sees, using catalog names and prices rather than client-sent ones.
func FormatCatalogOrder(items []models.ProductItem, idx Lookup) string {
	if len(items) == 0 {
		return NoCatalogItemsText
	}

	lines := []string{"* Items:"}
	var unknown []string
	var total int64
	for _, it := range items {
		qty := it.Quantity
		if qty <= 0 {
			qty = 1
		}
		var (
			e  models.CatalogEntry
			ok bool
		)
		if idx != nil {
			e, ok = idx.FindByID(it.RetailerID)
		}
		if !ok {
			unknown = append(unknown, it.RetailerID)
			continue
		}
		line := int64(qty) * e.UnitPrice
		total += line
		lines = append(lines, fmt.Sprintf("- %d x %s - %s%d", qty, e.Name, e.Currency, line))
	}

	if total > 0 {
		lines = append(lines, fmt.Sprintf("\n* Total Price: %d LBP", total))
	}
	if len(unknown) > 0 {
		lines = append(lines, "\n⚠️ Some items were not found in our menu: "+strings.Join(unknown, ", "))
	}
	return strings.Join(lines, "\n")
}
