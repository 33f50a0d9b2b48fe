package order

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/AssadourKH/NEWAIBOT/internal/models"
)

// Markers the model appends to summary replies.
const (
	SummaryMarker      = "[ORDER_SUMMARY]"
	ConfirmationMarker = "[ORDER_CONFIRMED]"
)

// Fixed customer-facing texts.
const (
	UpdatedPrefix = "✅ Order updated:"
	UndonePrefix  = "↩️ Last change undone:"
	LockedText    = "❌ Sorry, the order has already been confirmed and can no longer be modified."
	LockedResult  = "Order is locked."
	notAvailable  = "N/A"
)

var (
	itemLineRegex   = regexp.MustCompile(`^(\d+) x (.+?)(?: \((.+?)\))?$`)
	addressRegex    = regexp.MustCompile(`\* Delivery Address: (.+)`)
	branchRegex     = regexp.MustCompile(`\* Pickup Branch: (.+)`)
	phoneRegex      = regexp.MustCompile(`\* Contact Phone: (.+)`)
	nameRegex       = regexp.MustCompile(`\* Customer Name: (.+)`)
	itemsFieldRegex = regexp.MustCompile(`\* Items:\s*(.+)`)
	totalFieldRegex = regexp.MustCompile(`\* Total Price:\s*(.+)`)
	lineTotalSuffix = regexp.MustCompile(`\s+-\s+[A-Z]*\s*[\d,]+(?:\.\d+)?\s*$`)
)

// FormatSummary renders the customer-facing summary of an order context.
func FormatSummary(c models.OrderContext) string {
	var b strings.Builder
	delivery := c.DeliveryType == models.DeliveryTypeDelivery
	if delivery {
		b.WriteString("✅ Your order has been confirmed! Here are your final details:\n")
	} else {
		b.WriteString("✅ Your order is ready for pickup! Here are your details:\n")
	}

	b.WriteString("* Items:\n")
	for _, it := range c.Items {
		name := it.Name
		if name == "" {
			name = "Unknown Item"
		}
		if len(it.Modifications) > 0 {
			fmt.Fprintf(&b, "  - %d x %s (%s)\n", it.Quantity, name, strings.Join(it.Modifications, ", "))
		} else {
			fmt.Fprintf(&b, "  - %d x %s\n", it.Quantity, name)
		}
	}

	if c.Price != nil {
		fmt.Fprintf(&b, "* Total Price: %d LBP\n", *c.Price)
	}

	if delivery {
		fmt.Fprintf(&b, "* Delivery Address: %s\n", orNA(c.Address))
		fmt.Fprintf(&b, "* Contact Phone: %s\n", orNA(c.Phone))
	} else {
		fmt.Fprintf(&b, "* Pickup Branch: %s\n", orNA(c.Branch))
		fmt.Fprintf(&b, "* Customer Name: %s\n", orNA(c.Name))
	}
	b.WriteString("* " + ConfirmationMarker)
	return b.String()
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return notAvailable
	}
	return s
}

// ExtractSummaryItems parses the "- N x Name (mods)" lines that follow
// "* Items:" in a summary. Parsing stops at the first line that is not a
// list entry. A trailing " - LBP500,000" line price is ignored.
func ExtractSummaryItems(summary string) []models.OrderItem {
	var items []models.OrderItem
	for _, line := range summaryItemLines(summary) {
		m := itemLineRegex.FindStringSubmatch(lineTotalSuffix.ReplaceAllString(line, ""))
		if m == nil {
			continue
		}
		qty, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		mods := []string{}
		if raw := m[3]; raw != "" && !strings.EqualFold(raw, "no modifications") {
			for _, mod := range strings.Split(raw, ",") {
				if mod = strings.TrimSpace(mod); mod != "" {
					mods = append(mods, mod)
				}
			}
		}
		items = append(items, models.OrderItem{
			Name:          strings.TrimSpace(m[2]),
			Quantity:      qty,
			Modifications: mods,
		})
	}
	return items
}

// SynthesizeContext rebuilds an unconfirmed order context from summary text.
// It is used when the model sends a summary before any structured payload
// populated the context. fallbackPhone is used when no phone line is present.
// Item ids are resolved by name through idx so later changes can target
// them; idx may be nil.
func SynthesizeContext(summary, fallbackPhone string, idx Lookup) models.OrderContext {
	c := models.OrderContext{
		DeliveryType: models.DeliveryTypeDelivery,
		Items:        ExtractSummaryItems(summary),
		Address:      labeled(addressRegex, summary),
		Phone:        labeled(phoneRegex, summary),
		Branch:       labeled(branchRegex, summary),
		Name:         labeled(nameRegex, summary),
	}
	if strings.Contains(summary, "Pickup Branch") {
		c.DeliveryType = models.DeliveryTypeTakeaway
	}
	if c.Items == nil {
		c.Items = []models.OrderItem{}
	}
	if idx != nil {
		for i := range c.Items {
			if e, ok := idx.FindByNameSubstring(c.Items[i].Name); ok {
				c.Items[i].ID = e.ID
			}
		}
	}
	if p, ok := PriceFromText(summary); ok {
		c.SetPrice(p)
	}
	if c.Phone == "" {
		c.Phone = fallbackPhone
	}
	return c
}

func labeled(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// TemplateParams builds the four body parameters of the order confirmation
// template from summary text: items, total, then address and phone for
// delivery or branch and name for takeaway. When neither section is present
// the flattened summary is sent with "-" placeholders. Template parameters
// cannot carry newlines, so item lines are joined with ", ".
func TemplateParams(summary string) []string {
	items := strings.Join(summaryItemLines(summary), ", ")
	if items == "" {
		items = labeled(itemsFieldRegex, summary)
	}
	total := labeled(totalFieldRegex, summary)
	address := labeled(addressRegex, summary)
	branch := labeled(branchRegex, summary)

	switch {
	case address != "":
		return []string{items, total, address, labeled(phoneRegex, summary)}
	case branch != "":
		return []string{items, total, branch, labeled(nameRegex, summary)}
	default:
		flat := strings.TrimSpace(strings.ReplaceAll(summary, "\n", " "))
		if flat == "" {
			flat = "-"
		}
		return []string{flat, "-", "-", "-"}
	}
}

// summaryItemLines returns the list entries after "* Items:" with their
// leading dash removed, stopping at the first non-entry line.
func summaryItemLines(summary string) []string {
	var lines []string
	inside := false
	for _, line := range strings.Split(summary, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "* Items:") {
			inside = true
			continue
		}
		if !inside {
			continue
		}
		if !strings.HasPrefix(line, "-") {
			break
		}
		lines = append(lines, strings.TrimSpace(strings.TrimPrefix(line, "-")))
	}
	return lines
}

// TemplateText renders template parameters as a plain message for transports
// that cannot send the approved template. "-" placeholders are dropped.
func TemplateText(params []string) string {
	lines := make([]string, 0, len(params)+1)
	lines = append(lines, "Please confirm your order:")
	for _, p := range params {
		if p = strings.TrimSpace(p); p != "" && p != "-" {
			lines = append(lines, p)
		}
	}
	return strings.Join(lines, "\n")
}
