package order

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/AssadourKH/NEWAIBOT/internal/catalog"
	"github.com/AssadourKH/NEWAIBOT/internal/models"
)

// Intent is the classified meaning of a model reply. The concrete type is one
// of ConfirmedOrder, ModificationSet, Undo or NoIntent.
type Intent interface {
	intentKind() string
}

// Kind names the intent for logs and metrics.
func Kind(i Intent) string {
	if i == nil {
		return NoIntent{}.intentKind()
	}
	return i.intentKind()
}

// PriceSource records where a confirmed order's total came from.
type PriceSource string

const (
	PriceFromModel     PriceSource = "model"
	PriceFromCatalog   PriceSource = "catalog"
	PriceFromReplyText PriceSource = "reply_text"
	PriceUnresolved    PriceSource = "unresolved"
)

// ConfirmedOrder is a complete order the customer agreed to.
type ConfirmedOrder struct {
	DeliveryType models.DeliveryType
	Items        []models.OrderItem
	Price        *int64
	PriceSource  PriceSource
	Address      string
	Phone        string
	Branch       string
	Name         string
}

// ModificationSet is an ordered batch of edits to the pending order.
type ModificationSet struct {
	Changes []Change
}

// Undo reverts the most recent modification.
type Undo struct{}

// NoIntent is a plain conversational reply.
type NoIntent struct{}

func (ConfirmedOrder) intentKind() string  { return "confirmed_order" }
func (ModificationSet) intentKind() string { return "modification" }
func (Undo) intentKind() string            { return "undo" }
func (NoIntent) intentKind() string        { return "none" }

// Change is one edit inside a ModificationSet. The concrete type is one of
// QuantityChange, AddModification, RemoveModification or RemoveItem.
type Change interface {
	TargetID() string
}

type QuantityChange struct {
	ItemID      string
	NewQuantity int
}

type AddModification struct {
	ItemID string
	Mod    string
}

type RemoveModification struct {
	ItemID string
	Mod    string
}

type RemoveItem struct {
	ItemID string
}

func (c QuantityChange) TargetID() string     { return c.ItemID }
func (c AddModification) TargetID() string    { return c.ItemID }
func (c RemoveModification) TargetID() string { return c.ItemID }
func (c RemoveItem) TargetID() string         { return c.ItemID }

var totalPriceRegex = regexp.MustCompile(`\* Total Price:\s*(?:LBP)?\s*([\d,]+)`)

// Extractor classifies model replies. Catalog is used to price confirmed
// orders that arrive without a total.
type Extractor struct {
	Catalog Lookup
}

// NewExtractor creates an Extractor pricing against idx.
func NewExtractor(idx Lookup) *Extractor {
	return &Extractor{Catalog: idx}
}

// Extract finds the JSON object embedded in reply (greedy span from the first
// '{' to the last '}') and classifies it. It never fails: anything that does
// not parse into a known shape is NoIntent.
func (e *Extractor) Extract(reply string) Intent {
	obj, ok := embeddedObject(reply)
	if !ok {
		return NoIntent{}
	}

	if isTrue(obj["undo"]) {
		return Undo{}
	}
	if isTrue(obj["modification"]) {
		return ModificationSet{Changes: parseChanges(obj["changes"])}
	}

	items, ok := parseItems(obj["items"])
	if !ok {
		slog.Warn("order.Extract: JSON object without usable items, treating as plain reply")
		return NoIntent{}
	}
	co := ConfirmedOrder{
		DeliveryType: models.ParseDeliveryType(asString(obj["type"])),
		Items:        items,
		Address:      asString(obj["address"]),
		Phone:        asString(obj["phone"]),
		Branch:       asString(obj["branch"]),
		Name:         asString(obj["name"]),
	}
	e.resolvePrice(&co, obj["price"], reply)
	return co
}

func (e *Extractor) resolvePrice(co *ConfirmedOrder, raw json.RawMessage, reply string) {
	if p, ok := asInt64(raw); ok {
		co.Price = &p
		co.PriceSource = PriceFromModel
		return
	}
	if total, _ := Recompute(co.Items, e.Catalog); total > 0 {
		co.Price = &total
		co.PriceSource = PriceFromCatalog
		return
	}
	if p, ok := PriceFromText(reply); ok {
		co.Price = &p
		co.PriceSource = PriceFromReplyText
		return
	}
	co.PriceSource = PriceUnresolved
}

// PriceFromText scans text for a "* Total Price: N" line.
func PriceFromText(text string) (int64, bool) {
	m := totalPriceRegex.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.ReplaceAll(m[1], ",", ""), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func embeddedObject(reply string) (map[string]json.RawMessage, bool) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(reply[start:end+1]), &obj); err != nil {
		slog.Debug("order.Extract: embedded JSON did not parse", "error", err)
		return nil, false
	}
	if obj == nil {
		return nil, false
	}
	return obj, true
}

type rawChange struct {
	Type        string          `json:"type"`
	ItemID      json.RawMessage `json:"item_id"`
	NewQuantity json.RawMessage `json:"new_quantity"`
	Mod         json.RawMessage `json:"mod"`
}

func parseChanges(raw json.RawMessage) []Change {
	var list []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &list) != nil {
		return nil
	}
	changes := make([]Change, 0, len(list))
	for i, el := range list {
		var rc rawChange
		if err := json.Unmarshal(el, &rc); err != nil {
			slog.Warn("order.Extract: dropping malformed change", "index", i, "error", err)
			continue
		}
		id := asString(rc.ItemID)
		if id == "" {
			slog.Debug("order.Extract: dropping change without item_id", "index", i, "type", rc.Type)
			continue
		}
		switch strings.ToLower(strings.TrimSpace(rc.Type)) {
		case "quantity":
			q, ok := asInt64(rc.NewQuantity)
			if !ok {
				slog.Warn("order.Extract: dropping quantity change without new_quantity", "index", i, "item_id", id)
				continue
			}
			changes = append(changes, QuantityChange{ItemID: id, NewQuantity: int(q)})
		case "add_modification":
			changes = append(changes, AddModification{ItemID: id, Mod: asString(rc.Mod)})
		case "remove_modification":
			changes = append(changes, RemoveModification{ItemID: id, Mod: asString(rc.Mod)})
		case "remove_item":
			changes = append(changes, RemoveItem{ItemID: id})
		default:
			slog.Warn("order.Extract: dropping change with unknown type", "index", i, "type", rc.Type, "item_id", id)
		}
	}
	return changes
}

type rawItem struct {
	ID            json.RawMessage `json:"id"`
	Name          json.RawMessage `json:"name"`
	Quantity      json.RawMessage `json:"quantity"`
	Modifications json.RawMessage `json:"modifications"`
}

func parseItems(raw json.RawMessage) ([]models.OrderItem, bool) {
	var list []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &list) != nil {
		return nil, false
	}
	items := make([]models.OrderItem, 0, len(list))
	for i, el := range list {
		var ri rawItem
		if err := json.Unmarshal(el, &ri); err != nil {
			slog.Warn("order.Extract: dropping malformed item", "index", i, "error", err)
			continue
		}
		item := models.OrderItem{
			ID:            asString(ri.ID),
			Name:          asString(ri.Name),
			Quantity:      1,
			Modifications: asStrings(ri.Modifications),
		}
		if item.ID == "" && item.Name == "" {
			slog.Warn("order.Extract: dropping item without id or name", "index", i)
			continue
		}
		if q, ok := asInt64(ri.Quantity); ok {
			item.Quantity = int(q)
		}
		items = append(items, item)
	}
	return items, len(items) > 0
}

func isNull(raw json.RawMessage) bool {
	t := strings.TrimSpace(string(raw))
	return t == "" || t == "null"
}

func isTrue(raw json.RawMessage) bool {
	var b bool
	return len(raw) > 0 && json.Unmarshal(raw, &b) == nil && b
}

// asString accepts JSON strings and numbers; anything else is "".
func asString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n.String()
	}
	return ""
}

// asInt64 accepts JSON numbers and numeric strings such as "875,000" or
// "LBP 875,000". Fractions are truncated.
func asInt64(raw json.RawMessage) (int64, bool) {
	if isNull(raw) {
		return 0, false
	}
	var f float64
	if json.Unmarshal(raw, &f) == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return int64(f), true
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		if n, _, ok := catalog.ParsePrice(strings.TrimSuffix(strings.TrimSpace(s), " LBP")); ok {
			return n, true
		}
	}
	return 0, false
}

func asStrings(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var list []json.RawMessage
	if json.Unmarshal(raw, &list) != nil {
		if s := asString(raw); s != "" {
			return []string{s}
		}
		return []string{}
	}
	out := make([]string, 0, len(list))
	for _, el := range list {
		if s := asString(el); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c ConfirmedOrder) String() string {
	return fmt.Sprintf("ConfirmedOrder{type=%s items=%d price_source=%s}", c.DeliveryType, len(c.Items), c.PriceSource)
}
