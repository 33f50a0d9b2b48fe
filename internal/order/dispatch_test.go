package order

import (
	"testing"

	"github.com/AssadourKH/NEWAIBOT/internal/models"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecide(t *testing.T) {
	summary := "Here is your order:\n* Items:\n  - 1 x Tawouk\n* Total Price: 250,000 LBP"

	tests := []struct {
		name  string
		reply string
		want  Decision
	}{
		{"summary marker", summary + "\n* " + SummaryMarker, Decision{Kind: DecisionTemplate, Text: summary}},
		{"summary wins over confirmation", summary + "\n* " + ConfirmationMarker + "\n" + SummaryMarker, Decision{Kind: DecisionTemplate, Text: summary + "\n* " + ConfirmationMarker}},
		{"confirmation marker", "Thanks, we are on it!\n* " + ConfirmationMarker, Decision{Kind: DecisionAck, Text: "Thanks, we are on it!"}},
		{"inline confirmation marker", "Done " + ConfirmationMarker + " enjoy", Decision{Kind: DecisionAck, Text: "Done  enjoy"}},
		{"marker only", ConfirmationMarker, Decision{Kind: DecisionNone}},
		{"blank", "  \n ", Decision{Kind: DecisionNone}},
		{"plain", "What would you like today?", Decision{Kind: DecisionText, Text: "What would you like today?"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.reply))
		})
	}
}

func TestStripPayload(t *testing.T) {
	tests := []struct {
		reply string
		want  string
	}{
		{"Great choice!\n```json\n{\"items\": []}\n```", "Great choice!"},
		{"Before {\"undo\": true} after", "Before  after"},
		{"no payload here", "no payload here"},
		{"} reversed {", "} reversed {"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StripPayload(tt.reply), tt.reply)
	}
}

func TestFormatSummaryDelivery(t *testing.T) {
	c := models.OrderContext{
		DeliveryType: models.DeliveryTypeDelivery,
		Items:        []models.OrderItem{{ID: "a", Name: "Tawouk", Quantity: 2, Modifications: []string{"no pickles"}}},
		Address:      "Zalka",
		Phone:        "961",
	}
	c.SetPrice(500000)

	want := "✅ Your order has been confirmed! Here are your final details:\n" +
		"* Items:\n" +
		"  - 2 x Tawouk (no pickles)\n" +
		"* Total Price: 500000 LBP\n" +
		"* Delivery Address: Zalka\n" +
		"* Contact Phone: 961\n" +
		"* [ORDER_CONFIRMED]"
	assert.Equal(t, want, FormatSummary(c))
}

func TestFormatSummaryTakeawayWithoutPrice(t *testing.T) {
	c := models.OrderContext{
		DeliveryType: models.DeliveryTypeTakeaway,
		Items:        []models.OrderItem{{Name: "Fries", Quantity: 1}, {Quantity: 1}},
		Name:         "Rita",
	}
	want := "✅ Your order is ready for pickup! Here are your details:\n" +
		"* Items:\n" +
		"  - 1 x Fries\n" +
		"  - 1 x Unknown Item\n" +
		"* Pickup Branch: N/A\n" +
		"* Customer Name: Rita\n" +
		"* [ORDER_CONFIRMED]"
	assert.Equal(t, want, FormatSummary(c))
}

const deliverySummary = "Here is your order summary:\n" +
	"* Items:\n" +
	"- 2 x Tawouk (no pickles, extra garlic) - LBP500,000\n" +
	"- 1 x Fries (no modifications)\n" +
	"* Total Price: 600,000 LBP\n" +
	"* Delivery Address: Zalka, near the church\n" +
	"* Contact Phone: +96170000000"

func TestExtractSummaryItems(t *testing.T) {
	want := []models.OrderItem{
		{Name: "Tawouk", Quantity: 2, Modifications: []string{"no pickles", "extra garlic"}},
		{Name: "Fries", Quantity: 1, Modifications: []string{}},
	}
	if diff := cmp.Diff(want, ExtractSummaryItems(deliverySummary)); diff != "" {
		t.Errorf("ExtractSummaryItems() mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, ExtractSummaryItems("no items section"))
}

func TestSynthesizeContext(t *testing.T) {
	c := SynthesizeContext(deliverySummary, "+9613", nil)

	assert.Equal(t, models.DeliveryTypeDelivery, c.DeliveryType)
	assert.Equal(t, "Zalka, near the church", c.Address)
	assert.Equal(t, "+96170000000", c.Phone)
	assert.Equal(t, int64(600000), c.PriceValue())
	assert.Len(t, c.Items, 2)
	assert.False(t, c.Confirmed)

	takeaway := SynthesizeContext("* Items:\n- 1 x Fries\n* Pickup Branch: Achrafieh\n* Customer Name: Rita", "+9613", nil)
	assert.Equal(t, models.DeliveryTypeTakeaway, takeaway.DeliveryType)
	assert.Equal(t, "Achrafieh", takeaway.Branch)
	assert.Equal(t, "+9613", takeaway.Phone, "falls back to the sender's phone")
	assert.Nil(t, takeaway.Price)

	empty := SynthesizeContext("", "", nil)
	assert.NotNil(t, empty.Items)
	assert.False(t, empty.HasItems())
}

func TestSynthesizeContextResolvesItemIDs(t *testing.T) {
	c := SynthesizeContext("* Items:\n- 2 x Tawouk\n- 1 x Mystery Box\n* Pickup Branch: Hamra", "", testCatalog())
	require.Len(t, c.Items, 2)
	assert.Equal(t, "a", c.Items[0].ID)
	assert.Empty(t, c.Items[1].ID, "unknown names stay unresolved")

	r := NewReconciler(testCatalog())
	out := r.Apply(&c, ModificationSet{Changes: []Change{QuantityChange{ItemID: "a", NewQuantity: 3}}})
	assert.Equal(t, OutcomeModified, out.Kind)
	assert.Equal(t, 3, c.Items[0].Quantity)
}

func TestTemplateParams(t *testing.T) {
	assert.Equal(t, []string{
		"2 x Tawouk (no pickles, extra garlic) - LBP500,000, 1 x Fries (no modifications)",
		"600,000 LBP",
		"Zalka, near the church",
		"+96170000000",
	}, TemplateParams(deliverySummary))

	c := models.OrderContext{
		DeliveryType: models.DeliveryTypeTakeaway,
		Items:        []models.OrderItem{{Name: "Fries", Quantity: 2}},
		Branch:       "Achrafieh",
		Name:         "Rita",
	}
	c.SetPrice(200000)
	assert.Equal(t, []string{"2 x Fries", "200000 LBP", "Achrafieh", "Rita"}, TemplateParams(FormatSummary(c)))

	assert.Equal(t, []string{"just a note", "-", "-", "-"}, TemplateParams("just a note"))
	assert.Equal(t, []string{"-", "-", "-", "-"}, TemplateParams(""))
}

func TestFormatCatalogOrder(t *testing.T) {
	got := FormatCatalogOrder([]models.ProductItem{
		{RetailerID: "a", Quantity: 2, ItemPrice: 1, Currency: "USD"},
		{RetailerID: "f", Quantity: 0},
		{RetailerID: "ghost", Quantity: 1},
	}, testCatalog())

	want := "* Items:\n" +
		"- 2 x Tawouk - LBP500000\n" +
		"- 1 x Fries - LBP100000\n" +
		"\n* Total Price: 600000 LBP\n" +
		"\n⚠️ Some items were not found in our menu: ghost"
	assert.Equal(t, want, got)
}

func TestFormatCatalogOrderEdgeCases(t *testing.T) {
	assert.Equal(t, NoCatalogItemsText, FormatCatalogOrder(nil, testCatalog()))

	got := FormatCatalogOrder([]models.ProductItem{{RetailerID: "x", Quantity: 1}}, nil)
	require.Contains(t, got, "not found in our menu: x")
	assert.NotContains(t, got, "Total Price")
}

func TestTemplateText(t *testing.T) {
	got := TemplateText([]string{"1 x Fries", "100000 LBP", "-", " "})
	assert.Equal(t, "Please confirm your order:\n1 x Fries\n100000 LBP", got)
}
