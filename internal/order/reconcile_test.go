package order

import (
	"testing"

	"github.com/AssadourKH/NEWAIBOT/internal/models"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingTawouk() *models.OrderContext {
	c := &models.OrderContext{
		DeliveryType: models.DeliveryTypeDelivery,
		Items:        []models.OrderItem{{ID: "a", Name: "Tawouk", Quantity: 2, Modifications: []string{}}},
		Address:      "Zalka",
		Phone:        "+96170000000",
	}
	c.SetPrice(500000)
	return c
}

func TestApplyQuantityChange(t *testing.T) {
	r := NewReconciler(testCatalog())
	c := pendingTawouk()

	out := r.Apply(c, ModificationSet{Changes: []Change{QuantityChange{ItemID: "a", NewQuantity: 3}}})

	assert.Equal(t, OutcomeModified, out.Kind)
	assert.Equal(t, 3, c.Items[0].Quantity)
	assert.Equal(t, int64(750000), c.PriceValue())
	require.Len(t, c.History, 1)
	assert.Equal(t, 2, c.History[0][0].Quantity)
	assert.Contains(t, out.Reply, UpdatedPrefix)
	assert.Contains(t, out.Reply, "3 x Tawouk")
	assert.Contains(t, out.Reply, "* Total Price: 750000 LBP")
}

func TestApplyUndoRestoresExactly(t *testing.T) {
	r := NewReconciler(testCatalog())
	c := pendingTawouk()
	before := models.CloneItems(c.Items)

	r.Apply(c, ModificationSet{Changes: []Change{
		QuantityChange{ItemID: "a", NewQuantity: 5},
		AddModification{ItemID: "a", Mod: "extra garlic"},
	}})
	out := r.Apply(c, Undo{})

	assert.Equal(t, OutcomeUndone, out.Kind)
	if diff := cmp.Diff(before, c.Items); diff != "" {
		t.Errorf("items after undo mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, int64(500000), c.PriceValue())
	assert.Empty(t, c.History)
	assert.Contains(t, out.Reply, UndonePrefix)

	again := r.Apply(c, Undo{})
	assert.Equal(t, OutcomeNothingToUndo, again.Kind)
	assert.Equal(t, NothingToUndoText, again.Reply)
	if diff := cmp.Diff(before, c.Items); diff != "" {
		t.Errorf("second undo changed items (-want +got):\n%s", diff)
	}
}

func TestApplyUndoSteps(t *testing.T) {
	r := NewReconciler(testCatalog())
	c := pendingTawouk()

	r.Apply(c, ModificationSet{Changes: []Change{QuantityChange{ItemID: "a", NewQuantity: 3}}})
	r.Apply(c, ModificationSet{Changes: []Change{QuantityChange{ItemID: "a", NewQuantity: 4}}})
	require.Len(t, c.History, 2)

	r.Apply(c, Undo{})
	assert.Equal(t, 3, c.Items[0].Quantity)
	r.Apply(c, Undo{})
	assert.Equal(t, 2, c.Items[0].Quantity)
}

func TestApplyConfirmationIsSticky(t *testing.T) {
	r := NewReconciler(testCatalog())
	c := &models.OrderContext{}
	price := int64(500000)

	out := r.Apply(c, ConfirmedOrder{
		DeliveryType: models.DeliveryTypeDelivery,
		Items:        []models.OrderItem{{ID: "a", Name: "Tawouk", Quantity: 2, Modifications: []string{}}},
		Price:        &price,
		Address:      "Zalka",
		Phone:        "+96170000000",
	})
	require.Equal(t, OutcomeConfirmed, out.Kind)
	require.True(t, c.Confirmed)
	frozen := c.Clone()

	tests := []struct {
		name   string
		intent Intent
		want   OutcomeKind
	}{
		{"modification", ModificationSet{Changes: []Change{QuantityChange{ItemID: "a", NewQuantity: 9}}}, OutcomeLocked},
		{"empty modification", ModificationSet{}, OutcomeLocked},
		{"reconfirm", ConfirmedOrder{Items: []models.OrderItem{{ID: "b", Quantity: 1}}}, OutcomeLocked},
		{"undo", Undo{}, OutcomeNothingToUndo},
		{"plain reply", NoIntent{}, OutcomeUnchanged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := r.Apply(c, tt.intent)
			assert.Equal(t, tt.want, out.Kind)
			if tt.want == OutcomeLocked {
				assert.Equal(t, LockedText, out.Reply)
			}
			if diff := cmp.Diff(frozen, *c); diff != "" {
				t.Errorf("confirmed context changed (-want +got):\n%s", diff)
			}
		})
	}
}

func TestApplyConfirmClearsHistory(t *testing.T) {
	r := NewReconciler(testCatalog())
	c := pendingTawouk()
	r.Apply(c, ModificationSet{Changes: []Change{QuantityChange{ItemID: "a", NewQuantity: 3}}})
	require.NotEmpty(t, c.History)

	r.Apply(c, ConfirmedOrder{Items: c.Items})
	assert.Empty(t, c.History)
	assert.Equal(t, OutcomeNothingToUndo, r.Apply(c, Undo{}).Kind)
}

func TestApplyConfirmPricesFromCatalog(t *testing.T) {
	r := NewReconciler(testCatalog())

	c := &models.OrderContext{}
	out := r.Apply(c, ConfirmedOrder{
		DeliveryType: models.DeliveryTypeTakeaway,
		Items:        []models.OrderItem{{ID: "b", Name: "Beef Burger", Quantity: 1}, {Name: "Mystery", Quantity: 1}},
		Branch:       "Achrafieh",
		Name:         "Rita",
	})
	assert.Equal(t, int64(400000), c.PriceValue())
	assert.Equal(t, []string{"Mystery"}, out.Unresolved)
	assert.Contains(t, out.Summary, "* Pickup Branch: Achrafieh")

	none := &models.OrderContext{}
	r.Apply(none, ConfirmedOrder{Items: []models.OrderItem{{Name: "Mystery", Quantity: 1}}})
	assert.Nil(t, none.Price)
	assert.True(t, none.Confirmed)
}

func TestApplyUnknownItemIsNoOpButReprices(t *testing.T) {
	r := NewReconciler(testCatalog())
	c := pendingTawouk()
	stale := int64(1)
	c.Price = &stale

	out := r.Apply(c, ModificationSet{Changes: []Change{QuantityChange{ItemID: "does-not-exist", NewQuantity: 7}}})

	assert.Equal(t, OutcomeModified, out.Kind)
	assert.Equal(t, 1, out.Skipped)
	assert.Equal(t, 2, c.Items[0].Quantity)
	assert.Equal(t, int64(500000), c.PriceValue())
}

func TestApplyRemovals(t *testing.T) {
	r := NewReconciler(testCatalog())
	c := &models.OrderContext{Items: []models.OrderItem{
		{ID: "a", Name: "Tawouk", Quantity: 1, Modifications: []string{"no pickles", "extra garlic", "no pickles"}},
		{ID: "b", Name: "Beef Burger", Quantity: 1},
		{ID: "f", Name: "Fries", Quantity: 2},
	}}

	r.Apply(c, ModificationSet{Changes: []Change{
		RemoveModification{ItemID: "a", Mod: "no pickles"},
		RemoveItem{ItemID: "b"},
		QuantityChange{ItemID: "f", NewQuantity: 0},
	}})

	require.Len(t, c.Items, 1)
	assert.Equal(t, []string{"extra garlic", "no pickles"}, c.Items[0].Modifications)
	assert.Equal(t, int64(250000), c.PriceValue())

	r.Apply(c, Undo{})
	assert.Len(t, c.Items, 3, "one undo reverts the whole batch")
}

func TestApplyModificationDoesNotAliasHistory(t *testing.T) {
	r := NewReconciler(testCatalog())
	c := pendingTawouk()
	r.Apply(c, ModificationSet{Changes: []Change{AddModification{ItemID: "a", Mod: "spicy"}}})

	require.Len(t, c.History, 1)
	assert.Empty(t, c.History[0][0].Modifications)
	assert.Equal(t, []string{"spicy"}, c.Items[0].Modifications)
}

func TestApplyAddEmptyModificationIgnored(t *testing.T) {
	r := NewReconciler(testCatalog())
	c := pendingTawouk()
	out := r.Apply(c, ModificationSet{Changes: []Change{AddModification{ItemID: "a"}}})
	assert.Zero(t, out.Skipped)
	assert.Empty(t, c.Items[0].Modifications)
}

func TestExtractAndApplyReplyTextPrice(t *testing.T) {
	x := NewExtractor(testCatalog())
	r := NewReconciler(testCatalog())
	reply := "✅ Your order has been confirmed! Here are your final details:\n* Items:\n  - 1 x Family Platter\n* Total Price: 875,000\n" +
		"```json\n" + `{"type": "delivery", "items": [{"id": "fp", "name": "Family Platter", "quantity": 1}], "price": null, "address": "Jounieh", "phone": "+9613"}` + "\n```"

	c := &models.OrderContext{}
	out := r.Apply(c, x.Extract(reply))

	assert.Equal(t, OutcomeConfirmed, out.Kind)
	assert.Equal(t, int64(875000), c.PriceValue())
}
