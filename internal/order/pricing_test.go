package order

import (
	"testing"

	"github.com/AssadourKH/NEWAIBOT/internal/catalog"
	"github.com/AssadourKH/NEWAIBOT/internal/models"
	"github.com/stretchr/testify/assert"
)

func testCatalog() *catalog.Index {
	return catalog.Load([]models.CatalogEntry{
		{ID: "a", Name: "Tawouk", UnitPrice: 250000},
		{ID: "b", Name: "Beef Burger", UnitPrice: 400000},
		{ID: "f", Name: "Fries", UnitPrice: 100000},
		{ID: "z", Name: "Water", UnitPrice: 0},
	})
}

func TestRecomputeScenario(t *testing.T) {
	items := []models.OrderItem{{ID: "a", Name: "Tawouk", Quantity: 2, Modifications: []string{}}}
	total, unresolved := Recompute(items, testCatalog())
	assert.Equal(t, int64(500000), total)
	assert.Empty(t, unresolved)
}

func TestRecomputeIsIdempotent(t *testing.T) {
	items := []models.OrderItem{
		{ID: "a", Name: "Tawouk", Quantity: 2},
		{Name: "burger", Quantity: 1},
		{Name: "Shawarma", Quantity: 3},
	}
	idx := testCatalog()
	first, _ := Recompute(items, idx)
	second, _ := Recompute(items, idx)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(900000), first)
}

func TestRecomputeNameFallbackAndMisses(t *testing.T) {
	items := []models.OrderItem{
		{ID: "stale-id", Name: "fries", Quantity: 2},
		{ID: "nope", Name: "Shawarma", Quantity: 1},
		{Name: "Water", Quantity: 4},
	}
	total, unresolved := Recompute(items, testCatalog())
	assert.Equal(t, int64(200000), total, "id miss falls back to name; zero-priced entry adds nothing")
	assert.Equal(t, []string{"Shawarma"}, unresolved)
}

func TestRecomputeNonPositiveQuantity(t *testing.T) {
	items := []models.OrderItem{{ID: "a", Quantity: 0}, {ID: "b", Quantity: -2}}
	total, _ := Recompute(items, testCatalog())
	assert.Zero(t, total)
}

func TestRecomputeEmptyCatalog(t *testing.T) {
	total, unresolved := Recompute([]models.OrderItem{{ID: "a", Name: "Tawouk", Quantity: 1}}, catalog.Empty())
	assert.Zero(t, total)
	assert.Equal(t, []string{"Tawouk"}, unresolved)
}
