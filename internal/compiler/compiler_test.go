package compiler

import (
	"context"
	"encoding/json"
	"testing"

	"inventory-engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	recipes    []models.Recipe
	conditions map[string][]models.RecipeCondition
	items      map[string]models.InventoryItem
	menuItems  map[string]bool
}

func (f *fakeCatalog) ListActiveRecipes(_ context.Context, storeID, menuItemID string) ([]models.Recipe, error) {
	var out []models.Recipe
	for _, r := range f.recipes {
		if r.StoreID != storeID || !r.IsActive {
			continue
		}
		if r.MenuItemID == nil || *r.MenuItemID == menuItemID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeCatalog) ListConditions(_ context.Context, recipeIDs []string) ([]models.RecipeCondition, error) {
	var out []models.RecipeCondition
	for _, id := range recipeIDs {
		out = append(out, f.conditions[id]...)
	}
	return out, nil
}

func (f *fakeCatalog) GetInventoryItemsByIDs(_ context.Context, ids []string) ([]models.InventoryItem, error) {
	var out []models.InventoryItem
	for _, id := range ids {
		if item, ok := f.items[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeCatalog) MenuItemExists(_ context.Context, _, menuItemID string) (bool, error) {
	return f.menuItems[menuItemID], nil
}

func strPtr(s string) *string { return &s }

// bubbleTeaCatalog builds the store from the classic scenario: an
// unconditional 10g tea-leaves recipe plus a 20g tapioca recipe gated on the
// "Add Pearls" variant.
func bubbleTeaCatalog() *fakeCatalog {
	return &fakeCatalog{
		recipes: []models.Recipe{
			{ID: "recipe-tea", StoreID: "store-1", MenuItemID: strPtr("menu-bubble-tea"),
				InventoryItemID: "item-a-tea", QuantityRequired: 10, Unit: models.UnitGram, IsActive: true},
			{ID: "recipe-pearls", StoreID: "store-1", MenuItemID: strPtr("menu-bubble-tea"),
				InventoryItemID: "item-b-pearls", QuantityRequired: 20, Unit: models.UnitGram, IsActive: true},
		},
		conditions: map[string][]models.RecipeCondition{
			"recipe-pearls": {{ID: "cond-1", RecipeID: "recipe-pearls", VariantID: "variant-add-pearls"}},
		},
		items: map[string]models.InventoryItem{
			"item-a-tea":    {ID: "item-a-tea", StoreID: "store-1", Name: "Tea Leaves", Unit: models.UnitGram},
			"item-b-pearls": {ID: "item-b-pearls", StoreID: "store-1", Name: "Tapioca Pearls", Unit: models.UnitGram},
		},
		menuItems: map[string]bool{"menu-bubble-tea": true},
	}
}

func TestCompileBubbleTeaWithPearls(t *testing.T) {
	c := New(bubbleTeaCatalog())

	compiled, err := c.Compile(context.Background(), "store-1", "menu-bubble-tea", 2, []string{"variant-add-pearls"})
	require.NoError(t, err)
	require.Len(t, compiled, 2)

	assert.Equal(t, "item-a-tea", compiled[0].InventoryItemID)
	assert.Equal(t, 20, compiled[0].TotalQuantity)
	assert.Equal(t, models.UnitGram, compiled[0].Unit)

	assert.Equal(t, "item-b-pearls", compiled[1].InventoryItemID)
	assert.Equal(t, 40, compiled[1].TotalQuantity)
	require.Len(t, compiled[1].Recipes, 1)
	assert.Equal(t, []string{"variant-add-pearls"}, compiled[1].Recipes[0].RequiredVariants)
}

func TestCompileBubbleTeaWithoutPearls(t *testing.T) {
	c := New(bubbleTeaCatalog())

	compiled, err := c.Compile(context.Background(), "store-1", "menu-bubble-tea", 2, nil)
	require.NoError(t, err)

	// No tapioca entry at all, not a zero-quantity entry.
	require.Len(t, compiled, 1)
	assert.Equal(t, "item-a-tea", compiled[0].InventoryItemID)
	assert.Equal(t, 20, compiled[0].TotalQuantity)
}

func TestCompileAndConditionsRequireAllVariants(t *testing.T) {
	catalog := &fakeCatalog{
		recipes: []models.Recipe{
			{ID: "recipe-1", StoreID: "store-1", MenuItemID: strPtr("menu-1"),
				InventoryItemID: "item-1", QuantityRequired: 5, Unit: models.UnitMilliliter, IsActive: true},
		},
		conditions: map[string][]models.RecipeCondition{
			"recipe-1": {
				{ID: "c1", RecipeID: "recipe-1", VariantID: "v1"},
				{ID: "c2", RecipeID: "recipe-1", VariantID: "v2"},
			},
		},
		items: map[string]models.InventoryItem{
			"item-1": {ID: "item-1", Name: "Milk", Unit: models.UnitMilliliter},
		},
	}
	c := New(catalog)

	// Only one of the two required variants selected: must not fire.
	compiled, err := c.Compile(context.Background(), "store-1", "menu-1", 1, []string{"v1"})
	require.NoError(t, err)
	assert.Empty(t, compiled)

	// Both selected (plus an unrelated extra): fires.
	compiled, err = c.Compile(context.Background(), "store-1", "menu-1", 1, []string{"v1", "v2", "v3"})
	require.NoError(t, err)
	require.Len(t, compiled, 1)
	assert.Equal(t, 5, compiled[0].TotalQuantity)
}

func TestCompileGlobalVsScopedRecipes(t *testing.T) {
	catalog := &fakeCatalog{
		recipes: []models.Recipe{
			{ID: "recipe-global", StoreID: "store-1", MenuItemID: nil,
				InventoryItemID: "item-cups", QuantityRequired: 1, Unit: models.UnitPiece, IsActive: true},
			{ID: "recipe-a-only", StoreID: "store-1", MenuItemID: strPtr("menu-a"),
				InventoryItemID: "item-beans", QuantityRequired: 18, Unit: models.UnitGram, IsActive: true},
		},
		conditions: map[string][]models.RecipeCondition{},
		items: map[string]models.InventoryItem{
			"item-cups":  {ID: "item-cups", Name: "Cups", Unit: models.UnitPiece},
			"item-beans": {ID: "item-beans", Name: "Coffee Beans", Unit: models.UnitGram},
		},
	}
	c := New(catalog)

	// Item A gets its own recipe plus the global one.
	compiled, err := c.Compile(context.Background(), "store-1", "menu-a", 1, nil)
	require.NoError(t, err)
	require.Len(t, compiled, 2)

	// Item B only gets the global recipe; A's never applies.
	compiled, err = c.Compile(context.Background(), "store-1", "menu-b", 1, nil)
	require.NoError(t, err)
	require.Len(t, compiled, 1)
	assert.Equal(t, "item-cups", compiled[0].InventoryItemID)
}

func TestCompileGroupsByInventoryItem(t *testing.T) {
	catalog := &fakeCatalog{
		recipes: []models.Recipe{
			{ID: "recipe-1", StoreID: "store-1", MenuItemID: strPtr("menu-1"),
				InventoryItemID: "item-1", QuantityRequired: 10, Unit: models.UnitGram, IsActive: true},
			{ID: "recipe-2", StoreID: "store-1", MenuItemID: strPtr("menu-1"),
				InventoryItemID: "item-1", QuantityRequired: 5, Unit: models.UnitGram, IsActive: true},
		},
		conditions: map[string][]models.RecipeCondition{},
		items: map[string]models.InventoryItem{
			"item-1": {ID: "item-1", Name: "Sugar", Unit: models.UnitGram},
		},
	}
	c := New(catalog)

	compiled, err := c.Compile(context.Background(), "store-1", "menu-1", 3, nil)
	require.NoError(t, err)
	require.Len(t, compiled, 1)
	assert.Equal(t, 45, compiled[0].TotalQuantity) // 3 * (10 + 5)
	assert.Len(t, compiled[0].Recipes, 2)
}

func TestCompileSkipsOrphanedInventoryReference(t *testing.T) {
	catalog := bubbleTeaCatalog()
	delete(catalog.items, "item-b-pearls")
	c := New(catalog)

	compiled, err := c.Compile(context.Background(), "store-1", "menu-bubble-tea", 1, []string{"variant-add-pearls"})
	require.NoError(t, err)
	require.Len(t, compiled, 1)
	assert.Equal(t, "item-a-tea", compiled[0].InventoryItemID)
}

func TestCompileSkipsUnitMismatch(t *testing.T) {
	catalog := bubbleTeaCatalog()
	item := catalog.items["item-b-pearls"]
	item.Unit = models.UnitPiece
	catalog.items["item-b-pearls"] = item
	c := New(catalog)

	compiled, err := c.Compile(context.Background(), "store-1", "menu-bubble-tea", 1, []string{"variant-add-pearls"})
	require.NoError(t, err)
	require.Len(t, compiled, 1)
	assert.Equal(t, "item-a-tea", compiled[0].InventoryItemID)
}

func TestCompileIgnoresInactiveRecipes(t *testing.T) {
	catalog := bubbleTeaCatalog()
	catalog.recipes[0].IsActive = false
	c := New(catalog)

	compiled, err := c.Compile(context.Background(), "store-1", "menu-bubble-tea", 1, nil)
	require.NoError(t, err)
	assert.Empty(t, compiled)
}

func TestCompileNoRecipesIsNotAnError(t *testing.T) {
	c := New(&fakeCatalog{})

	compiled, err := c.Compile(context.Background(), "store-1", "menu-unknown", 1, nil)
	require.NoError(t, err)
	assert.Empty(t, compiled)
}

func TestCompileRejectsNonPositiveQuantity(t *testing.T) {
	c := New(bubbleTeaCatalog())

	_, err := c.Compile(context.Background(), "store-1", "menu-bubble-tea", 0, nil)
	assert.Error(t, err)
}

func TestCompileIsDeterministic(t *testing.T) {
	c := New(bubbleTeaCatalog())
	ctx := context.Background()

	first, err := c.Compile(ctx, "store-1", "menu-bubble-tea", 2, []string{"variant-add-pearls"})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := c.Compile(ctx, "store-1", "menu-bubble-tea", 2, []string{"variant-add-pearls"})
		require.NoError(t, err)
		assert.Equal(t, first, again)

		firstJSON, err := json.Marshal(first)
		require.NoError(t, err)
		againJSON, err := json.Marshal(again)
		require.NoError(t, err)
		assert.Equal(t, firstJSON, againJSON)
	}
}
