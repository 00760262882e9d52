package expander

import (
	"context"
	"testing"

	"inventory-engine/internal/compiler"
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

// comboCatalog models a combo: the parent consumes a box (packaging), both
// children consume 10g of the same syrup each.
func comboCatalog() *fakeCatalog {
	return &fakeCatalog{
		recipes: []models.Recipe{
			{ID: "recipe-box", StoreID: "store-1", MenuItemID: strPtr("menu-combo"),
				InventoryItemID: "item-box", QuantityRequired: 1, Unit: models.UnitPiece, IsActive: true},
			{ID: "recipe-syrup-a", StoreID: "store-1", MenuItemID: strPtr("menu-child-a"),
				InventoryItemID: "item-syrup", QuantityRequired: 10, Unit: models.UnitMilliliter, IsActive: true},
			{ID: "recipe-syrup-b", StoreID: "store-1", MenuItemID: strPtr("menu-child-b"),
				InventoryItemID: "item-syrup", QuantityRequired: 10, Unit: models.UnitMilliliter, IsActive: true},
		},
		conditions: map[string][]models.RecipeCondition{},
		items: map[string]models.InventoryItem{
			"item-box":   {ID: "item-box", Name: "Combo Box", Unit: models.UnitPiece},
			"item-syrup": {ID: "item-syrup", Name: "Vanilla Syrup", Unit: models.UnitMilliliter},
		},
		menuItems: map[string]bool{
			"menu-combo":   true,
			"menu-child-a": true,
			"menu-child-b": true,
		},
	}
}

func newExpander(catalog *fakeCatalog) *Expander {
	return New(compiler.New(catalog), catalog)
}

func TestExpandComboMergesChildren(t *testing.T) {
	e := newExpander(comboCatalog())

	manifest, err := e.Expand(context.Background(), "store-1", OrderLine{
		MenuItemID: "menu-combo",
		Quantity:   1,
		Children: []OrderLine{
			{MenuItemID: "menu-child-a", Quantity: 1},
			{MenuItemID: "menu-child-b", Quantity: 1},
		},
	})
	require.NoError(t, err)
	require.Len(t, manifest.Lines, 2)

	// Two children each requiring 10ml merge into a single 20ml line with
	// both contributing recipes retained.
	byItem := make(map[string]models.CompiledRecipe)
	for _, line := range manifest.Lines {
		byItem[line.InventoryItemID] = line
	}

	syrup := byItem["item-syrup"]
	assert.Equal(t, 20, syrup.TotalQuantity)
	require.Len(t, syrup.Recipes, 2)

	box := byItem["item-box"]
	assert.Equal(t, 1, box.TotalQuantity)
}

func TestExpandLeafLine(t *testing.T) {
	e := newExpander(comboCatalog())

	manifest, err := e.Expand(context.Background(), "store-1", OrderLine{
		MenuItemID: "menu-child-a",
		Quantity:   3,
	})
	require.NoError(t, err)
	require.Len(t, manifest.Lines, 1)
	assert.Equal(t, "item-syrup", manifest.Lines[0].InventoryItemID)
	assert.Equal(t, 30, manifest.Lines[0].TotalQuantity)
}

func TestExpandUnknownMenuItemFailsFast(t *testing.T) {
	e := newExpander(comboCatalog())

	_, err := e.Expand(context.Background(), "store-1", OrderLine{
		MenuItemID: "menu-combo",
		Quantity:   1,
		Children: []OrderLine{
			{MenuItemID: "menu-child-a", Quantity: 1},
			{MenuItemID: "menu-missing", Quantity: 1},
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownMenuItem)
}

func TestExpandManifestIsSortedByInventoryItem(t *testing.T) {
	e := newExpander(comboCatalog())

	manifest, err := e.Expand(context.Background(), "store-1", OrderLine{
		MenuItemID: "menu-combo",
		Quantity:   1,
		Children: []OrderLine{
			{MenuItemID: "menu-child-a", Quantity: 1},
		},
	})
	require.NoError(t, err)
	require.Len(t, manifest.Lines, 2)
	assert.Equal(t, "item-box", manifest.Lines[0].InventoryItemID)
	assert.Equal(t, "item-syrup", manifest.Lines[1].InventoryItemID)
}

func TestExpandAllMergesTopLevelLines(t *testing.T) {
	e := newExpander(comboCatalog())

	manifest, err := e.ExpandAll(context.Background(), "store-1", []OrderLine{
		{MenuItemID: "menu-child-a", Quantity: 1},
		{MenuItemID: "menu-child-b", Quantity: 2},
	})
	require.NoError(t, err)
	require.Len(t, manifest.Lines, 1)
	assert.Equal(t, 30, manifest.Lines[0].TotalQuantity)
}

func TestExpandNestedCombo(t *testing.T) {
	catalog := comboCatalog()
	catalog.menuItems["menu-outer"] = true
	e := newExpander(catalog)

	// Depth two: outer wraps the combo which wraps a child. Unusual in
	// practice but the walk must handle it.
	manifest, err := e.Expand(context.Background(), "store-1", OrderLine{
		MenuItemID: "menu-outer",
		Quantity:   1,
		Children: []OrderLine{
			{
				MenuItemID: "menu-combo",
				Quantity:   1,
				Children: []OrderLine{
					{MenuItemID: "menu-child-a", Quantity: 1},
				},
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, manifest.Lines, 2)
}

func TestExpandEmptyManifestForItemWithoutRecipes(t *testing.T) {
	catalog := comboCatalog()
	catalog.menuItems["menu-bare"] = true
	e := newExpander(catalog)

	manifest, err := e.Expand(context.Background(), "store-1", OrderLine{
		MenuItemID: "menu-bare",
		Quantity:   1,
	})
	require.NoError(t, err)
	assert.True(t, manifest.IsEmpty())
}
