package compiler

import (
	"context"
	"fmt"
	"sort"

	"inventory-engine/internal/models"
	"inventory-engine/internal/util"

	"go.uber.org/zap"
)

// Catalog is the read interface the compiler consumes. Recipes, conditions,
// and inventory metadata are read-mostly reference data.
type Catalog interface {
	ListActiveRecipes(ctx context.Context, storeID, menuItemID string) ([]models.Recipe, error)
	ListConditions(ctx context.Context, recipeIDs []string) ([]models.RecipeCondition, error)
	GetInventoryItemsByIDs(ctx context.Context, ids []string) ([]models.InventoryItem, error)
}

// Compiler resolves which recipes apply to an ordered menu item and
// aggregates them into per-inventory-item requirements. Compilation is a
// pure function of its inputs: identical inputs produce identical output,
// ordered by inventory item id.
type Compiler struct {
	catalog Catalog
	logger  *zap.Logger
}

// New creates a new recipe compiler
func New(catalog Catalog) *Compiler {
	return &Compiler{
		catalog: catalog,
		logger:  util.GetLogger(),
	}
}

// matches reports whether every condition variant is present in the selected
// set. A recipe with no conditions always matches.
func matches(conditions []models.RecipeCondition, selected map[string]bool) bool {
	for _, cond := range conditions {
		if !selected[cond.VariantID] {
			return false
		}
	}
	return true
}

// Compile computes the deduction requirements for one ordered menu item.
// Global recipes and recipes scoped to the item are considered; a recipe
// fires iff all its condition variants are among the selected variants.
// Matching recipes are grouped by inventory item, summed, and multiplied by
// the order quantity. Items with no matching recipe are simply absent.
func (c *Compiler) Compile(ctx context.Context, storeID, menuItemID string, quantity int, selectedVariantIDs []string) ([]models.CompiledRecipe, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("quantity must be at least 1, got %d", quantity)
	}

	recipes, err := c.catalog.ListActiveRecipes(ctx, storeID, menuItemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipes: %w", err)
	}
	if len(recipes) == 0 {
		return []models.CompiledRecipe{}, nil
	}

	recipeIDs := make([]string, len(recipes))
	for i, r := range recipes {
		recipeIDs[i] = r.ID
	}
	conditions, err := c.catalog.ListConditions(ctx, recipeIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipe conditions: %w", err)
	}

	conditionsByRecipe := make(map[string][]models.RecipeCondition)
	for _, cond := range conditions {
		conditionsByRecipe[cond.RecipeID] = append(conditionsByRecipe[cond.RecipeID], cond)
	}

	selected := make(map[string]bool, len(selectedVariantIDs))
	for _, id := range selectedVariantIDs {
		selected[id] = true
	}

	var matched []models.Recipe
	itemIDSet := make(map[string]bool)
	for _, recipe := range recipes {
		if !matches(conditionsByRecipe[recipe.ID], selected) {
			continue
		}
		matched = append(matched, recipe)
		itemIDSet[recipe.InventoryItemID] = true
	}
	if len(matched) == 0 {
		return []models.CompiledRecipe{}, nil
	}

	itemIDs := make([]string, 0, len(itemIDSet))
	for id := range itemIDSet {
		itemIDs = append(itemIDs, id)
	}
	sort.Strings(itemIDs)

	items, err := c.catalog.GetInventoryItemsByIDs(ctx, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load inventory items: %w", err)
	}
	itemsByID := make(map[string]models.InventoryItem, len(items))
	for _, item := range items {
		itemsByID[item.ID] = item
	}

	groups := make(map[string]*models.CompiledRecipe)
	for _, recipe := range matched {
		item, ok := itemsByID[recipe.InventoryItemID]
		if !ok {
			// Orphaned reference: the recipe points at an inventory item
			// that no longer exists. Skip it, never abort the compilation.
			c.logger.Warn("Skipping recipe with orphaned inventory reference",
				zap.String("recipe_id", recipe.ID),
				zap.String("inventory_item_id", recipe.InventoryItemID))
			continue
		}
		if recipe.Unit != item.Unit {
			c.logger.Warn("Skipping recipe with unit mismatch",
				zap.String("recipe_id", recipe.ID),
				zap.String("recipe_unit", recipe.Unit),
				zap.String("item_unit", item.Unit))
			continue
		}

		group, ok := groups[recipe.InventoryItemID]
		if !ok {
			group = &models.CompiledRecipe{
				InventoryItemID:   item.ID,
				InventoryItemName: item.Name,
				Unit:              item.Unit,
			}
			groups[recipe.InventoryItemID] = group
		}

		group.TotalQuantity += recipe.QuantityRequired * quantity
		group.Recipes = append(group.Recipes, models.AppliedRecipe{
			RecipeID:         recipe.ID,
			QuantityRequired: recipe.QuantityRequired,
			RequiredVariants: variantIDs(conditionsByRecipe[recipe.ID]),
		})
	}

	compiled := make([]models.CompiledRecipe, 0, len(groups))
	for _, id := range itemIDs {
		group, ok := groups[id]
		if !ok {
			continue
		}
		sort.Slice(group.Recipes, func(i, j int) bool {
			return group.Recipes[i].RecipeID < group.Recipes[j].RecipeID
		})
		compiled = append(compiled, *group)
	}

	util.RecipeCompilationsTotal.Inc()
	return compiled, nil
}

func variantIDs(conditions []models.RecipeCondition) []string {
	if len(conditions) == 0 {
		return nil
	}
	ids := make([]string, len(conditions))
	for i, cond := range conditions {
		ids[i] = cond.VariantID
	}
	sort.Strings(ids)
	return ids
}
