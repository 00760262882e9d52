package expander

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"inventory-engine/internal/compiler"
	"inventory-engine/internal/models"
	"inventory-engine/internal/util"

	"go.uber.org/zap"
)

// ErrUnknownMenuItem is returned when any line in an order tree references a
// menu item the catalog does not know. The whole expansion fails, never a
// partial manifest.
var ErrUnknownMenuItem = errors.New("unknown menu item")

// OrderLine is one node of an order-line tree. Children is non-empty only
// for combo parents; each child is itself an order line. A combo parent may
// carry recipes of its own (packaging), compiled like any leaf.
type OrderLine struct {
	MenuItemID         string      `json:"menu_item_id" binding:"required"`
	Quantity           int         `json:"quantity" binding:"required,min=1"`
	SelectedVariantIDs []string    `json:"selected_variant_ids,omitempty"`
	Children           []OrderLine `json:"children,omitempty"`
}

// MenuChecker validates menu item references against the catalog.
type MenuChecker interface {
	MenuItemExists(ctx context.Context, storeID, menuItemID string) (bool, error)
}

// Expander walks an order-line tree, compiles every node, and merges the
// results into one flat deduction manifest.
type Expander struct {
	compiler *compiler.Compiler
	menu     MenuChecker
	logger   *zap.Logger
}

// New creates a new order-line expander
func New(c *compiler.Compiler, menu MenuChecker) *Expander {
	return &Expander{
		compiler: c,
		menu:     menu,
		logger:   util.GetLogger(),
	}
}

// Expand compiles an order line and all its descendants and merges the
// per-inventory-item totals into one manifest, preserving every applied
// recipe for audit display. Expansion is read-only.
func (e *Expander) Expand(ctx context.Context, storeID string, line OrderLine) (*models.Manifest, error) {
	ctx, span := util.StartSpan(ctx, "Expander.Expand")
	defer span.End()

	merged := make(map[string]*models.CompiledRecipe)
	if err := e.expandInto(ctx, storeID, line, merged); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(merged))
	for id := range merged {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	manifest := &models.Manifest{Lines: make([]models.CompiledRecipe, 0, len(ids))}
	for _, id := range ids {
		manifest.Lines = append(manifest.Lines, *merged[id])
	}
	return manifest, nil
}

// ExpandAll expands several top-level order lines into one manifest.
func (e *Expander) ExpandAll(ctx context.Context, storeID string, lines []OrderLine) (*models.Manifest, error) {
	merged := make(map[string]*models.CompiledRecipe)
	for _, line := range lines {
		if err := e.expandInto(ctx, storeID, line, merged); err != nil {
			return nil, err
		}
	}

	ids := make([]string, 0, len(merged))
	for id := range merged {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	manifest := &models.Manifest{Lines: make([]models.CompiledRecipe, 0, len(ids))}
	for _, id := range ids {
		manifest.Lines = append(manifest.Lines, *merged[id])
	}
	return manifest, nil
}

// expandInto walks the tree post-order, merging child manifests before the
// parent's own recipes.
func (e *Expander) expandInto(ctx context.Context, storeID string, line OrderLine, merged map[string]*models.CompiledRecipe) error {
	exists, err := e.menu.MenuItemExists(ctx, storeID, line.MenuItemID)
	if err != nil {
		return fmt.Errorf("failed to check menu item %s: %w", line.MenuItemID, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownMenuItem, line.MenuItemID)
	}

	for _, child := range line.Children {
		if err := e.expandInto(ctx, storeID, child, merged); err != nil {
			return err
		}
	}

	compiled, err := e.compiler.Compile(ctx, storeID, line.MenuItemID, line.Quantity, line.SelectedVariantIDs)
	if err != nil {
		return fmt.Errorf("failed to compile %s: %w", line.MenuItemID, err)
	}

	mergeCompiled(merged, compiled)
	return nil
}

// mergeCompiled sums per-inventory-item totals and concatenates provenance.
func mergeCompiled(merged map[string]*models.CompiledRecipe, compiled []models.CompiledRecipe) {
	for _, cr := range compiled {
		existing, ok := merged[cr.InventoryItemID]
		if !ok {
			clone := cr
			clone.Recipes = append([]models.AppliedRecipe(nil), cr.Recipes...)
			merged[cr.InventoryItemID] = &clone
			continue
		}
		existing.TotalQuantity += cr.TotalQuantity
		existing.Recipes = append(existing.Recipes, cr.Recipes...)
	}
}
