package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"inventory-engine/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// ListActiveRecipes retrieves the active recipes in scope for a menu item:
// recipes scoped to the item plus the store's global recipes.
func (s *Store) ListActiveRecipes(ctx context.Context, storeID, menuItemID string) ([]models.Recipe, error) {
	var recipes []models.Recipe
	err := s.db.SelectContext(ctx, &recipes, `
		SELECT * FROM recipes
		WHERE store_id = $1 AND is_active = TRUE
		  AND (menu_item_id IS NULL OR menu_item_id = $2)
		ORDER BY id`, storeID, menuItemID)
	return recipes, err
}

// ListConditions retrieves the conditions for a set of recipes.
func (s *Store) ListConditions(ctx context.Context, recipeIDs []string) ([]models.RecipeCondition, error) {
	if len(recipeIDs) == 0 {
		return []models.RecipeCondition{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM recipe_conditions WHERE recipe_id IN (?) ORDER BY id", recipeIDs)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var conditions []models.RecipeCondition
	err = s.db.SelectContext(ctx, &conditions, query, args...)
	return conditions, err
}

// GetInventoryItem retrieves an inventory item by ID
func (s *Store) GetInventoryItem(ctx context.Context, id string) (*models.InventoryItem, error) {
	var item models.InventoryItem
	err := s.db.GetContext(ctx, &item, "SELECT * FROM inventory_items WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// GetInventoryItemsByIDs retrieves multiple inventory items by IDs
func (s *Store) GetInventoryItemsByIDs(ctx context.Context, ids []string) ([]models.InventoryItem, error) {
	if len(ids) == 0 {
		return []models.InventoryItem{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM inventory_items WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var items []models.InventoryItem
	err = s.db.SelectContext(ctx, &items, query, args...)
	return items, err
}

// ListVariants retrieves a store's active variants
func (s *Store) ListVariants(ctx context.Context, storeID string) ([]models.Variant, error) {
	var variants []models.Variant
	err := s.db.SelectContext(ctx, &variants,
		"SELECT * FROM variants WHERE store_id = $1 AND is_active = TRUE ORDER BY category, name", storeID)
	return variants, err
}

// MenuItemExists checks whether a menu item exists for the store
func (s *Store) MenuItemExists(ctx context.Context, storeID, menuItemID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM menu_items WHERE id = $1 AND store_id = $2)", menuItemID, storeID)
	return exists, err
}

// GetInventoryLogs retrieves an item's audit log in chain order
func (s *Store) GetInventoryLogs(ctx context.Context, inventoryItemID string, limit int) ([]models.InventoryLog, error) {
	if limit <= 0 {
		limit = 100
	}
	var logs []models.InventoryLog
	err := s.db.SelectContext(ctx, &logs,
		"SELECT * FROM inventory_logs WHERE inventory_item_id = $1 ORDER BY created_at, id LIMIT $2",
		inventoryItemID, limit)
	return logs, err
}

// GetReservations retrieves an order's reservation rows
func (s *Store) GetReservations(ctx context.Context, orderID string) ([]models.StockReservation, error) {
	var rows []models.StockReservation
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM stock_reservations WHERE order_id = $1 ORDER BY inventory_item_id", orderID)
	return rows, err
}
