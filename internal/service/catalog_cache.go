package service

import (
	"context"
	"time"

	"inventory-engine/internal/models"
	"inventory-engine/internal/redisclient"
	"inventory-engine/internal/store"
	"inventory-engine/internal/util"

	"go.uber.org/zap"
)

// CachedCatalog serves the compiler's catalog reads through a Redis cache.
// Recipes and conditions are read-mostly reference data; catalog edits are
// rare relative to order volume, so a short TTL is staleness enough. Cache
// failures degrade to direct database reads. Inventory rows are never
// cached: stock freshness belongs to the ledger.
type CachedCatalog struct {
	store  *store.Store
	redis  *redisclient.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedCatalog creates a catalog backed by the store with a Redis cache
func NewCachedCatalog(s *store.Store, redis *redisclient.Client, ttl time.Duration) *CachedCatalog {
	return &CachedCatalog{
		store:  s,
		redis:  redis,
		ttl:    ttl,
		logger: util.GetLogger(),
	}
}

// ListActiveRecipes returns the recipes in scope for a menu item
func (c *CachedCatalog) ListActiveRecipes(ctx context.Context, storeID, menuItemID string) ([]models.Recipe, error) {
	key := redisclient.RecipeCacheKey(storeID, menuItemID)

	var cached []models.Recipe
	hit, err := c.redis.GetJSON(ctx, key, &cached)
	if err != nil {
		c.logger.Warn("Recipe cache read failed, falling back to DB", zap.Error(err))
	}
	if hit {
		util.CatalogCacheHits.WithLabelValues("hit").Inc()
		return cached, nil
	}
	util.CatalogCacheHits.WithLabelValues("miss").Inc()

	recipes, err := c.store.ListActiveRecipes(ctx, storeID, menuItemID)
	if err != nil {
		return nil, err
	}

	if err := c.redis.SetJSON(ctx, key, recipes, c.ttl); err != nil {
		c.logger.Warn("Recipe cache write failed", zap.Error(err))
	}
	return recipes, nil
}

// ListConditions returns the conditions for a set of recipes, serving each
// recipe's conditions from cache where possible.
func (c *CachedCatalog) ListConditions(ctx context.Context, recipeIDs []string) ([]models.RecipeCondition, error) {
	var conditions []models.RecipeCondition
	var missing []string

	for _, id := range recipeIDs {
		var cached []models.RecipeCondition
		hit, err := c.redis.GetJSON(ctx, redisclient.ConditionCacheKey(id), &cached)
		if err != nil || !hit {
			missing = append(missing, id)
			continue
		}
		util.CatalogCacheHits.WithLabelValues("hit").Inc()
		conditions = append(conditions, cached...)
	}

	if len(missing) == 0 {
		return conditions, nil
	}
	util.CatalogCacheHits.WithLabelValues("miss").Inc()

	fetched, err := c.store.ListConditions(ctx, missing)
	if err != nil {
		return nil, err
	}

	byRecipe := make(map[string][]models.RecipeCondition)
	for _, cond := range fetched {
		byRecipe[cond.RecipeID] = append(byRecipe[cond.RecipeID], cond)
	}
	for _, id := range missing {
		// Cache empty condition lists too: unconditional recipes are common.
		group := byRecipe[id]
		if group == nil {
			group = []models.RecipeCondition{}
		}
		if err := c.redis.SetJSON(ctx, redisclient.ConditionCacheKey(id), group, c.ttl); err != nil {
			c.logger.Warn("Condition cache write failed", zap.Error(err))
		}
		conditions = append(conditions, group...)
	}

	return conditions, nil
}

// GetInventoryItemsByIDs passes through to the store
func (c *CachedCatalog) GetInventoryItemsByIDs(ctx context.Context, ids []string) ([]models.InventoryItem, error) {
	return c.store.GetInventoryItemsByIDs(ctx, ids)
}

// MenuItemExists passes through to the store
func (c *CachedCatalog) MenuItemExists(ctx context.Context, storeID, menuItemID string) (bool, error) {
	return c.store.MenuItemExists(ctx, storeID, menuItemID)
}
