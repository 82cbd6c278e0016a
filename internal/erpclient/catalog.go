package erpclient

import (
	"context"

	"go.uber.org/zap"

	"github.com/autoerp-inspection/backend/internal/cache"
	"github.com/autoerp-inspection/backend/internal/models"
)

// TaxonomySource is the uncached taxonomy fetcher, satisfied by *Client.
type TaxonomySource interface {
	DamageTypes(ctx context.Context) ([]models.DamageType, error)
	InventoryTypes(ctx context.Context) ([]models.InventoryType, error)
	ChecklistItems(ctx context.Context, inventoryTypeID int64) ([]models.ChecklistItem, error)
}

// CachedCatalog serves the taxonomy cache-first and fills the cache on a miss.
type CachedCatalog struct {
	source TaxonomySource
	cache  cache.Cache
	logger *zap.Logger
}

// NewCachedCatalog creates a cache-aside taxonomy reader.
func NewCachedCatalog(source TaxonomySource, c cache.Cache, logger *zap.Logger) *CachedCatalog {
	return &CachedCatalog{
		source: source,
		cache:  c,
		logger: logger,
	}
}

// DamageTypes returns the damage-type taxonomy.
func (c *CachedCatalog) DamageTypes(ctx context.Context) ([]models.DamageType, error) {
	if types, found, err := c.cache.GetDamageTypes(ctx); err == nil && found {
		return types, nil
	}

	types, err := c.source.DamageTypes(ctx)
	if err != nil {
		return nil, err
	}
	_ = c.cache.SetDamageTypes(ctx, types)
	return types, nil
}

// InventoryTypes returns the inventory types ordered by position.
func (c *CachedCatalog) InventoryTypes(ctx context.Context) ([]models.InventoryType, error) {
	if types, found, err := c.cache.GetInventoryTypes(ctx); err == nil && found {
		return types, nil
	}

	types, err := c.source.InventoryTypes(ctx)
	if err != nil {
		return nil, err
	}
	_ = c.cache.SetInventoryTypes(ctx, types)
	return types, nil
}

// ChecklistItems returns the items of one inventory type.
func (c *CachedCatalog) ChecklistItems(ctx context.Context, inventoryTypeID int64) ([]models.ChecklistItem, error) {
	if items, found, err := c.cache.GetChecklistItems(ctx, inventoryTypeID); err == nil && found {
		c.logger.Debug("Returning cached checklist items", zap.Int64("inventory_type_id", inventoryTypeID))
		return items, nil
	}

	items, err := c.source.ChecklistItems(ctx, inventoryTypeID)
	if err != nil {
		return nil, err
	}
	_ = c.cache.SetChecklistItems(ctx, inventoryTypeID, items)
	return items, nil
}
