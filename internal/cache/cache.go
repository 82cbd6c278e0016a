// Package cache provides Redis caching for the ERP checklist taxonomy:
// damage types, inventory types and checklist items. The taxonomy changes
// rarely and is fetched on every inspection step mount.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/autoerp-inspection/backend/internal/config"
	"github.com/autoerp-inspection/backend/internal/models"
)

const (
	// Cache key prefixes
	damageTypesKey       = "taxonomy:damage-types"
	inventoryTypesKey    = "taxonomy:inventory-types"
	checklistItemsPrefix = "taxonomy:checklist-items:"
)

// Cache defines the interface for taxonomy caching operations.
// A miss is reported by the boolean, never by the error.
type Cache interface {
	// GetDamageTypes retrieves the cached damage-type taxonomy.
	GetDamageTypes(ctx context.Context) ([]models.DamageType, bool, error)

	// SetDamageTypes stores the damage-type taxonomy.
	SetDamageTypes(ctx context.Context, types []models.DamageType) error

	// GetInventoryTypes retrieves the cached inventory types.
	GetInventoryTypes(ctx context.Context) ([]models.InventoryType, bool, error)

	// SetInventoryTypes stores the inventory types.
	SetInventoryTypes(ctx context.Context, types []models.InventoryType) error

	// GetChecklistItems retrieves the cached items of one inventory type.
	GetChecklistItems(ctx context.Context, inventoryTypeID int64) ([]models.ChecklistItem, bool, error)

	// SetChecklistItems stores the items of one inventory type.
	SetChecklistItems(ctx context.Context, inventoryTypeID int64, items []models.ChecklistItem) error

	// Close closes the cache connection.
	Close() error
}

// RedisCache implements Cache using Redis.
type RedisCache struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// New returns a Redis cache when a Redis URL is configured and a no-op
// cache otherwise.
func New(cfg *config.Config, logger *zap.Logger) (Cache, error) {
	if cfg.RedisURL == "" {
		logger.Info("Taxonomy cache disabled")
		return NopCache{}, nil
	}
	return NewRedisCache(cfg, logger)
}

// NewRedisCache creates a new Redis cache.
func NewRedisCache(cfg *config.Config, logger *zap.Logger) (*RedisCache, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis cache")

	return NewRedisCacheWithClient(client, logger, cfg.CacheTTL), nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client *redis.Client, logger *zap.Logger, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// GetDamageTypes retrieves the cached damage-type taxonomy.
func (c *RedisCache) GetDamageTypes(ctx context.Context) ([]models.DamageType, bool, error) {
	var types []models.DamageType
	found := c.get(ctx, damageTypesKey, &types)
	return types, found, nil
}

// SetDamageTypes stores the damage-type taxonomy.
func (c *RedisCache) SetDamageTypes(ctx context.Context, types []models.DamageType) error {
	return c.set(ctx, damageTypesKey, types)
}

// GetInventoryTypes retrieves the cached inventory types.
func (c *RedisCache) GetInventoryTypes(ctx context.Context) ([]models.InventoryType, bool, error) {
	var types []models.InventoryType
	found := c.get(ctx, inventoryTypesKey, &types)
	return types, found, nil
}

// SetInventoryTypes stores the inventory types.
func (c *RedisCache) SetInventoryTypes(ctx context.Context, types []models.InventoryType) error {
	return c.set(ctx, inventoryTypesKey, types)
}

// GetChecklistItems retrieves the cached items of one inventory type.
func (c *RedisCache) GetChecklistItems(ctx context.Context, inventoryTypeID int64) ([]models.ChecklistItem, bool, error) {
	var items []models.ChecklistItem
	found := c.get(ctx, checklistItemsKey(inventoryTypeID), &items)
	return items, found, nil
}

// SetChecklistItems stores the items of one inventory type.
func (c *RedisCache) SetChecklistItems(ctx context.Context, inventoryTypeID int64, items []models.ChecklistItem) error {
	return c.set(ctx, checklistItemsKey(inventoryTypeID), items)
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	c.logger.Info("Closing Redis connection")
	return c.client.Close()
}

// get loads key into dst. Errors are logged and treated as a miss.
func (c *RedisCache) get(ctx context.Context, key string, dst any) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		c.logger.Warn("Failed to get from cache", zap.String("key", key), zap.Error(err))
		return false
	}

	if err := json.Unmarshal(data, dst); err != nil {
		c.logger.Warn("Failed to unmarshal cached value", zap.String("key", key), zap.Error(err))
		return false
	}

	c.logger.Debug("Cache hit", zap.String("key", key))
	return true
}

func (c *RedisCache) set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("Failed to marshal value for cache", zap.String("key", key), zap.Error(err))
		return err
	}

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("Failed to set cache", zap.String("key", key), zap.Error(err))
		return err
	}

	c.logger.Debug("Cached value", zap.String("key", key))
	return nil
}

func checklistItemsKey(inventoryTypeID int64) string {
	return checklistItemsPrefix + strconv.FormatInt(inventoryTypeID, 10)
}

// NopCache is used when no Redis URL is configured. Every lookup misses.
type NopCache struct{}

func (NopCache) GetDamageTypes(context.Context) ([]models.DamageType, bool, error) {
	return nil, false, nil
}

func (NopCache) SetDamageTypes(context.Context, []models.DamageType) error { return nil }

func (NopCache) GetInventoryTypes(context.Context) ([]models.InventoryType, bool, error) {
	return nil, false, nil
}

func (NopCache) SetInventoryTypes(context.Context, []models.InventoryType) error { return nil }

func (NopCache) GetChecklistItems(context.Context, int64) ([]models.ChecklistItem, bool, error) {
	return nil, false, nil
}

func (NopCache) SetChecklistItems(context.Context, int64, []models.ChecklistItem) error { return nil }

func (NopCache) Close() error { return nil }
