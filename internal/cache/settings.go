package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-warehouse-service/internal/model"
	"github.com/fekuna/omnipos-warehouse-service/internal/replen"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const settingsKeyPrefix = "replen:settings:"

// SettingsCache keeps resolved warehouse settings in Redis so a scan does not
// re-read them for every pick face. Redis errors are treated as misses.
type SettingsCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

var _ replen.SettingsCache = (*SettingsCache)(nil)

func NewSettingsCache(c *RedisClient, ttl time.Duration, log *zap.Logger) *SettingsCache {
	return &SettingsCache{client: c.Client, ttl: ttl, logger: log}
}

func settingsKey(warehouseID int64) string {
	return fmt.Sprintf("%s%d", settingsKeyPrefix, warehouseID)
}

func (c *SettingsCache) GetSettings(ctx context.Context, warehouseID int64) (*model.WarehouseSettings, bool) {
	val, err := c.client.Get(ctx, settingsKey(warehouseID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("settings cache read failed", zap.Int64("warehouse_id", warehouseID), zap.Error(err))
		}
		return nil, false
	}

	var s model.WarehouseSettings
	if err := json.Unmarshal(val, &s); err != nil {
		return nil, false
	}
	return &s, true
}

func (c *SettingsCache) SetSettings(ctx context.Context, warehouseID int64, s *model.WarehouseSettings) {
	data, err := json.Marshal(s)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, settingsKey(warehouseID), data, c.ttl).Err(); err != nil {
		c.logger.Warn("settings cache write failed", zap.Int64("warehouse_id", warehouseID), zap.Error(err))
	}
}
