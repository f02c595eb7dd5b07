package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"settlement-svc/config"
	"settlement-svc/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func InitRedis(cfg config.RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis connection established")
	return rdb, nil
}

// SummaryCache is a read-through cache of recipients' payout period summaries.
// Redis errors degrade to cache misses.
type SummaryCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewSummaryCache(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *SummaryCache {
	return &SummaryCache{rdb: rdb, ttl: ttl, logger: logger}
}

func summaryKey(recipientID string) string {
	return fmt.Sprintf("payout_summaries:%s", recipientID)
}

func (c *SummaryCache) Get(ctx context.Context, recipientID string) ([]models.PayoutPeriodSummary, bool) {
	data, err := c.rdb.Get(ctx, summaryKey(recipientID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Summary cache read failed", zap.String("recipient_id", recipientID), zap.Error(err))
		}
		return nil, false
	}
	var summaries []models.PayoutPeriodSummary
	if err := json.Unmarshal(data, &summaries); err != nil {
		c.logger.Warn("Discarding corrupt summary cache entry", zap.String("recipient_id", recipientID), zap.Error(err))
		return nil, false
	}
	return summaries, true
}

func (c *SummaryCache) Set(ctx context.Context, recipientID string, summaries []models.PayoutPeriodSummary) {
	data, err := json.Marshal(summaries)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, summaryKey(recipientID), data, c.ttl).Err(); err != nil {
		c.logger.Warn("Summary cache write failed", zap.String("recipient_id", recipientID), zap.Error(err))
	}
}

// Invalidate drops cached summaries for the given recipients.
func (c *SummaryCache) Invalidate(ctx context.Context, recipientIDs []string) {
	if len(recipientIDs) == 0 {
		return
	}
	keys := make([]string, len(recipientIDs))
	for i, id := range recipientIDs {
		keys[i] = summaryKey(id)
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("Summary cache invalidation failed", zap.Strings("recipient_ids", recipientIDs), zap.Error(err))
	}
}
