package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"binarynet/internal/model"
	"binarynet/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Config struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl" default:"30s"`
}

const (
	keyPrefix     = "binarynet:tree:"
	generationKey = "binarynet:tree:generation"
)

// TreeCache stores rendered trees in redis. Invalidate bumps a generation counter that is
// part of every key, so stale trees are never read again and simply expire.
type TreeCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return rdb, nil
}

func NewTreeCache(rdb *redis.Client, ttl time.Duration) *TreeCache {
	return &TreeCache{rdb: rdb, ttl: ttl}
}

func (c *TreeCache) key(ctx context.Context, rootID uuid.UUID, depth int) (string, error) {
	gen, err := c.rdb.Get(ctx, generationKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return fmt.Sprintf("%s%d:%s:%d", keyPrefix, gen, rootID, depth), nil
}

func (c *TreeCache) Get(ctx context.Context, rootID uuid.UUID, depth int) (*model.TreeNode, bool) {
	key, err := c.key(ctx, rootID, depth)
	if err != nil {
		logger.Logger().Warn("tree cache unavailable", zap.Error(err))
		return nil, false
	}

	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Logger().Warn("tree cache read failed", zap.Error(err))
		}
		return nil, false
	}

	var tree model.TreeNode
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, false
	}
	return &tree, true
}

func (c *TreeCache) Set(ctx context.Context, rootID uuid.UUID, depth int, tree *model.TreeNode) {
	key, err := c.key(ctx, rootID, depth)
	if err != nil {
		return
	}

	raw, err := json.Marshal(tree)
	if err != nil {
		return
	}

	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		logger.Logger().Warn("tree cache write failed", zap.Error(err))
	}
}

func (c *TreeCache) Invalidate(ctx context.Context) {
	if err := c.rdb.Incr(ctx, generationKey).Err(); err != nil {
		logger.Logger().Warn("tree cache invalidation failed", zap.Error(err))
	}
}
