package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

type Config struct {
	Addr     string
	Password string
	DB       int
}

type RedisClient struct {
	Client *redis.Client
	locker *redislock.Client
}

// NewRedisClient connects and pings before returning.
func NewRedisClient(cfg *Config) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	return &RedisClient{Client: rdb, locker: redislock.New(rdb)}, nil
}

func (c *RedisClient) Close() error {
	return c.Client.Close()
}

// TryLock takes key for ttl without retrying. obtained is false when another
// holder has it; err is set only when Redis itself failed.
func (c *RedisClient) TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), obtained bool, err error) {
	lock, err := c.locker.Obtain(ctx, key, ttl, nil)
	if err == redislock.ErrNotObtained {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = lock.Release(ctx)
	}, true, nil
}
