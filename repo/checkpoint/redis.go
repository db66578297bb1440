package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/go-redis/redis/v8"
)

// redisStore Redis 状态存储，key 为 prefix + checkPointID
type redisStore struct {
	cli    *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisConfig Redis 存储配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration // 0 不过期
}

// NewRedisStore 创建 Redis 存储并检查连接
func NewRedisStore(ctx context.Context, cfg RedisConfig) (compose.CheckPointStore, func() error, error) {
	cli := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(pingCtx).Result(); err != nil {
		_ = cli.Close()
		return nil, nil, fmt.Errorf("NewRedisStore failed, ping %s err: %w", cfg.Addr, err)
	}
	return &redisStore{cli: cli, prefix: cfg.Prefix, ttl: cfg.TTL}, cli.Close, nil
}

// Get 读取，key 不存在返回 false
func (r *redisStore) Get(ctx context.Context, checkPointID string) ([]byte, bool, error) {
	data, err := r.cli.Get(ctx, r.prefix+checkPointID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Set 单次 SET 覆盖写入
func (r *redisStore) Set(ctx context.Context, checkPointID string, checkPoint []byte) error {
	return r.cli.Set(ctx, r.prefix+checkPointID, checkPoint, r.ttl).Err()
}
