package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DomainsKey 服务商域名列表的缓存键
const DomainsKey = "tempmail:provider:domains"

// LocalDomainCache 进程内的域名列表缓存
type LocalDomainCache struct {
	cache *LocalCache[[]string]
}

// NewLocalDomainCache 创建进程内域名缓存
func NewLocalDomainCache(ttl time.Duration) *LocalDomainCache {
	return &LocalDomainCache{cache: NewLocalCache[[]string](1, ttl)}
}

// GetDomains 读取缓存的域名列表
func (c *LocalDomainCache) GetDomains(_ context.Context) ([]string, bool) {
	domains, ok := c.cache.Get(DomainsKey)
	if !ok {
		return nil, false
	}
	return append([]string(nil), domains...), true
}

// SetDomains 写入域名列表
func (c *LocalDomainCache) SetDomains(_ context.Context, domains []string) {
	c.cache.Set(DomainsKey, append([]string(nil), domains...), 0)
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// NewRedisClient 创建 Redis 客户端并测试连接
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

// RedisDomainCache 多个实例共享的域名列表缓存
//
// Redis 不可用时读取视为未命中、写入被忽略，调用方回退到直接请求服务商。
type RedisDomainCache struct {
	client goredis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisDomainCache 创建 Redis 域名缓存
func NewRedisDomainCache(client goredis.UniversalClient, ttl time.Duration, logger *zap.Logger) *RedisDomainCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisDomainCache{client: client, ttl: ttl, logger: logger}
}

// GetDomains 读取缓存的域名列表
func (c *RedisDomainCache) GetDomains(ctx context.Context) ([]string, bool) {
	data, err := c.client.Get(ctx, DomainsKey).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.logger.Warn("redis domain cache read failed", zap.Error(err))
		}
		return nil, false
	}

	var domains []string
	if err := json.Unmarshal(data, &domains); err != nil {
		c.logger.Warn("redis domain cache corrupted", zap.Error(err))
		return nil, false
	}
	if len(domains) == 0 {
		return nil, false
	}
	return domains, true
}

// SetDomains 写入域名列表
func (c *RedisDomainCache) SetDomains(ctx context.Context, domains []string) {
	data, err := json.Marshal(domains)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, DomainsKey, data, c.ttl).Err(); err != nil {
		c.logger.Warn("redis domain cache write failed", zap.Error(err))
	}
}

// Ping 测试 Redis 连接
func (c *RedisDomainCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
