package cache

import (
	"sync"
	"time"
)

// LocalCache 本地内存缓存
//
// 特点：
// - 支持 TTL 过期，读取时惰性淘汰
// - 容量达到上限时先清理过期条目，仍然不足则淘汰最早过期的条目
// - 过期判断使用可注入的时钟，便于测试
type LocalCache[V any] struct {
	mu      sync.RWMutex
	data    map[string]cacheEntry[V]
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// NewLocalCache 创建本地缓存
//
// 参数:
//   - maxSize: 最大缓存条目数，<=0 表示不限制
//   - ttl: 默认过期时间
func NewLocalCache[V any](maxSize int, ttl time.Duration) *LocalCache[V] {
	return &LocalCache[V]{
		data:    make(map[string]cacheEntry[V]),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// SetClock 替换时钟（测试用）
func (c *LocalCache[V]) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Get 获取缓存值
func (c *LocalCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	entry, ok := c.data[key]
	now := c.now()
	c.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}

	// 检查是否过期
	if !now.Before(entry.expiresAt) {
		c.mu.Lock()
		if current, ok := c.data[key]; ok && !now.Before(current.expiresAt) {
			delete(c.data, key)
		}
		c.mu.Unlock()
		return zero, false
	}

	return entry.value, true
}

// Set 设置缓存值，ttl 为 0 时使用默认过期时间
func (c *LocalCache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl == 0 {
		ttl = c.ttl
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.data[key]; !exists && c.maxSize > 0 && len(c.data) >= c.maxSize {
		c.evictLocked(now)
	}

	c.data[key] = cacheEntry[V]{
		value:     value,
		expiresAt: now.Add(ttl),
	}
}

// evictLocked 清理过期条目；若仍已满则淘汰最早过期的一个
func (c *LocalCache[V]) evictLocked(now time.Time) {
	for key, entry := range c.data {
		if !now.Before(entry.expiresAt) {
			delete(c.data, key)
		}
	}
	if len(c.data) < c.maxSize {
		return
	}

	var (
		oldestKey string
		oldestAt  time.Time
		found     bool
	)
	for key, entry := range c.data {
		if !found || entry.expiresAt.Before(oldestAt) {
			oldestKey, oldestAt, found = key, entry.expiresAt, true
		}
	}
	if found {
		delete(c.data, oldestKey)
	}
}
