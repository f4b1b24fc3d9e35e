package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"

	"github.com/Buypolar-Capital/buypolarcapital/metrics"
)

var _ Cache = (*BigCache)(nil)

// BigCache 实现了 `Cache` 接口，使用 `allegro/bigcache` 作为底层存储。
// 值以 JSON 序列化后存储；过期时间是全局的。
type BigCache struct {
	cache   *bigcache.BigCache
	name    string
	metrics *metrics.Metrics
}

type bigCacheOptions struct {
	name        string
	shards      int
	cleanWindow time.Duration
	metrics     *metrics.Metrics
}

// Option BigCache 可选配置。
type Option func(*bigCacheOptions)

// WithName 设置缓存名称，用作指标标签。
func WithName(name string) Option {
	return func(o *bigCacheOptions) { o.name = name }
}

// WithShards 设置分片数，必须是 2 的幂。
func WithShards(n int) Option {
	return func(o *bigCacheOptions) { o.shards = n }
}

// WithCleanWindow 设置过期清理周期。
func WithCleanWindow(d time.Duration) Option {
	return func(o *bigCacheOptions) { o.cleanWindow = d }
}

// WithMetrics 记录命中/未命中次数。
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *bigCacheOptions) { o.metrics = m }
}

// NewBigCache 创建并返回一个新的 BigCache 实例。
// ttl: 缓存项的全局过期时间；maxMB: 硬性容量上限（MB），0 表示不限。
func NewBigCache(ttl time.Duration, maxMB int, opts ...Option) (*BigCache, error) {
	o := &bigCacheOptions{name: "default"}
	for _, opt := range opts {
		opt(o)
	}

	config := bigcache.DefaultConfig(ttl)
	config.HardMaxCacheSize = maxMB
	config.Verbose = false
	config.CleanWindow = ttl
	if o.cleanWindow > 0 {
		config.CleanWindow = o.cleanWindow
	}
	if o.shards > 0 {
		config.Shards = o.shards
	}

	cache, err := bigcache.New(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("init bigcache %s: %w", o.name, err)
	}

	return &BigCache{cache: cache, name: o.name, metrics: o.metrics}, nil
}

func (c *BigCache) observe(result string) {
	if c.metrics != nil {
		c.metrics.CacheRequests.WithLabelValues(c.name, result).Inc()
	}
}

// Get 读取 key 并反序列化到 value（必须为指针）；未命中返回 ErrCacheMiss。
func (c *BigCache) Get(_ context.Context, key string, value any) error {
	data, err := c.cache.Get(key)
	if err != nil {
		if errors.Is(err, bigcache.ErrEntryNotFound) {
			c.observe("miss")
			return ErrCacheMiss
		}
		return err
	}
	c.observe("hit")
	return json.Unmarshal(data, value)
}

// Set 写入键值对。BigCache 只支持全局 TTL，expiration 被忽略。
func (c *BigCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.cache.Set(key, data)
}

// Delete 删除一个或多个键，键不存在不视为错误。
func (c *BigCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		if err := c.cache.Delete(key); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
			return err
		}
	}
	return nil
}

// Exists 检查BigCache中是否存在指定的键。
func (c *BigCache) Exists(_ context.Context, key string) (bool, error) {
	_, err := c.cache.Get(key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return false, nil
	}
	return false, err
}

// Len 返回当前条目数。
func (c *BigCache) Len() int {
	return c.cache.Len()
}

// Close 关闭BigCache实例，释放其占用的资源。
func (c *BigCache) Close() error {
	return c.cache.Close()
}
