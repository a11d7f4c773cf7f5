// Package cache 提供进程内的字节缓存，底层为 allegro/bigcache。
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
)

// ErrMiss 表示缓存未命中。
var ErrMiss = errors.New("cache miss")

// BigCache 对 bigcache 的薄封装。所有条目共享同一个 TTL。
type BigCache struct {
	cache *bigcache.BigCache
}

// NewBigCache ttl 为全局过期时间，maxMB 为内存上限。
func NewBigCache(ttl time.Duration, maxMB int) (*BigCache, error) {
	cfg := bigcache.DefaultConfig(ttl)
	cfg.HardMaxCacheSize = maxMB
	cfg.CleanWindow = ttl / 2
	if cfg.CleanWindow <= 0 {
		cfg.CleanWindow = time.Minute
	}
	cfg.Verbose = false

	c, err := bigcache.New(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("init bigcache: %w", err)
	}
	return &BigCache{cache: c}, nil
}

// Get 读取原始字节，未命中返回 ErrMiss。
func (c *BigCache) Get(key string) ([]byte, error) {
	data, err := c.cache.Get(key)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return nil, ErrMiss
	}
	return data, err
}

// Set 写入原始字节。
func (c *BigCache) Set(key string, data []byte) error {
	return c.cache.Set(key, data)
}

// Delete 删除键，不存在时不报错。
func (c *BigCache) Delete(key string) error {
	if err := c.cache.Delete(key); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
		return err
	}
	return nil
}

// Len 返回当前条目数。
func (c *BigCache) Len() int {
	return c.cache.Len()
}

// Close 释放后台清理协程。
func (c *BigCache) Close() error {
	return c.cache.Close()
}
