package service

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/wyfcoding/clusterd/cache"
	"github.com/wyfcoding/clusterd/worker"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// inlinePool 同步执行任务。
type inlinePool struct{ submitted int }

func (p *inlinePool) TrySubmit(task worker.Task) error {
	p.submitted++
	task(context.Background())
	return nil
}

type fullPool struct{}

func (fullPool) TrySubmit(worker.Task) error { return worker.ErrPoolFull }

// mapCache 记录命中次数的快照缓存。
type mapCache struct {
	mu   sync.Mutex
	m    map[string][]byte
	hits int
}

func newMapCache() *mapCache { return &mapCache{m: map[string][]byte{}} }

func (c *mapCache) Get(key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	if !ok {
		return nil, cache.ErrMiss
	}
	c.hits++
	return v, nil
}

func (c *mapCache) Set(key string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = data
	return nil
}

func (c *mapCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
	return nil
}
