// Package retry 提供带指数退避的重试。训练结果落库时用于吸收数据库的瞬时故障。
package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// Policy 退避参数。Attempts 为总尝试次数，小于 1 按 1 处理。
type Policy struct {
	Attempts   int
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// DefaultPolicy 共尝试 3 次，退避 100ms 起步，上限 2s。
func DefaultPolicy() Policy {
	return Policy{
		Attempts:   3,
		Initial:    100 * time.Millisecond,
		Max:        2 * time.Second,
		Multiplier: 2,
		Jitter:     0.1,
	}
}

// Do 执行 fn 直到成功、retryable 返回 false、次数耗尽或 ctx 结束。
// retryable 为 nil 时所有错误都重试。返回的错误包装最后一次失败。
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error, retryable func(error) bool) error {
	attempts := max(p.Attempts, 1)
	backoff := p.Initial

	var err error
	for i := 1; ; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if i >= attempts || (retryable != nil && !retryable(err)) {
			break
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled after %d attempts: %w", i, err)
		case <-timer.C:
		}
		backoff = p.next(backoff)
	}
	if attempts == 1 {
		return err
	}
	return fmt.Errorf("retry failed after %d attempts: %w", attempts, err)
}

func (p Policy) next(cur time.Duration) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	next := float64(cur) * mult
	if p.Jitter > 0 {
		next += (rand.Float64()*2 - 1) * p.Jitter * next
	}
	if p.Max > 0 {
		return min(time.Duration(next), p.Max)
	}
	return time.Duration(next)
}
