// Package worker 提供有界队列的后台任务池，聚类训练在这里执行，HTTP 处理器不会被阻塞。
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/wyfcoding/clusterd/async"
	"github.com/wyfcoding/clusterd/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ErrPoolClosed = errors.New("worker pool is closed")
	ErrPoolFull   = errors.New("worker pool is full")
)

// Task 是 worker 执行的任务函数，ctx 在池被强制关闭时取消。
type Task func(ctx context.Context)

// Pool 是一个固定 worker 数量、有界队列的任务池。
type Pool struct {
	tasks   chan Task
	ctx     context.Context
	cancel  context.CancelFunc
	options *poolOptions
	queue   prometheus.Gauge
	running prometheus.Gauge
	wg      sync.WaitGroup
	mu      sync.RWMutex // 保护 closed 与 tasks 的关闭
	closed  bool
	active  atomic.Int32
}

type poolOptions struct {
	Logger       *slog.Logger
	PanicHandler func(any)
	Metrics      *metrics.Metrics
	Name         string
	Size         int
	QueueSize    int
}

// Option 定义配置选项。
type Option func(*poolOptions)

// WithName 设置池名称。
func WithName(name string) Option {
	return func(o *poolOptions) { o.Name = name }
}

// WithSize 设置 worker 数量。
func WithSize(size int) Option {
	return func(o *poolOptions) {
		if size > 0 {
			o.Size = size
		}
	}
}

// WithQueueSize 设置任务队列大小。
func WithQueueSize(size int) Option {
	return func(o *poolOptions) {
		if size >= 0 {
			o.QueueSize = size
		}
	}
}

// WithPanicHandler 设置 Panic 处理回调。
func WithPanicHandler(handler func(any)) Option {
	return func(o *poolOptions) { o.PanicHandler = handler }
}

// WithLogger 设置日志记录器。
func WithLogger(l *slog.Logger) Option {
	return func(o *poolOptions) { o.Logger = l }
}

// WithMetrics 注入指标采集器.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *poolOptions) { o.Metrics = m }
}

// NewPool 创建并启动一个 worker 池。
func NewPool(opts ...Option) *Pool {
	options := &poolOptions{
		Name:      "default-pool",
		Size:      4,
		QueueSize: 64,
		Logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		tasks:   make(chan Task, options.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
		options: options,
	}
	if options.Metrics != nil {
		p.queue = options.Metrics.WorkerQueueLength.WithLabelValues(options.Name)
		p.running = options.Metrics.WorkerActive.WithLabelValues(options.Name)
	}

	p.start()
	return p
}

func (p *Pool) start() {
	p.options.Logger.Info("Worker pool starting", "name", p.options.Name, "size", p.options.Size, "queue", p.options.QueueSize)
	for range p.options.Size {
		p.wg.Add(1)
		async.SafeGo(func() {
			defer p.wg.Done()
			for task := range p.tasks {
				p.observeQueue()
				p.executeTask(task)
			}
		})
	}
}

func (p *Pool) executeTask(task Task) {
	p.active.Add(1)
	if p.running != nil {
		p.running.Inc()
	}
	defer func() {
		p.active.Add(-1)
		if p.running != nil {
			p.running.Dec()
		}
		if r := recover(); r != nil {
			if p.options.PanicHandler != nil {
				p.options.PanicHandler(r)
			} else {
				p.options.Logger.Error("Worker task panic recovered", "pool", p.options.Name, "panic", r)
			}
		}
	}()
	task(p.ctx)
}

func (p *Pool) observeQueue() {
	if p.queue != nil {
		p.queue.Set(float64(len(p.tasks)))
	}
}

// Submit 提交一个任务，队列满时阻塞直到有空位或 ctx 结束。
func (p *Pool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.tasks <- task:
		p.observeQueue()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit 尝试提交一个任务。如果队列已满，立即返回 ErrPoolFull。
func (p *Pool) TrySubmit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.tasks <- task:
		p.observeQueue()
		return nil
	default:
		return ErrPoolFull
	}
}

// Active 返回正在执行的任务数。
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Stop 停止接收新任务并等待队列排空。
// ctx 结束时取消正在运行任务的 ctx，随后仍等待 worker 退出。
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
		p.cancel()
		<-done
	}
	p.cancel()
	p.options.Logger.Info("Worker pool stopped", "name", p.options.Name, "error", err)
	return err
}
