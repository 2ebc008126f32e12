package conc

import (
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/panjf2000/ants/v2"

	"github.com/lk2023060901/zeus-link/pkg/logger"
)

// ErrPoolFull 表示非阻塞模式下协程池已满。
var ErrPoolFull = errors.New("conc: pool is full")

// PoolOption 协程池选项
type PoolOption func(*poolConfig)

type poolConfig struct {
	nonBlocking  bool
	preAlloc     bool
	panicHandler func(any)
	logger       logger.Printfer
}

// WithNonBlocking 池满时 Submit 立即返回 ErrPoolFull 而不是等待空闲协程。
func WithNonBlocking(v bool) PoolOption {
	return func(c *poolConfig) {
		c.nonBlocking = v
	}
}

// WithPreAlloc 预分配协程队列。
func WithPreAlloc(v bool) PoolOption {
	return func(c *poolConfig) {
		c.preAlloc = v
	}
}

// WithPanicHandler 设置任务 panic 时的处理函数，在任务协程中调用，之后 Future 携带错误完成。
func WithPanicHandler(fn func(any)) PoolOption {
	return func(c *poolConfig) {
		c.panicHandler = fn
	}
}

// WithLogger 设置协程池内部日志输出。
func WithLogger(l logger.Printfer) PoolOption {
	return func(c *poolConfig) {
		c.logger = l
	}
}

// Pool 是基于 ants 的有界协程池，任务结果以 Future 返回。
type Pool[T any] struct {
	inner        *ants.Pool
	panicHandler func(any)
}

// NewPool 创建容量为 size 的协程池。
func NewPool[T any](size int, opts ...PoolOption) (*Pool[T], error) {
	cfg := poolConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	antsOpts := []ants.Option{
		ants.WithNonblocking(cfg.nonBlocking),
		ants.WithPreAlloc(cfg.preAlloc),
	}
	if cfg.logger != nil {
		antsOpts = append(antsOpts, ants.WithLogger(cfg.logger))
	}
	inner, err := ants.NewPool(size, antsOpts...)
	if err != nil {
		return nil, errors.Wrapf(err, "conc: create pool of size %d", size)
	}
	return &Pool[T]{inner: inner, panicHandler: cfg.panicHandler}, nil
}

// NewDefaultPool 创建容量为 CPU 数量两倍的阻塞协程池。
func NewDefaultPool[T any]() *Pool[T] {
	p, err := NewPool[T](runtime.GOMAXPROCS(0) * 2)
	if err != nil {
		panic(err)
	}
	return p
}

// Submit 提交任务，池已满（非阻塞模式）或已释放时返回的 Future 携带错误。
func (p *Pool[T]) Submit(fn func() (T, error)) *Future[T] {
	f := newFuture[T]()
	err := p.inner.Submit(func() {
		var zero T
		value, err := zero, error(nil)
		defer func() {
			if r := recover(); r != nil {
				err = errors.Newf("conc: task panicked: %v", r)
				if p.panicHandler != nil {
					p.panicHandler(r)
				}
			}
			f.complete(value, err)
		}()
		value, err = fn()
	})
	if err != nil {
		var zero T
		if errors.Is(err, ants.ErrPoolOverload) {
			err = ErrPoolFull
		}
		f.complete(zero, err)
	}
	return f
}

// Running 返回正在执行任务的协程数。
func (p *Pool[T]) Running() int {
	return p.inner.Running()
}

// Free 返回空闲容量。
func (p *Pool[T]) Free() int {
	return p.inner.Free()
}

// Cap 返回池容量。
func (p *Pool[T]) Cap() int {
	return p.inner.Cap()
}

// Released 返回协程池是否已释放。
func (p *Pool[T]) Released() bool {
	return p.inner.IsClosed()
}

// Release 释放协程池。
func (p *Pool[T]) Release() {
	p.inner.Release()
}
