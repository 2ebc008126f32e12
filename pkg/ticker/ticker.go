// Package ticker 按固定节拍驱动回调，应用用它驱动注册表清扫与日志落盘。
package ticker

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/lk2023060901/zeus-link/pkg/conc"
)

// Handler 定时回调函数，now 为本次触发的时间
type Handler func(now time.Time)

// Ticker 定时器接口
type Ticker interface {
	// Start 启动定时器（阻塞执行），同一个 Ticker 的回调总在同一个协程中串行执行。
	// ctx 取消时返回 ctx.Err()，Stop 时返回 nil
	Start(ctx context.Context) error
	// Stop 停止定时器并等待当前回调返回
	Stop()
	// IsRunning 是否正在运行
	IsRunning() bool
	// Interval 获取间隔时间
	Interval() time.Duration
	// Ticks 返回回调累计执行次数
	Ticks() uint64
}

// Option 定时器选项
type Option func(*ticker)

// WithImmediate 启动后立即执行一次回调，而不是等待第一个间隔。
func WithImmediate() Option {
	return func(t *ticker) {
		t.immediate = true
	}
}

// ticker 定时器实现
type ticker struct {
	interval  time.Duration
	handler   Handler
	immediate bool
	ticks     *atomic.Uint64

	mu       sync.RWMutex
	running  bool
	stopCh   chan struct{}
	stoppedC chan struct{}
}

// New 创建定时器，interval 非正数时使用 1 秒
func New(interval time.Duration, handler Handler, opts ...Option) Ticker {
	if interval <= 0 {
		interval = time.Second
	}
	t := &ticker{
		interval: interval,
		handler:  handler,
		ticks:    atomic.NewUint64(0),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start 启动定时器（阻塞执行）
func (t *ticker) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = true
	t.stopCh = make(chan struct{})
	t.stoppedC = make(chan struct{})
	stopCh := t.stopCh
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.running = false
		close(t.stoppedC)
		t.mu.Unlock()
	}()

	if t.immediate {
		t.fire(time.Now())
	}

	tk := time.NewTicker(t.interval)
	defer tk.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopCh:
			return nil
		case now := <-tk.C:
			t.fire(now)
		}
	}
}

func (t *ticker) fire(now time.Time) {
	if t.handler != nil {
		t.handler(now)
	}
	t.ticks.Inc()
}

// Stop 停止定时器
func (t *ticker) Stop() {
	t.mu.RLock()
	if !t.running {
		t.mu.RUnlock()
		return
	}
	stopCh := t.stopCh
	stoppedC := t.stoppedC
	t.mu.RUnlock()

	select {
	case <-stopCh:
	default:
		close(stopCh)
	}
	<-stoppedC
}

// IsRunning 是否正在运行
func (t *ticker) IsRunning() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}

// Interval 获取间隔时间
func (t *ticker) Interval() time.Duration {
	return t.interval
}

// Ticks 返回回调累计执行次数
func (t *ticker) Ticks() uint64 {
	return t.ticks.Load()
}

// MultiTicker 多定时器管理器，每个定时器运行在自己的协程中
type MultiTicker interface {
	// Add 添加定时器，同名定时器被替换
	Add(name string, interval time.Duration, handler Handler, opts ...Option)
	// Remove 移除并停止定时器
	Remove(name string)
	// Start 启动所有定时器（阻塞执行），ctx 取消时返回 ctx.Err()，Stop 时返回 nil
	Start(ctx context.Context) error
	// Stop 停止所有定时器并等待其退出
	Stop()
	// Get 获取指定定时器
	Get(name string) Ticker
	// Names 获取所有定时器名称（已排序）
	Names() []string
}

// multiTicker 多定时器实现
type multiTicker struct {
	mu      sync.RWMutex
	tickers map[string]Ticker
	running bool
	cancel  context.CancelFunc
	futures []*conc.Future[struct{}]
}

// NewMulti 创建多定时器管理器
func NewMulti() MultiTicker {
	return &multiTicker{
		tickers: make(map[string]Ticker),
	}
}

// Add 添加定时器
func (m *multiTicker) Add(name string, interval time.Duration, handler Handler, opts ...Option) {
	m.mu.Lock()
	old := m.tickers[name]
	m.tickers[name] = New(interval, handler, opts...)
	m.mu.Unlock()
	if old != nil {
		old.Stop()
	}
}

// Remove 移除定时器
func (m *multiTicker) Remove(name string) {
	m.mu.Lock()
	tk, ok := m.tickers[name]
	delete(m.tickers, name)
	m.mu.Unlock()
	if ok {
		tk.Stop()
	}
}

// Start 启动所有定时器
func (m *multiTicker) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true

	parent := ctx
	ctx, m.cancel = context.WithCancel(parent)
	tickers := make([]Ticker, 0, len(m.tickers))
	for _, tk := range m.tickers {
		tickers = append(tickers, tk)
	}
	futures := make([]*conc.Future[struct{}], 0, len(tickers))
	for _, tk := range tickers {
		futures = append(futures, conc.Go(func() (struct{}, error) {
			return struct{}{}, tk.Start(ctx)
		}))
	}
	m.futures = futures
	m.mu.Unlock()

	<-ctx.Done()
	_ = conc.BlockOnAll(futures...)

	m.mu.Lock()
	m.running = false
	m.futures = nil
	m.cancel = nil
	m.mu.Unlock()

	return parent.Err()
}

// Stop 停止所有定时器
func (m *multiTicker) Stop() {
	m.mu.RLock()
	if !m.running || m.cancel == nil {
		m.mu.RUnlock()
		return
	}
	cancel := m.cancel
	futures := m.futures
	m.mu.RUnlock()

	cancel()
	_ = conc.BlockOnAll(futures...)
}

// Get 获取指定定时器
func (m *multiTicker) Get(name string) Ticker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tickers[name]
}

// Names 获取所有定时器名称
func (m *multiTicker) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.tickers))
	for name := range m.tickers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
