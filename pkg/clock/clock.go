package clock

import (
	"sync"
	"sync/atomic"
	"time"
)

// Config 时钟配置
type Config struct {
	// Timezone 时区名称，默认 "UTC"
	Timezone string `yaml:"timezone"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Timezone: "UTC",
	}
}

// Clock 清扫时钟接口
//
// Now 返回最近一次 Tick 缓存的时间加上偏移量，同一次清扫内的所有服务看到同一时刻。
type Clock interface {
	// ===== 时间更新 =====

	// Tick 更新缓存时间（由驱动在每次清扫前调用）
	Tick()

	// ===== 时间偏移（调试与测试用） =====

	// SetOffset 设置时间偏移量
	SetOffset(d time.Duration)

	// AddOffset 增加时间偏移量（可为负数）
	AddOffset(d time.Duration)

	// ResetOffset 重置偏移为 0
	ResetOffset()

	// Offset 获取当前偏移量
	Offset() time.Duration

	// ===== 时间获取 =====

	// Now 获取当前时间（缓存时间 + 偏移量）
	Now() time.Time

	// RealNow 获取真实系统时间（不含缓存和偏移）
	RealNow() time.Time

	// ===== 截止时间 =====

	// Deadline 返回从 Now 起经过 d 后的截止时间
	Deadline(d time.Duration) time.Time

	// Expired 判断截止时间是否已到（零值视为已到）
	Expired(deadline time.Time) bool

	// Since 返回自 t 起经过的时间
	Since(t time.Time) time.Duration

	// Until 返回距 t 的剩余时间，已过期返回 0
	Until(t time.Time) time.Duration
}

// sweepClock Clock 的默认实现
type sweepClock struct {
	location *time.Location

	// 缓存时间（原子操作）
	cachedTime atomic.Value // time.Time

	// 时间偏移
	mu     sync.RWMutex
	offset time.Duration
}

// New 创建时钟
func New(cfg Config) (Clock, error) {
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	c := &sweepClock{location: loc}
	c.cachedTime.Store(time.Now().In(loc))
	return c, nil
}

// MustNew 创建时钟，失败时 panic
func MustNew(cfg Config) Clock {
	c, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return c
}

// ===== 时间更新 =====

func (c *sweepClock) Tick() {
	c.cachedTime.Store(time.Now().In(c.location))
}

// ===== 时间偏移 =====

func (c *sweepClock) SetOffset(d time.Duration) {
	c.mu.Lock()
	c.offset = d
	c.mu.Unlock()
}

func (c *sweepClock) AddOffset(d time.Duration) {
	c.mu.Lock()
	c.offset += d
	c.mu.Unlock()
}

func (c *sweepClock) ResetOffset() {
	c.mu.Lock()
	c.offset = 0
	c.mu.Unlock()
}

func (c *sweepClock) Offset() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}

// ===== 时间获取 =====

func (c *sweepClock) Now() time.Time {
	cached := c.cachedTime.Load().(time.Time)
	return cached.Add(c.Offset())
}

func (c *sweepClock) RealNow() time.Time {
	return time.Now().In(c.location)
}

// ===== 截止时间 =====

func (c *sweepClock) Deadline(d time.Duration) time.Time {
	return c.Now().Add(d)
}

func (c *sweepClock) Expired(deadline time.Time) bool {
	if deadline.IsZero() {
		return true
	}
	return !c.Now().Before(deadline)
}

func (c *sweepClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

func (c *sweepClock) Until(t time.Time) time.Duration {
	d := t.Sub(c.Now())
	if d < 0 {
		return 0
	}
	return d
}
