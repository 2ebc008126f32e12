// pkg/scheduler/backoff.go
package scheduler

import (
	"math"
	"time"
)

// Backoff 退避计算器接口
type Backoff interface {
	// Next 计算下一次退避时间
	// attempt 从 1 开始
	Next(attempt int) time.Duration
	// Reset 重置退避状态
	Reset()
}

// NewBackoff 根据策略创建退避计算器
func NewBackoff(opts BackoffOptions) Backoff {
	switch opts.Strategy {
	case BackoffFixed:
		return &fixedBackoff{
			interval: opts.Initial,
		}
	case BackoffExponential:
		return &exponentialBackoff{
			initial:    opts.Initial,
			max:        opts.Max,
			multiplier: opts.Multiplier,
		}
	default:
		return &noBackoff{}
	}
}

// noBackoff 不退避
type noBackoff struct{}

func (b *noBackoff) Next(attempt int) time.Duration {
	return 0
}

func (b *noBackoff) Reset() {}

// fixedBackoff 固定间隔退避
type fixedBackoff struct {
	interval time.Duration
}

func (b *fixedBackoff) Next(attempt int) time.Duration {
	return b.interval
}

func (b *fixedBackoff) Reset() {}

// exponentialBackoff 指数退避
type exponentialBackoff struct {
	initial    time.Duration
	max        time.Duration
	multiplier float64
}

func (b *exponentialBackoff) Next(attempt int) time.Duration {
	if attempt <= 0 {
		return b.initial
	}

	// 计算退避时间: initial * multiplier^(attempt-1)
	backoff := float64(b.initial) * math.Pow(b.multiplier, float64(attempt-1))

	if b.max > 0 && backoff > float64(b.max) {
		return b.max
	}

	return time.Duration(backoff)
}

func (b *exponentialBackoff) Reset() {}

// Retrier 有界重试计数器，用截止时间代替睡眠。
//
// 调用方在每次尝试前调用 Begin，失败后调用 Fail 设置下一次尝试的截止时间，
// 之后在轮询中用 Ready 判断是否可以开始下一次尝试。
type Retrier struct {
	maxAttempts int
	backoff     Backoff

	attempt  int
	deadline time.Time
	waited   time.Duration
}

// NewRetrier 创建最多尝试 maxAttempts 次的重试计数器，maxAttempts 小于 1 时按 1 处理。
func NewRetrier(maxAttempts int, backoff Backoff) *Retrier {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if backoff == nil {
		backoff = &noBackoff{}
	}
	return &Retrier{
		maxAttempts: maxAttempts,
		backoff:     backoff,
	}
}

// Begin 开始一次新的尝试并返回其序号（从 1 开始）。
func (r *Retrier) Begin() int {
	r.attempt++
	r.deadline = time.Time{}
	return r.attempt
}

// Fail 记录当前尝试失败。还有剩余次数时设置截止时间并返回 true。
func (r *Retrier) Fail(now time.Time) bool {
	if r.attempt >= r.maxAttempts {
		return false
	}
	d := r.backoff.Next(r.attempt)
	r.deadline = now.Add(d)
	r.waited += d
	return true
}

// Ready 判断下一次尝试的截止时间是否已到。
func (r *Retrier) Ready(now time.Time) bool {
	return !now.Before(r.deadline)
}

// Attempt 返回当前尝试序号，尚未开始时为 0。
func (r *Retrier) Attempt() int {
	return r.attempt
}

// MaxAttempts 返回最大尝试次数。
func (r *Retrier) MaxAttempts() int {
	return r.maxAttempts
}

// Deadline 返回下一次尝试的截止时间。
func (r *Retrier) Deadline() time.Time {
	return r.deadline
}

// Waited 返回累计的退避时长。
func (r *Retrier) Waited() time.Duration {
	return r.waited
}

// Reset 清零计数，开始新的一轮重试。
func (r *Retrier) Reset() {
	r.attempt = 0
	r.deadline = time.Time{}
	r.waited = 0
	r.backoff.Reset()
}
