// pkg/scheduler/config.go
package scheduler

import "time"

// Config 调度器配置
type Config struct {
	// WithSeconds 是否启用秒级精度（6位表达式），默认 false
	WithSeconds bool `yaml:"with_seconds"`

	// Middleware 中间件配置
	Middleware MiddlewareConfig `yaml:"middleware"`

	// Jobs 由配置声明的任务，任务函数在启动时按名称绑定
	Jobs []JobConfig `yaml:"jobs"`
}

// MiddlewareConfig 中间件配置
type MiddlewareConfig struct {
	// Logging 启用日志记录
	Logging bool `yaml:"logging"`

	// Recovery 启用 panic 恢复，保证 Poll 不会中断整次清扫
	Recovery bool `yaml:"recovery"`
}

// JobConfig 配置中的任务声明
type JobConfig struct {
	// Name 任务名称
	Name string `yaml:"name"`

	// Spec Cron 表达式或 @every 描述符
	Spec string `yaml:"spec"`
}

// BackoffStrategy 退避策略
type BackoffStrategy string

const (
	// BackoffNone 不退避
	BackoffNone BackoffStrategy = "none"
	// BackoffFixed 固定间隔退避
	BackoffFixed BackoffStrategy = "fixed"
	// BackoffExponential 指数退避
	BackoffExponential BackoffStrategy = "exponential"
)

// BackoffOptions 退避选项
type BackoffOptions struct {
	// Strategy 退避策略
	Strategy BackoffStrategy `yaml:"strategy"`

	// Initial 初始退避时间
	Initial time.Duration `yaml:"initial"`

	// Max 最大退避时间（仅 exponential 有效）
	Max time.Duration `yaml:"max"`

	// Multiplier 退避乘数（仅 exponential 有效）
	Multiplier float64 `yaml:"multiplier"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		WithSeconds: false,
		Middleware: MiddlewareConfig{
			Logging:  true,
			Recovery: true,
		},
	}
}

// DefaultBackoffOptions 返回默认退避选项：固定 4 秒。
func DefaultBackoffOptions() BackoffOptions {
	return BackoffOptions{
		Strategy:   BackoffFixed,
		Initial:    4 * time.Second,
		Max:        30 * time.Second,
		Multiplier: 2.0,
	}
}
