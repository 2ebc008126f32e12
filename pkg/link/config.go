package link

import (
	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/zeus-link/pkg/modem"
	"github.com/lk2023060901/zeus-link/pkg/scheduler"
)

// Config 链路建立配置
type Config struct {
	// Credentials 接入参数
	Credentials modem.Credentials `yaml:",inline"`

	// MaxAttempts 命令通道与链路协商阶段各自的最大尝试次数，默认 3
	MaxAttempts int `yaml:"max_attempts"`

	// Backoff 两次尝试之间的退避策略，默认固定 4 秒
	Backoff scheduler.BackoffOptions `yaml:"backoff"`

	// AutoConnect 启动时自动建立链路
	AutoConnect bool `yaml:"auto_connect"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		Backoff:     scheduler.DefaultBackoffOptions(),
		AutoConnect: true,
	}
}

// Validate 验证配置
func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return errors.Wrap(ErrInvalidConfig, "max_attempts must be at least 1")
	}
	if c.Backoff.Initial < 0 || c.Backoff.Max < 0 {
		return errors.Wrap(ErrInvalidConfig, "backoff durations must not be negative")
	}
	switch c.Backoff.Strategy {
	case scheduler.BackoffNone, scheduler.BackoffFixed:
	case scheduler.BackoffExponential:
		if c.Backoff.Multiplier < 1 {
			return errors.Wrap(ErrInvalidConfig, "backoff multiplier must be at least 1")
		}
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown backoff strategy %q", c.Backoff.Strategy)
	}
	return nil
}
