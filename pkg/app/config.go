package app

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/lk2023060901/zeus-link/pkg/clock"
	"github.com/lk2023060901/zeus-link/pkg/dns"
	"github.com/lk2023060901/zeus-link/pkg/httpd"
	"github.com/lk2023060901/zeus-link/pkg/link"
	"github.com/lk2023060901/zeus-link/pkg/logger"
	"github.com/lk2023060901/zeus-link/pkg/scheduler"
	"github.com/lk2023060901/zeus-link/pkg/socket"
)

// ErrInvalidConfig 无效的应用配置
var ErrInvalidConfig = errors.New("app: invalid config")

// Config 表示应用配置结构。
type Config struct {
	// Loggers 表示日志配置段。
	Loggers []logger.NamedConfig `yaml:"loggers"`

	// SweepInterval 注册表清扫间隔，默认 10ms
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// LogSyncInterval 日志落盘间隔，默认 1s，0 表示不定时落盘
	LogSyncInterval time.Duration `yaml:"log_sync_interval"`

	// Clock 时钟配置
	Clock clock.Config `yaml:"clock"`

	// Pool I/O 协程池配置
	Pool PoolConfig `yaml:"pool"`

	// Link 链路建立配置
	Link link.Config `yaml:"link"`

	// HTTP 状态页配置
	HTTP httpd.Config `yaml:"http"`

	// DNS 域名解析配置
	DNS dns.Config `yaml:"dns"`

	// Housekeeping 维护任务配置
	Housekeeping scheduler.Config `yaml:"housekeeping"`
}

// PoolConfig I/O 协程池配置
type PoolConfig struct {
	// Size 协程池容量，默认 64
	Size int `yaml:"size"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		SweepInterval:   10 * time.Millisecond,
		LogSyncInterval: time.Second,
		Clock:           clock.DefaultConfig(),
		Pool:            PoolConfig{Size: socket.DefaultPoolSize},
		Link:            link.DefaultConfig(),
		HTTP:            httpd.DefaultConfig(),
		DNS:             dns.DefaultConfig(),
		Housekeeping:    *scheduler.DefaultConfig(),
	}
}

// Validate 验证配置
func (c Config) Validate() error {
	if c.SweepInterval <= 0 {
		return errors.Wrap(ErrInvalidConfig, "sweep_interval must be positive")
	}
	if c.LogSyncInterval < 0 {
		return errors.Wrap(ErrInvalidConfig, "log_sync_interval must not be negative")
	}
	if c.Pool.Size < 0 {
		return errors.Wrap(ErrInvalidConfig, "pool.size must not be negative")
	}
	if err := c.Link.Validate(); err != nil {
		return errors.Wrap(err, "link")
	}
	return nil
}

// LoadConfigFromFile 从 YAML 文件加载应用配置，未出现的字段保留默认值。
func LoadConfigFromFile(path string) (Config, error) {
	cfg := DefaultConfig()
	if err := DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DecodeFile 把 YAML 文件解码到 out，供调用方读取自定义配置段。
func DecodeFile(path string, out any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "app: read config %s", path)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return errors.Wrapf(err, "app: parse config %s", path)
	}
	return nil
}
