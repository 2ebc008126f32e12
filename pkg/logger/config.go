package logger

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

// Config 表示日志配置结构。
type Config struct {
	Loggers []NamedConfig `yaml:"loggers"`
}

// NamedConfig 表示单个具名日志配置。
type NamedConfig struct {
	Name string `yaml:"name"`
	// Filepath 相对路径以可执行文件所在目录为基准
	Filepath   string `yaml:"filepath"`
	Console    string `yaml:"console"`
	Level      string `yaml:"level"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
	// EnableEnv 非空时仅当该环境变量为真值才输出，否则注册为 Nop
	EnableEnv string `yaml:"enable_env"`
}

// zapConfig 转换为 ZapConfig，路径已解析。
func (c NamedConfig) zapConfig() (ZapConfig, error) {
	level, err := ParseLevel(c.Level)
	if err != nil {
		return ZapConfig{}, err
	}
	path := resolveFilepath(c.Filepath)
	if path == "" && strings.TrimSpace(c.Console) == "" {
		return ZapConfig{}, errEmptyLogPath
	}
	return ZapConfig{
		Filepath:   path,
		Console:    c.Console,
		Level:      level,
		MaxSize:    c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAge,
		Compress:   c.Compress,
	}, nil
}

// InitFromConfig 根据配置创建并注册具名日志实例，遇到第一个错误即返回。
func InitFromConfig(cfg Config) error {
	for _, item := range cfg.Loggers {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			return errEmptyLoggerName
		}
		l, err := build(item)
		if err != nil {
			return errors.Wrapf(err, "logger %q", name)
		}
		if err := Register(name, l); err != nil {
			return err
		}
	}
	return nil
}

func build(item NamedConfig) (Logger, error) {
	if !envEnabled(item.EnableEnv) {
		return Nop(), nil
	}
	zc, err := item.zapConfig()
	if err != nil {
		return nil, err
	}
	return NewZapLogger(zc)
}

func envEnabled(key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func resolveFilepath(path string) string {
	if strings.TrimSpace(path) == "" || filepath.IsAbs(path) {
		return path
	}
	exe, err := os.Executable()
	if err != nil {
		return path
	}
	return filepath.Join(filepath.Dir(exe), path)
}
