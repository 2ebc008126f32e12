// Package logger 提供结构化日志接口、基于 zap 的实现以及按名称获取的日志注册表。
//
// 服务代码运行在清扫协程中且从不阻塞，因此接口不携带 context；写日志失败被忽略。
package logger

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Level 表示日志等级。
type Level int

const (
	// LevelDebug 表示调试级日志。
	LevelDebug Level = iota
	// LevelInfo 表示信息级日志。
	LevelInfo
	// LevelWarn 表示警告级日志。
	LevelWarn
	// LevelError 表示错误级日志。
	LevelError
)

// String 返回等级名称。
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseLevel 解析等级名称，空字符串视为 info。
func ParseLevel(raw string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, errors.Newf("logger: invalid level %q", raw)
	}
}

// Field 表示结构化日志字段。
type Field struct {
	Key   string
	Value any
}

// Logger 定义统一日志接口。
type Logger interface {
	// With 返回附加字段后的 Logger。
	With(fields ...Field) Logger

	// Named 返回带子名称的 Logger，名称以点号连接，例如 linkd.httpd。
	Named(name string) Logger

	// Enabled 判断给定等级是否可输出，用于跳过昂贵的字段构造。
	Enabled(level Level) bool

	// Log 按等级记录日志。
	Log(level Level, msg string, fields ...Field)

	// Debug 记录调试级日志。
	Debug(msg string, fields ...Field)
	// Info 记录信息级日志。
	Info(msg string, fields ...Field)
	// Warn 记录警告级日志。
	Warn(msg string, fields ...Field)
	// Error 记录错误级日志。
	Error(msg string, fields ...Field)

	// Sync 刷新缓冲并落盘（若实现需要）。
	Sync() error
}
