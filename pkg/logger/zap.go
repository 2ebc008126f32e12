package logger

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	errEmptyLogPath   = errors.New("logger: log file path is empty")
	errUnknownConsole = errors.New("logger: console must be stdout or stderr")
)

// defaultMaxSizeMB 日志文件未配置大小时的滚动阈值
const defaultMaxSizeMB = 100

// ZapConfig 定义基于 zap 与 lumberjack 的日志配置。
type ZapConfig struct {
	// Filepath 日志文件路径，为空时写控制台
	Filepath string
	// Console 控制台输出目标，stdout 或 stderr，串口调试时使用
	Console string
	Level   Level
	// MaxSize 单个文件上限，单位 MB
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

// ZapLogger 提供基于 zap 的 Logger 实现。
//
// 文件输出使用 JSON 编码便于采集，控制台输出使用可读的文本编码。
type ZapLogger struct {
	base *zap.Logger
}

// NewZapLogger 按配置创建 ZapLogger。
func NewZapLogger(cfg ZapConfig) (*ZapLogger, error) {
	writer, err := newWriteSyncer(cfg)
	if err != nil {
		return nil, err
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeDuration = zapcore.StringDurationEncoder
	encoder := zapcore.NewJSONEncoder(encoderCfg)
	if cfg.Filepath == "" {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, writer, zapLevel(cfg.Level))
	return &ZapLogger{base: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))}, nil
}

func (l *ZapLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	return &ZapLogger{base: l.base.With(zapFields(fields)...)}
}

func (l *ZapLogger) Named(name string) Logger {
	if name == "" {
		return l
	}
	return &ZapLogger{base: l.base.Named(name)}
}

func (l *ZapLogger) Enabled(level Level) bool {
	return l.base.Core().Enabled(zapLevel(level))
}

func (l *ZapLogger) Log(level Level, msg string, fields ...Field) {
	if ce := l.base.Check(zapLevel(level), msg); ce != nil {
		ce.Write(zapFields(fields)...)
	}
}

func (l *ZapLogger) Debug(msg string, fields ...Field) { l.Log(LevelDebug, msg, fields...) }

func (l *ZapLogger) Info(msg string, fields ...Field) { l.Log(LevelInfo, msg, fields...) }

func (l *ZapLogger) Warn(msg string, fields ...Field) { l.Log(LevelWarn, msg, fields...) }

func (l *ZapLogger) Error(msg string, fields ...Field) { l.Log(LevelError, msg, fields...) }

// Sync 刷新缓冲。控制台输出在部分平台上返回 EINVAL，此时忽略。
func (l *ZapLogger) Sync() error {
	err := l.base.Sync()
	if err != nil && isConsoleSyncError(err) {
		return nil
	}
	return err
}

func isConsoleSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "invalid argument") || strings.Contains(msg, "inappropriate ioctl")
}

func newWriteSyncer(cfg ZapConfig) (zapcore.WriteSyncer, error) {
	if cfg.Filepath != "" {
		size := cfg.MaxSize
		if size <= 0 {
			size = defaultMaxSizeMB
		}
		return zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.Filepath,
			MaxSize:    size,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}), nil
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Console)) {
	case "":
		return nil, errEmptyLogPath
	case "stdout":
		return zapcore.Lock(os.Stdout), nil
	case "stderr":
		return zapcore.Lock(os.Stderr), nil
	default:
		return nil, errors.Wrapf(errUnknownConsole, "got %q", cfg.Console)
	}
}

func zapLevel(level Level) zapcore.Level {
	switch level {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// zapFields 转换字段，error 值使用 NamedError 以保留 errorVerbose。
func zapFields(fields []Field) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		switch v := f.Value.(type) {
		case error:
			out = append(out, zap.NamedError(f.Key, v))
		case interface{ String() string }:
			out = append(out, zap.Stringer(f.Key, v))
		default:
			out = append(out, zap.Any(f.Key, v))
		}
	}
	return out
}

var _ Logger = (*ZapLogger)(nil)
