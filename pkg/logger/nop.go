package logger

// Nop 返回一个丢弃所有日志的 Logger，组件未配置日志时使用。
func Nop() Logger {
	return nop
}

type nopLogger struct{}

var nop Logger = nopLogger{}

func (nopLogger) With(...Field) Logger { return nop }
func (nopLogger) Named(string) Logger { return nop }
func (nopLogger) Enabled(Level) bool { return false }
func (nopLogger) Log(Level, string, ...Field) {}
func (nopLogger) Debug(string, ...Field) {}
func (nopLogger) Info(string, ...Field) {}
func (nopLogger) Warn(string, ...Field) {}
func (nopLogger) Error(string, ...Field) {}
func (nopLogger) Sync() error { return nil }
