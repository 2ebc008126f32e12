package logger

import (
	"fmt"
	"strings"
)

// Printfer 是只接受格式化单行文本的日志接收方，第三方库（如 ants）使用该形式。
type Printfer interface {
	Printf(format string, args ...any)
}

// AsPrintf 把 Logger 适配为按固定等级输出的 Printfer。
func AsPrintf(l Logger, level Level) Printfer {
	if l == nil {
		l = Nop()
	}
	return printfLogger{base: l, level: level}
}

type printfLogger struct {
	base  Logger
	level Level
}

func (p printfLogger) Printf(format string, args ...any) {
	msg := strings.TrimRight(fmt.Sprintf(format, args...), "\r\n")
	switch p.level {
	case LevelDebug:
		p.base.Debug(msg)
	case LevelWarn:
		p.base.Warn(msg)
	case LevelError:
		p.base.Error(msg)
	default:
		p.base.Info(msg)
	}
}
