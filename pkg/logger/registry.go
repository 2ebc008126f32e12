package logger

import (
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

var (
	errEmptyLoggerName  = errors.New("logger: name is empty")
	errNilLogger        = errors.New("logger: logger is nil")
	errLoggerRegistered = errors.New("logger: name already registered")
)

// 进程级具名日志表，由 InitFromConfig 在启动时填充。
var (
	registryMu     sync.RWMutex
	registryByName = make(map[string]Logger)
)

// Register 注册具名 Logger，同名重复注册返回错误。
func Register(name string, l Logger) error {
	if name == "" {
		return errEmptyLoggerName
	}
	if l == nil {
		return errNilLogger
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registryByName[name]; exists {
		return errors.Wrapf(errLoggerRegistered, "name %q", name)
	}
	registryByName[name] = l
	return nil
}

// Get 按名称获取 Logger。
//
// 名称以点号分层：未注册 linkd.httpd 时回退到 linkd 并以 httpd 作为子名称，
// 整条链都未注册时返回 Nop。
func Get(name string) Logger {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if l, ok := registryByName[name]; ok {
		return l
	}
	for parent := name; ; {
		i := strings.LastIndexByte(parent, '.')
		if i < 0 {
			return Nop()
		}
		parent = parent[:i]
		if l, ok := registryByName[parent]; ok {
			return l.Named(name[i+1:])
		}
	}
}

// Names 返回已注册的 Logger 名称，按字典序排列。
func Names() []string {
	registryMu.RLock()
	names := make([]string, 0, len(registryByName))
	for name := range registryByName {
		names = append(names, name)
	}
	registryMu.RUnlock()
	sort.Strings(names)
	return names
}

// SyncAll 刷新全部已注册 Logger 的缓冲，合并返回所有失败。
func SyncAll() error {
	registryMu.RLock()
	loggers := make([]Logger, 0, len(registryByName))
	for _, l := range registryByName {
		loggers = append(loggers, l)
	}
	registryMu.RUnlock()

	var err error
	for _, l := range loggers {
		err = errors.CombineErrors(err, l.Sync())
	}
	return err
}
