package scheduler

import (
	"context"

	"github.com/lk2023060901/zeus-link/pkg/module"
)

// ModuleID 维护任务模块标识
const ModuleID = "housekeeping"

// Module 持有调度器的应用模块，配置中声明的任务在 Init 时按名称绑定。
type Module struct {
	cfg      *Config
	funcs    map[string]JobFunc
	requires []string
	sched    *Scheduler
}

// NewModule 创建维护任务模块，requires 为任务函数所依赖的模块。
func NewModule(cfg *Config, funcs map[string]JobFunc, requires ...string) *Module {
	return &Module{
		cfg:      cfg,
		funcs:    funcs,
		requires: requires,
	}
}

// ID 实现 module.Module。
func (m *Module) ID() string {
	return ModuleID
}

// Requires 实现 module.Module。
func (m *Module) Requires() []string {
	return m.requires
}

// Init 创建调度器并绑定配置中的任务。
func (m *Module) Init(_ context.Context, env *module.Env) error {
	m.sched = New(env.Registry, env.Clock, m.cfg, WithLogger(env.Logger))
	return m.sched.BindConfigured(m.funcs)
}

// Start 实现 module.Module，调度器随清扫开始运行。
func (m *Module) Start(_ context.Context) error {
	return nil
}

// Stop 关闭调度器，由注册表回收。
func (m *Module) Stop(_ context.Context) error {
	if m.sched != nil {
		m.sched.Close()
	}
	return nil
}

// Scheduler 返回调度器，Init 之前为 nil。
func (m *Module) Scheduler() *Scheduler {
	return m.sched
}
