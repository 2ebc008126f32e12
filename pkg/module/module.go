// Package module 定义应用模块的生命周期以及模块初始化时可用的共享运行环境。
package module

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/zeus-link/pkg/clock"
	"github.com/lk2023060901/zeus-link/pkg/logger"
	"github.com/lk2023060901/zeus-link/pkg/service"
	"github.com/lk2023060901/zeus-link/pkg/socket"
)

var (
	// ErrDuplicateModule 模块 ID 重复
	ErrDuplicateModule = errors.New("module: duplicate id")
	// ErrMissingDependency 依赖的模块未注册
	ErrMissingDependency = errors.New("module: missing dependency")
	// ErrDependencyCycle 模块依赖成环
	ErrDependencyCycle = errors.New("module: dependency cycle")
)

// Env 模块共享的运行环境。
//
// Init、Start 与 Stop 在清扫协程之外调用，但总是在清扫开始之前或停止之后，
// 因此模块可以在这些方法中直接创建和销毁服务。
type Env struct {
	Registry *service.Registry
	Clock    clock.Clock
	Pool     *socket.Pool
	Logger   logger.Logger
}

// Module 定义可插拔模块的生命周期。
type Module interface {
	// ID 返回模块的唯一标识。
	ID() string
	// Requires 返回该模块所依赖的模块 ID 列表，依赖总是先于该模块初始化与启动。
	Requires() []string
	// Init 初始化模块，创建其持有的服务。
	Init(ctx context.Context, env *Env) error
	// Start 启动模块。
	Start(ctx context.Context) error
	// Stop 停止模块并释放资源。
	Stop(ctx context.Context) error
}

// Sort 按依赖关系排序模块，同一层级内保持注册顺序。
func Sort(mods []Module) ([]Module, error) {
	byID := make(map[string]Module, len(mods))
	for _, m := range mods {
		if _, ok := byID[m.ID()]; ok {
			return nil, errors.Wrapf(ErrDuplicateModule, "%q", m.ID())
		}
		byID[m.ID()] = m
	}

	const (
		unvisited = iota
		visiting
		visited
	)
	state := make(map[string]int, len(mods))
	out := make([]Module, 0, len(mods))

	var visit func(m Module) error
	visit = func(m Module) error {
		switch state[m.ID()] {
		case visited:
			return nil
		case visiting:
			return errors.Wrapf(ErrDependencyCycle, "at %q", m.ID())
		}
		state[m.ID()] = visiting
		for _, dep := range m.Requires() {
			d, ok := byID[dep]
			if !ok {
				return errors.Wrapf(ErrMissingDependency, "%q requires %q", m.ID(), dep)
			}
			if err := visit(d); err != nil {
				return err
			}
		}
		state[m.ID()] = visited
		out = append(out, m)
		return nil
	}

	for _, m := range mods {
		if err := visit(m); err != nil {
			return nil, err
		}
	}
	return out, nil
}
