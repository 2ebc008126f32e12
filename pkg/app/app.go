package app

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/lk2023060901/zeus-link/pkg/clock"
	"github.com/lk2023060901/zeus-link/pkg/logger"
	"github.com/lk2023060901/zeus-link/pkg/module"
	"github.com/lk2023060901/zeus-link/pkg/service"
	"github.com/lk2023060901/zeus-link/pkg/socket"
	"github.com/lk2023060901/zeus-link/pkg/ticker"
)

var (
	errNilModule        = errors.New("app: module is nil")
	errRegisterLocked   = errors.New("app: register is locked after init")
	errApplicationAlive = errors.New("app: application already started")
	errConfigLocked     = errors.New("app: config is locked after init")
	errNotInitialized   = errors.New("app: application not initialized")
)

const (
	tickerSweep   = "sweep"
	tickerLogSync = "logsync"
)

// Application 定义应用的生命周期与注册入口。
type Application interface {
	// Name 返回应用名称，同时作为应用 Logger 的名称。
	Name() string

	// RegisterModule 注册一个模块，供应用统一管理其生命周期。
	RegisterModule(m module.Module) error

	// Init 加载配置、初始化日志与运行环境，并按依赖顺序初始化所有模块。
	Init(ctx context.Context) error

	// Start 按依赖顺序启动所有模块。
	Start(ctx context.Context) error

	// Run 启动应用并在清扫协程中驱动注册表，直到收到退出信号、上下文取消或 Shutdown。
	Run(ctx context.Context) error

	// Shutdown 触发应用的优雅关闭流程。
	Shutdown(ctx context.Context) error

	// Stop 逆序停止所有模块并销毁注册表中剩余的服务。
	Stop(ctx context.Context) error

	// Modules 返回已注册的模块列表。
	Modules() []module.Module
}

// Option 应用选项
type Option func(*BaseApplication)

// WithRegistry 使用指定的注册表代替进程级注册表。
func WithRegistry(reg *service.Registry) Option {
	return func(a *BaseApplication) {
		a.registry = reg
	}
}

// WithConfig 直接使用给定配置，不再读取配置文件。
func WithConfig(cfg Config) Option {
	return func(a *BaseApplication) {
		a.config = cfg
		a.configSet = true
	}
}

// BaseApplication 提供 Application 的基础实现。
type BaseApplication struct {
	name string

	mu           sync.RWMutex
	modules      []module.Module
	ordered      []module.Module
	configPath   string
	config       Config
	configSet    bool
	initializing bool
	initialized  bool
	started      bool
	running      bool

	registry *service.Registry
	clock    clock.Clock
	pool     *socket.Pool
	logger   logger.Logger
	env      *module.Env

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	runDone      chan struct{}
	runErr       error
}

// NewBaseApplication 创建一个基础应用实例。
func NewBaseApplication(name string, opts ...Option) *BaseApplication {
	a := &BaseApplication{
		name:       name,
		config:     DefaultConfig(),
		logger:     logger.Nop(),
		shutdownCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name 返回应用名称。
func (a *BaseApplication) Name() string {
	return a.name
}

// RegisterModule 注册一个模块，供应用统一管理其生命周期。
func (a *BaseApplication) RegisterModule(m module.Module) error {
	if m == nil {
		return errNilModule
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.initializing || a.initialized || a.started {
		return errRegisterLocked
	}
	a.modules = append(a.modules, m)
	return nil
}

// SetConfigPath 设置应用配置文件路径，需在 Init 前调用。
func (a *BaseApplication) SetConfigPath(path string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.initializing || a.initialized || a.started {
		return errConfigLocked
	}
	a.configPath = path
	return nil
}

// Config 返回生效的配置，Init 之前为默认配置或 WithConfig 给定的配置。
func (a *BaseApplication) Config() Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.config
}

// Env 返回模块共享的运行环境，Init 之前为 nil。
func (a *BaseApplication) Env() *module.Env {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.env
}

// Init 加载配置、初始化日志与运行环境，并按依赖顺序初始化所有模块。
func (a *BaseApplication) Init(ctx context.Context) error {
	a.mu.Lock()
	if a.initialized {
		a.mu.Unlock()
		return nil
	}
	if a.initializing {
		a.mu.Unlock()
		return errApplicationAlive
	}
	a.initializing = true
	modules := append([]module.Module(nil), a.modules...)
	configPath := a.configPath
	cfg := a.config
	configSet := a.configSet
	a.mu.Unlock()

	env, ordered, err := a.initEnv(ctx, configPath, cfg, configSet, modules)

	a.mu.Lock()
	a.initializing = false
	if err == nil {
		a.initialized = true
		a.env = env
		a.ordered = ordered
	}
	a.mu.Unlock()
	return err
}

func (a *BaseApplication) initEnv(
	ctx context.Context,
	configPath string,
	cfg Config,
	configSet bool,
	modules []module.Module,
) (*module.Env, []module.Module, error) {
	if configPath != "" && !configSet {
		loaded, err := LoadConfigFromFile(configPath)
		if err != nil {
			return nil, nil, err
		}
		cfg = loaded
	} else if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	if err := a.initLoggerFromConfig(cfg); err != nil {
		return nil, nil, err
	}
	log := logger.Get(a.name)

	clk, err := clock.New(cfg.Clock)
	if err != nil {
		return nil, nil, errors.Wrap(err, "app: clock")
	}
	reg := a.registry
	if reg == nil {
		reg = service.Default()
	}
	pool, err := socket.NewPool(cfg.Pool.Size, log)
	if err != nil {
		return nil, nil, err
	}

	ordered, err := module.Sort(modules)
	if err != nil {
		pool.Release()
		return nil, nil, err
	}

	env := &module.Env{
		Registry: reg,
		Clock:    clk,
		Pool:     pool,
		Logger:   log,
	}

	a.mu.Lock()
	a.config = cfg
	a.logger = log
	a.clock = clk
	a.registry = reg
	a.pool = pool
	a.mu.Unlock()

	for _, m := range ordered {
		if err := m.Init(ctx, env); err != nil {
			log.Error("module init failed", logger.Fields("module", m.ID(), "error", err)...)
			// 已初始化模块注册的服务与协程池一并回收
			reg.Shutdown()
			pool.Release()
			a.mu.Lock()
			a.pool = nil
			a.mu.Unlock()
			return nil, nil, errors.Wrapf(err, "app: init module %s", m.ID())
		}
		log.Debug("module initialized", logger.Fields("module", m.ID())...)
	}
	return env, ordered, nil
}

// Start 按依赖顺序启动所有模块。
func (a *BaseApplication) Start(ctx context.Context) error {
	if err := a.Init(ctx); err != nil {
		return err
	}

	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return nil
	}
	modules := append([]module.Module(nil), a.ordered...)
	log := a.logger
	a.mu.Unlock()

	var startedModules []module.Module
	for _, m := range modules {
		if err := m.Start(ctx); err != nil {
			a.rollbackModules(ctx, startedModules)
			return errors.Wrapf(err, "app: start module %s", m.ID())
		}
		startedModules = append(startedModules, m)
	}

	a.mu.Lock()
	a.started = true
	a.mu.Unlock()
	log.Info("application started", logger.Fields("name", a.name, "modules", len(modules))...)
	return nil
}

// Sweep 更新时钟并执行一次注册表清扫，只能在清扫协程中调用。
func (a *BaseApplication) Sweep() {
	a.clock.Tick()
	a.registry.PollAll()
}

// Run 启动应用并阻塞运行，直到收到退出信号或上下文取消。
func (a *BaseApplication) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return errApplicationAlive
	}
	a.running = true
	a.runDone = make(chan struct{})
	cfg := a.config
	log := a.logger
	a.mu.Unlock()

	mt := ticker.NewMulti()
	mt.Add(tickerSweep, cfg.SweepInterval, func(time.Time) { a.Sweep() }, ticker.WithImmediate())
	if cfg.LogSyncInterval > 0 {
		mt.Add(tickerLogSync, cfg.LogSyncInterval, func(time.Time) { _ = logger.SyncAll() })
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	g.Go(func() error {
		err := mt.Start(runCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		select {
		case <-runCtx.Done():
		case sig := <-sigCh:
			log.Info("signal received", logger.Fields("signal", sig.String())...)
		case <-a.shutdownCh:
		}
		cancel()
		return nil
	})

	err := g.Wait()
	// 清扫已经停止，之后的模块停止与服务销毁都在当前协程中进行
	if stopErr := a.Stop(context.Background()); err == nil {
		err = stopErr
	}
	if err == nil {
		err = ctx.Err()
	}

	a.mu.Lock()
	a.running = false
	a.runErr = err
	close(a.runDone)
	a.mu.Unlock()
	return err
}

// Shutdown 触发应用的优雅关闭流程。运行中时等待 Run 完成关闭，否则直接 Stop。
func (a *BaseApplication) Shutdown(ctx context.Context) error {
	a.shutdownOnce.Do(func() {
		close(a.shutdownCh)
	})

	a.mu.RLock()
	running := a.running
	done := a.runDone
	a.mu.RUnlock()

	if !running {
		return a.Stop(ctx)
	}
	select {
	case <-done:
		a.mu.RLock()
		defer a.mu.RUnlock()
		if errors.Is(a.runErr, context.Canceled) {
			return nil
		}
		return a.runErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop 逆序停止所有模块，销毁注册表中剩余的服务并释放协程池。
func (a *BaseApplication) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.initialized {
		a.mu.Unlock()
		return errNotInitialized
	}
	if !a.started {
		a.mu.Unlock()
		return nil
	}
	a.started = false
	modules := append([]module.Module(nil), a.ordered...)
	reg := a.registry
	pool := a.pool
	log := a.logger
	a.mu.Unlock()

	var stopErr error
	for i := len(modules) - 1; i >= 0; i-- {
		if err := modules[i].Stop(ctx); err != nil && stopErr == nil {
			stopErr = errors.Wrapf(err, "app: stop module %s", modules[i].ID())
		}
	}
	reg.Shutdown()
	pool.Release()

	log.Info("application stopped", logger.Fields("name", a.name, "sweeps", reg.Sweeps(), "reaped", reg.Reaped())...)
	_ = logger.SyncAll()
	return stopErr
}

// Modules 返回已注册的模块列表。
func (a *BaseApplication) Modules() []module.Module {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]module.Module(nil), a.modules...)
}

// Registry 返回应用使用的注册表，Init 之前可能为 nil。
func (a *BaseApplication) Registry() *service.Registry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.registry
}

func (a *BaseApplication) rollbackModules(ctx context.Context, modules []module.Module) {
	for i := len(modules) - 1; i >= 0; i-- {
		_ = modules[i].Stop(ctx)
	}
}

func (a *BaseApplication) initLoggerFromConfig(cfg Config) error {
	if len(cfg.Loggers) == 0 {
		return nil
	}
	return logger.InitFromConfig(logger.Config{Loggers: cfg.Loggers})
}
