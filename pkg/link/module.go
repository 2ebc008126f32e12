package link

import (
	"context"
	"time"

	"github.com/lk2023060901/zeus-link/pkg/event"
	"github.com/lk2023060901/zeus-link/pkg/logger"
	"github.com/lk2023060901/zeus-link/pkg/modem"
	"github.com/lk2023060901/zeus-link/pkg/module"
)

// ModuleID 链路模块标识
const ModuleID = "link"

// Module 持有链路建立器的应用模块。
type Module struct {
	cfg        Config
	power      modem.Power
	channel    modem.CommandChannel
	negotiator modem.Negotiator
	listener   event.Listener

	logger logger.Logger
	est    *Establisher
}

// NewModule 创建链路模块，listener 可以为 nil。
func NewModule(cfg Config, power modem.Power, channel modem.CommandChannel, negotiator modem.Negotiator, listener event.Listener) *Module {
	return &Module{
		cfg:        cfg,
		power:      power,
		channel:    channel,
		negotiator: negotiator,
		listener:   listener,
		logger:     logger.Nop(),
	}
}

// ID 实现 module.Module。
func (m *Module) ID() string {
	return ModuleID
}

// Requires 实现 module.Module。
func (m *Module) Requires() []string {
	return nil
}

// Init 创建链路建立器。
func (m *Module) Init(_ context.Context, env *module.Env) error {
	if env.Logger != nil {
		m.logger = env.Logger
	}
	est, err := New(env.Registry, env.Clock, m.power, m.channel, m.negotiator, m.cfg,
		WithLogger(m.logger),
		WithListener(m.listener),
	)
	if err != nil {
		return err
	}
	m.est = est
	return nil
}

// Start 按配置自动开始建立链路。
func (m *Module) Start(_ context.Context) error {
	if !m.cfg.AutoConnect {
		return nil
	}
	return m.est.ConnectWith(m.cfg.Credentials)
}

// Stop 销毁链路建立器，模组随之断电。
func (m *Module) Stop(_ context.Context) error {
	if m.est != nil {
		m.est.Destroy()
	}
	return nil
}

// Establisher 返回链路建立器，Init 之前为 nil。
func (m *Module) Establisher() *Establisher {
	return m.est
}

// RelinkJob 在链路失败后重新建立链路，供定时任务使用。
func (m *Module) RelinkJob(_ time.Time) error {
	if m.est == nil || m.est.Stage() != StageFailed {
		return nil
	}
	m.logger.Info("relinking after failure", logger.Fields("last_error", m.est.Err())...)
	return m.est.Reconnect()
}
