package httpd

import (
	"context"
	"net"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/zeus-link/pkg/link"
	"github.com/lk2023060901/zeus-link/pkg/logger"
	"github.com/lk2023060901/zeus-link/pkg/module"
	"github.com/lk2023060901/zeus-link/pkg/service"
	"github.com/lk2023060901/zeus-link/pkg/socket"
)

// ModuleID 状态页模块标识
const ModuleID = "httpd"

// Module 在配置的地址上提供状态页。
type Module struct {
	cfg    Config
	linkOf func() LinkSource
	server *Server
}

// NewModule 创建状态页模块，linkOf 在 Init 时取得链路状态来源，可以为 nil。
func NewModule(cfg Config, linkOf func() LinkSource) *Module {
	return &Module{cfg: cfg, linkOf: linkOf}
}

// ID 实现 module.Module。
func (m *Module) ID() string {
	return ModuleID
}

// Requires 实现 module.Module。
func (m *Module) Requires() []string {
	if m.linkOf == nil {
		return nil
	}
	return []string{link.ModuleID}
}

// Init 开始监听并创建服务器，Addr 为空时不启动。
func (m *Module) Init(_ context.Context, env *module.Env) error {
	if m.cfg.Addr == "" {
		return nil
	}
	var src LinkSource
	if m.linkOf != nil {
		src = m.linkOf()
	}
	responder, err := NewStatusResponder(env.Registry, env.Clock, src, m.cfg.Format)
	if err != nil {
		return err
	}
	nl, err := net.Listen("tcp", m.cfg.Addr)
	if err != nil {
		return errors.Wrapf(err, "httpd: listen %s", m.cfg.Addr)
	}
	ln := socket.NewListener(env.Registry, env.Pool, nl, service.External, socket.WithLogger(env.Logger))
	m.server = NewServer(env.Registry, ln, responder,
		WithServerLogger(env.Logger),
		WithDispatcherOptions(WithMaxHeader(m.cfg.MaxHeader)),
	)
	if env.Logger != nil {
		env.Logger.Info("status page listening", logger.Fields("addr", ln.Addr().String(), "format", string(m.cfg.Format))...)
	}
	return nil
}

// Start 实现 module.Module。
func (m *Module) Start(_ context.Context) error {
	return nil
}

// Stop 销毁服务器与监听套接字。
func (m *Module) Stop(_ context.Context) error {
	if m.server != nil {
		m.server.Destroy()
		m.server = nil
	}
	return nil
}

// Server 返回服务器，未启动时为 nil。
func (m *Module) Server() *Server {
	return m.server
}
