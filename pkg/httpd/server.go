// Package httpd 接受入站连接并为每个连接派生一个自行结束的分发服务。
package httpd

import (
	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/zeus-link/pkg/event"
	"github.com/lk2023060901/zeus-link/pkg/logger"
	"github.com/lk2023060901/zeus-link/pkg/service"
	"github.com/lk2023060901/zeus-link/pkg/socket"
)

// Acceptor 产生 KindAccept 事件并按需交出连接的监听方，*socket.Listener 满足该接口。
type Acceptor interface {
	service.Service
	Bind(l event.Listener)
	Accept() (*socket.Conn, error)
}

// Server 监听服务。它把 Acceptor 的事件绑定到自身，每个接受的连接交给新的 Dispatcher。
//
// Server 不保存 Dispatcher 的引用，Dispatcher 由注册表回收。
type Server struct {
	service.Base

	acceptor  Acceptor
	responder Responder
	logger    logger.Logger
	dopts     []DispatcherOption

	accepted uint64
	failed   uint64
}

// ServerOption 服务器选项
type ServerOption func(*Server)

// WithServerLogger 设置日志记录器，同时用于派生的 Dispatcher。
func WithServerLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDispatcherOptions 设置派生 Dispatcher 的选项。
func WithDispatcherOptions(opts ...DispatcherOption) ServerOption {
	return func(s *Server) {
		s.dopts = append(s.dopts, opts...)
	}
}

// NewServer 创建服务器并绑定 acceptor 的事件。Server 由调用方持有，销毁时一并销毁 acceptor。
func NewServer(reg *service.Registry, acceptor Acceptor, responder Responder, opts ...ServerOption) *Server {
	s := &Server{
		acceptor:  acceptor,
		responder: responder,
		logger:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Attach(reg, s, service.External)
	acceptor.Bind(s)
	return s
}

// OnEvent 处理 acceptor 事件。
func (s *Server) OnEvent(ev event.Event) {
	switch ev.Kind {
	case event.KindAccept:
		s.acceptOne()
	case event.KindError:
		s.logger.Error("httpd: acceptor error", logger.Field{Key: "error", Value: ev.Err})
	}
}

func (s *Server) acceptOne() {
	if s.Closed() {
		return
	}
	conn, err := s.acceptor.Accept()
	if err != nil {
		s.failed++
		if !errors.Is(err, socket.ErrAcceptTransient) {
			err = errors.Mark(err, socket.ErrAcceptTransient)
		}
		s.logger.Warn("httpd: accept dropped", logger.Field{Key: "error", Value: err})
		return
	}
	s.accepted++
	opts := append([]DispatcherOption{WithDispatcherLogger(s.logger)}, s.dopts...)
	d := NewDispatcher(s.Registry(), conn, s.responder, opts...)
	s.logger.Debug("httpd: connection accepted", logger.Fields(
		"conn_id", d.ID(),
		"remote", conn.RemoteAddr(),
	)...)
}

// Accepted 返回成功接受的连接数。
func (s *Server) Accepted() uint64 {
	return s.accepted
}

// Failed 返回被丢弃的接受次数。
func (s *Server) Failed() uint64 {
	return s.failed
}

// Destroy 解除绑定并销毁 acceptor。
func (s *Server) Destroy() {
	s.acceptor.Bind(nil)
	s.acceptor.Destroy()
	s.Base.Destroy()
}
