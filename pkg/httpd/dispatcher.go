package httpd

import (
	"bytes"

	"github.com/google/uuid"

	"github.com/lk2023060901/zeus-link/pkg/event"
	"github.com/lk2023060901/zeus-link/pkg/logger"
	"github.com/lk2023060901/zeus-link/pkg/service"
	"github.com/lk2023060901/zeus-link/pkg/socket"
)

const defaultMaxHeader = 8 << 10

var headerEnd = []byte("\r\n\r\n")

// Dispatcher 独占一个已接受的连接：收齐请求头、写出应答，写完或连接断开后关闭自身。
type Dispatcher struct {
	service.Base

	id        string
	conn      *socket.Conn
	responder Responder
	logger    logger.Logger
	maxHeader int

	head      []byte
	responded bool
}

// DispatcherOption 分发器选项
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger 设置日志记录器
func WithDispatcherLogger(l logger.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMaxHeader 设置请求头上限，超出后直接关闭连接。
func WithMaxHeader(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxHeader = n
		}
	}
}

// NewDispatcher 创建由注册表持有的分发器，conn 的所有权转移给分发器。
func NewDispatcher(reg *service.Registry, conn *socket.Conn, responder Responder, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		id:        uuid.NewString(),
		conn:      conn,
		responder: responder,
		logger:    logger.Nop(),
		maxHeader: defaultMaxHeader,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(logger.Field{Key: "conn_id", Value: d.id})
	d.Attach(reg, d, service.Owned)
	conn.Bind(d)
	return d
}

// OnEvent 处理连接事件。
func (d *Dispatcher) OnEvent(ev event.Event) {
	if d.Closed() {
		return
	}
	switch ev.Kind {
	case event.KindReadable:
		d.collect(ev.Data)
	case event.KindWritten:
		if d.responded {
			d.logger.Debug("httpd: response written", logger.Field{Key: "bytes", Value: ev.Value})
			d.Close()
		}
	case event.KindClosed:
		if d.responded {
			// 对端半关闭，应答仍在写出，等待 KindWritten 或 KindError
			d.logger.Debug("httpd: peer half-closed, response pending")
			return
		}
		d.logger.Debug("httpd: peer closed")
		d.Close()
	case event.KindError:
		d.logger.Warn("httpd: connection error", logger.Field{Key: "error", Value: ev.Err})
		d.Close()
	}
}

func (d *Dispatcher) collect(data []byte) {
	if d.responded {
		return
	}
	d.head = append(d.head, data...)
	idx := bytes.Index(d.head, headerEnd)
	if idx < 0 {
		if len(d.head) > d.maxHeader {
			d.logger.Warn("httpd: request header too large", logger.Field{Key: "size", Value: len(d.head)})
			d.Close()
		}
		return
	}
	d.responded = true
	resp := d.responder.Respond(d.head[:idx+len(headerEnd)])
	if err := d.conn.Write(resp); err != nil {
		d.logger.Warn("httpd: write response", logger.Field{Key: "error", Value: err})
		d.Close()
	}
}

// ID 返回连接标识。
func (d *Dispatcher) ID() string {
	return d.id
}

// Responded 返回是否已写出应答。
func (d *Dispatcher) Responded() bool {
	return d.responded
}

// Destroy 销毁持有的连接并注销自身。
func (d *Dispatcher) Destroy() {
	d.conn.Bind(nil)
	d.conn.Destroy()
	d.Base.Destroy()
}
