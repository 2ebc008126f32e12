package socket

import (
	"net"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"

	"github.com/lk2023060901/zeus-link/pkg/conc"
	"github.com/lk2023060901/zeus-link/pkg/event"
	"github.com/lk2023060901/zeus-link/pkg/logger"
	"github.com/lk2023060901/zeus-link/pkg/service"
)

// Listener 流式监听服务。
//
// 每个到达的连接产生一个 KindAccept 事件，监听者在处理该事件时调用 Accept 取走连接。
type Listener struct {
	service.Base

	pool   *Pool
	logger logger.Logger
	events event.Queue
	opts   []Option

	ln       net.Listener
	acceptor *conc.Future[int]
	arrivals chan net.Conn
	ready    []net.Conn
	done     chan struct{}
	shut     *atomic.Bool
	stopped  bool
}

// Listen 在 address 上监听并开始接受连接。
func Listen(reg *service.Registry, pool *Pool, network, address string, opts ...Option) (*Listener, error) {
	ln, err := net.Listen(network, address)
	if err != nil {
		return nil, errors.Wrapf(err, "socket: listen %s %s", network, address)
	}
	return NewListener(reg, pool, ln, service.Owned, opts...), nil
}

// NewListener 把已打开的监听器包装为服务。opts 同时作用于接受的连接（监听者除外）。
func NewListener(reg *service.Registry, pool *Pool, ln net.Listener, own service.Ownership, opts ...Option) *Listener {
	o := newOptions(opts)
	l := &Listener{
		pool:     pool,
		logger:   o.logger,
		opts:     opts,
		ln:       ln,
		arrivals: make(chan net.Conn, resultBacklog),
		done:     make(chan struct{}),
		shut:     atomic.NewBool(false),
	}
	l.events.Bind(o.listener)
	l.Attach(reg, l, own)
	l.acceptor = pool.Submit(l.acceptLoop)
	return l
}

func (l *Listener) acceptLoop() (int, error) {
	accepted := 0
	for {
		nc, err := l.ln.Accept()
		if err != nil {
			if l.shut.Load() || errors.Is(err, net.ErrClosed) {
				return accepted, nil
			}
			return accepted, err
		}
		accepted++
		select {
		case l.arrivals <- nc:
		case <-l.done:
			_ = nc.Close()
			return accepted, nil
		}
	}
}

// Bind 设置监听者，nil 表示解除绑定。
func (l *Listener) Bind(lis event.Listener) {
	l.events.Bind(lis)
}

// Accept 取走一个已到达的连接，包装为由调用方持有的 Conn。
// 没有可接受的连接或监听已关闭时返回 ErrAcceptTransient。
func (l *Listener) Accept() (*Conn, error) {
	if l.Closed() {
		return nil, errors.Wrap(ErrAcceptTransient, "listener closed")
	}
	if len(l.ready) == 0 {
		return nil, errors.Wrap(ErrAcceptTransient, "no pending connection")
	}
	nc := l.ready[0]
	l.ready[0] = nil
	l.ready = l.ready[1:]

	opts := append(append([]Option(nil), l.opts...), WithListener(nil))
	return NewConn(l.Registry(), l.pool, nc, service.External, opts...), nil
}

// Pending 返回已到达但尚未被取走的连接数。
func (l *Listener) Pending() int {
	return len(l.ready)
}

// Poll 收取新到达的连接，每个连接产生一个 KindAccept 事件。
func (l *Listener) Poll() {
	if l.Closed() {
		return
	}
	if !l.stopped {
		_, err, finished := l.acceptor.Inner()
	drain:
		for {
			select {
			case nc := <-l.arrivals:
				l.ready = append(l.ready, nc)
				l.events.Push(event.Event{Kind: event.KindAccept, Addr: nc.RemoteAddr()})
			default:
				break drain
			}
		}
		if finished {
			l.stopped = true
			if err != nil {
				l.logger.Error("socket: accept loop stopped", logger.Field{Key: "error", Value: err})
				l.events.Push(event.Event{Kind: event.KindError, Err: errors.Wrap(err, "socket: accept")})
			}
		}
	}
	l.events.Flush()
}

// Close 请求关闭并丢弃尚未投递的事件。
func (l *Listener) Close() {
	l.events.Discard()
	l.Base.Close()
}

// Destroy 停止监听、关闭未取走的连接并注销自身。
func (l *Listener) Destroy() {
	l.events.Discard()
	if l.shut.CompareAndSwap(false, true) {
		close(l.done)
		if err := l.ln.Close(); err != nil {
			l.logger.Debug("socket: close listener", logger.Field{Key: "error", Value: err})
		}
	}
	for _, nc := range l.ready {
		_ = nc.Close()
	}
	for {
		select {
		case nc := <-l.arrivals:
			_ = nc.Close()
			continue
		default:
		}
		break
	}
	l.ready = nil
	l.Base.Destroy()
}

// Addr 返回监听地址。
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}
