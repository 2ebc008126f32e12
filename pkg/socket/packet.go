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

type datagram struct {
	data []byte
	addr net.Addr
}

// PacketConn 数据报套接字服务。
//
// 事件：KindDatagram（Data 为负载，Addr 为对端）、KindWritten、KindError。
type PacketConn struct {
	service.Base

	pool   *Pool
	logger logger.Logger
	events event.Queue
	bufLen int

	conn   net.PacketConn
	reader *conc.Future[int]
	reads  chan datagram
	writes writeChain
	done   chan struct{}
	shut   *atomic.Bool
	eof    bool
}

// ListenPacket 在 address 上打开数据报套接字并开始接收。
func ListenPacket(reg *service.Registry, pool *Pool, network, address string, opts ...Option) (*PacketConn, error) {
	pc, err := net.ListenPacket(network, address)
	if err != nil {
		return nil, errors.Wrapf(err, "socket: listen packet %s %s", network, address)
	}
	return NewPacketConn(reg, pool, pc, service.Owned, opts...), nil
}

// NewPacketConn 把已打开的数据报套接字包装为服务。
func NewPacketConn(reg *service.Registry, pool *Pool, pc net.PacketConn, own service.Ownership, opts ...Option) *PacketConn {
	o := newOptions(opts)
	p := &PacketConn{
		pool:   pool,
		logger: o.logger,
		bufLen: o.readBuffer,
		conn:   pc,
		reads:  make(chan datagram, resultBacklog),
		done:   make(chan struct{}),
		shut:   atomic.NewBool(false),
	}
	p.events.Bind(o.listener)
	p.Attach(reg, p, own)
	p.reader = pool.Submit(p.readLoop)
	return p
}

func (p *PacketConn) readLoop() (int, error) {
	total := 0
	for {
		buf := make([]byte, p.bufLen)
		n, addr, err := p.conn.ReadFrom(buf)
		if n > 0 {
			total += n
			select {
			case p.reads <- datagram{data: buf[:n], addr: addr}:
			case <-p.done:
				return total, nil
			}
		}
		if err != nil {
			if p.shut.Load() {
				return total, nil
			}
			return total, err
		}
	}
}

// Bind 设置监听者，nil 表示解除绑定。
func (p *PacketConn) Bind(l event.Listener) {
	p.events.Bind(l)
}

// WriteTo 异步向 addr 发送 b 的副本。
func (p *PacketConn) WriteTo(b []byte, addr net.Addr) error {
	if p.Closed() {
		return ErrClosed
	}
	buf := append([]byte(nil), b...)
	pc := p.conn
	p.writes.submit(p.pool, func() (int, error) {
		return pc.WriteTo(buf, addr)
	})
	return nil
}

// Poll 收取已到达的数据报与写结果并投递事件。
func (p *PacketConn) Poll() {
	if p.Closed() {
		return
	}
	if p.reader != nil && !p.eof {
		_, err, finished := p.reader.Inner()
	drain:
		for {
			select {
			case dg := <-p.reads:
				p.events.Push(event.Event{Kind: event.KindDatagram, Data: dg.data, Addr: dg.addr})
			default:
				break drain
			}
		}
		if finished {
			p.eof = true
			if err != nil {
				p.events.Push(event.Event{Kind: event.KindError, Err: errors.Wrap(err, "socket: read packet")})
			} else {
				p.events.Push(event.Event{Kind: event.KindClosed})
			}
		}
	}
	p.writes.drain(&p.events)
	p.events.Flush()
}

// Close 请求关闭并丢弃尚未投递的事件。
func (p *PacketConn) Close() {
	p.events.Discard()
	p.Base.Close()
}

// Destroy 关闭套接字并注销自身。
func (p *PacketConn) Destroy() {
	p.events.Discard()
	if p.shut.CompareAndSwap(false, true) {
		close(p.done)
		if err := p.conn.Close(); err != nil {
			p.logger.Debug("socket: close packet conn", logger.Field{Key: "error", Value: err})
		}
	}
	p.writes.reset()
	p.Base.Destroy()
}

// LocalAddr 返回本端地址。
func (p *PacketConn) LocalAddr() net.Addr {
	return p.conn.LocalAddr()
}
