package socket

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"

	"github.com/lk2023060901/zeus-link/pkg/conc"
	"github.com/lk2023060901/zeus-link/pkg/event"
	"github.com/lk2023060901/zeus-link/pkg/logger"
	"github.com/lk2023060901/zeus-link/pkg/service"
)

// Conn 面向流的连接服务。
//
// 事件：KindConnected（主动连接建立）、KindReadable（Data 为收到的字节）、
// KindWritten（Value 为写入字节数）、KindClosed（对端关闭）、KindError。
type Conn struct {
	service.Base

	pool   *Pool
	logger logger.Logger
	events event.Queue
	bufLen int

	conn      net.Conn
	cancel    context.CancelFunc
	dialing   *conc.Future[int]
	dialed    chan net.Conn
	reader    *conc.Future[int]
	reads     chan []byte
	writes    writeChain
	done      chan struct{}
	shut      *atomic.Bool
	connected bool
	eof       bool
}

func newConn(reg *service.Registry, pool *Pool, own service.Ownership, o options) *Conn {
	c := &Conn{
		pool:   pool,
		logger: o.logger,
		bufLen: o.readBuffer,
		reads:  make(chan []byte, resultBacklog),
		done:   make(chan struct{}),
		shut:   atomic.NewBool(false),
	}
	c.events.Bind(o.listener)
	c.Attach(reg, c, own)
	return c
}

// Dial 开始异步连接 address，结果以 KindConnected 或 KindError 事件通知。
func Dial(reg *service.Registry, pool *Pool, network, address string, timeout time.Duration, opts ...Option) *Conn {
	c := newConn(reg, pool, service.Owned, newOptions(opts))
	var ctx context.Context
	if timeout > 0 {
		ctx, c.cancel = context.WithTimeout(context.Background(), timeout)
	} else {
		ctx, c.cancel = context.WithCancel(context.Background())
	}
	c.dialed = make(chan net.Conn, 1)
	c.dialing = pool.Submit(func() (int, error) {
		var d net.Dialer
		nc, err := d.DialContext(ctx, network, address)
		if err != nil {
			return 0, err
		}
		c.dialed <- nc
		return 0, nil
	})
	c.logger.Debug("socket: dialing", logger.Fields("network", network, "address", address)...)
	return c
}

// NewConn 把已建立的连接包装为服务并立即开始读取。
func NewConn(reg *service.Registry, pool *Pool, nc net.Conn, own service.Ownership, opts ...Option) *Conn {
	c := newConn(reg, pool, own, newOptions(opts))
	c.start(nc)
	return c
}

func (c *Conn) start(nc net.Conn) {
	c.conn = nc
	c.connected = true
	c.reader = c.pool.Submit(c.readLoop)
}

func (c *Conn) readLoop() (int, error) {
	total := 0
	for {
		buf := make([]byte, c.bufLen)
		n, err := c.conn.Read(buf)
		if n > 0 {
			total += n
			select {
			case c.reads <- buf[:n]:
			case <-c.done:
				return total, nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || c.shut.Load() {
				return total, nil
			}
			return total, err
		}
	}
}

// Bind 设置监听者，nil 表示解除绑定。
func (c *Conn) Bind(l event.Listener) {
	c.events.Bind(l)
}

// Write 异步写入 p 的副本，完成后产生 KindWritten 或 KindError 事件。
func (c *Conn) Write(p []byte) error {
	if c.Closed() {
		return ErrClosed
	}
	if !c.connected {
		return ErrNotConnected
	}
	buf := append([]byte(nil), p...)
	nc := c.conn
	c.writes.submit(c.pool, func() (int, error) {
		return nc.Write(buf)
	})
	return nil
}

// Poll 收取已就绪的 I/O 结果并投递事件。
func (c *Conn) Poll() {
	if c.Closed() {
		return
	}
	c.pollDial()
	c.pollRead()
	c.writes.drain(&c.events)
	c.events.Flush()
}

func (c *Conn) pollDial() {
	if c.dialing == nil {
		return
	}
	_, err, ok := c.dialing.Inner()
	if !ok {
		return
	}
	c.dialing = nil
	if err != nil {
		c.events.Push(event.Event{Kind: event.KindError, Err: errors.Wrap(err, "socket: dial")})
		return
	}
	nc := <-c.dialed
	c.start(nc)
	c.events.Push(event.Event{Kind: event.KindConnected, Addr: nc.RemoteAddr()})
}

func (c *Conn) pollRead() {
	if c.reader == nil || c.eof {
		return
	}
	// 先判断读协程是否结束，再收取数据，保证结束事件排在全部数据之后
	_, err, finished := c.reader.Inner()
drain:
	for {
		select {
		case data := <-c.reads:
			c.events.Push(event.Event{Kind: event.KindReadable, Data: data})
		default:
			break drain
		}
	}
	if !finished {
		return
	}
	c.eof = true
	if err != nil {
		c.events.Push(event.Event{Kind: event.KindError, Err: errors.Wrap(err, "socket: read")})
		return
	}
	c.events.Push(event.Event{Kind: event.KindClosed})
}

// Close 请求关闭并丢弃尚未投递的事件。
func (c *Conn) Close() {
	c.events.Discard()
	c.Base.Close()
}

// Destroy 关闭底层连接并注销自身。
func (c *Conn) Destroy() {
	c.events.Discard()
	if c.shut.CompareAndSwap(false, true) {
		close(c.done)
		if c.cancel != nil {
			c.cancel()
		}
		if c.conn != nil {
			if err := c.conn.Close(); err != nil {
				c.logger.Debug("socket: close", logger.Field{Key: "error", Value: err})
			}
		}
		if c.dialing != nil {
			// 拨号可能在取消前已经成功
			dialing, dialed := c.dialing, c.dialed
			go func() {
				if dialing.Err() == nil {
					_ = (<-dialed).Close()
				}
			}()
		}
	}
	c.writes.reset()
	c.connected = false
	c.Base.Destroy()
}

// Connected 返回连接是否已建立。
func (c *Conn) Connected() bool {
	return c.connected
}

// LocalAddr 返回本端地址，未连接时为 nil。
func (c *Conn) LocalAddr() net.Addr {
	if c.conn == nil {
		return nil
	}
	return c.conn.LocalAddr()
}

// RemoteAddr 返回对端地址，未连接时为 nil。
func (c *Conn) RemoteAddr() net.Addr {
	if c.conn == nil {
		return nil
	}
	return c.conn.RemoteAddr()
}

// PendingWrites 返回尚未收取结果的写入数量。
func (c *Conn) PendingWrites() int {
	return len(c.writes.pending)
}
