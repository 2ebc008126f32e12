// Package socket 把阻塞的 net 调用包装为可轮询的服务。
//
// 阻塞调用在有界协程池中执行，结果通过通道交给 Poll，Poll 本身从不阻塞：
// 它只收取已经就绪的结果、转换为事件入队，然后投递一次。
package socket

import (
	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/zeus-link/pkg/conc"
	"github.com/lk2023060901/zeus-link/pkg/event"
	"github.com/lk2023060901/zeus-link/pkg/logger"
)

var (
	// ErrClosed 套接字已关闭
	ErrClosed = errors.New("socket: closed")
	// ErrNotConnected 连接尚未建立
	ErrNotConnected = errors.New("socket: not connected")
	// ErrAcceptTransient 没有可接受的连接或接受失败，可以忽略
	ErrAcceptTransient = errors.New("socket: accept failed")
)

const (
	// DefaultPoolSize 默认 I/O 协程池容量
	DefaultPoolSize = 64

	defaultReadBuffer = 4096
	resultBacklog     = 16
)

// Pool 执行阻塞 I/O 的协程池，任务结果为传输的字节数。
type Pool = conc.Pool[int]

// NewPool 创建非阻塞的 I/O 协程池，池满时提交立即失败而不是阻塞清扫协程。
func NewPool(size int, l logger.Logger) (*Pool, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}
	if l == nil {
		l = logger.Nop()
	}
	return conc.NewPool[int](size,
		conc.WithNonBlocking(true),
		conc.WithLogger(logger.AsPrintf(l, logger.LevelWarn)),
		conc.WithPanicHandler(func(r any) {
			l.Error("socket: io task panicked", logger.Field{Key: "panic", Value: r})
		}),
	)
}

// Option 套接字选项
type Option func(*options)

type options struct {
	logger     logger.Logger
	listener   event.Listener
	readBuffer int
}

func newOptions(opts []Option) options {
	o := options{
		logger:     logger.Nop(),
		readBuffer: defaultReadBuffer,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger 设置日志记录器
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithListener 创建时即绑定监听者
func WithListener(l event.Listener) Option {
	return func(o *options) {
		o.listener = l
	}
}

// WithReadBuffer 设置单次读取的缓冲区大小
func WithReadBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.readBuffer = n
		}
	}
}

// writeChain 按提交顺序串行执行写任务，并在 Poll 中按顺序收取结果。
type writeChain struct {
	pending []*conc.Future[int]
	last    *conc.Future[int]
}

func (w *writeChain) submit(pool *Pool, fn func() (int, error)) {
	prev := w.last
	f := pool.Submit(func() (int, error) {
		if prev != nil {
			// 前一次写失败时后续写仍然尝试，错误各自上报
			_, _ = prev.Await()
		}
		return fn()
	})
	w.pending = append(w.pending, f)
	w.last = f
}

// drain 收取队首已完成的写结果。
func (w *writeChain) drain(q *event.Queue) {
	for len(w.pending) > 0 {
		n, err, ok := w.pending[0].Inner()
		if !ok {
			return
		}
		w.pending[0] = nil
		w.pending = w.pending[1:]
		if err != nil {
			q.Push(event.Event{Kind: event.KindError, Err: errors.Wrap(err, "socket: write")})
			continue
		}
		q.Push(event.Event{Kind: event.KindWritten, Value: n})
	}
	if len(w.pending) == 0 {
		w.pending = nil
	}
}

func (w *writeChain) reset() {
	w.pending = nil
	w.last = nil
}
