package conc

import (
	"go.uber.org/atomic"
)

// Future 表示一个异步执行结果。
type Future[T any] struct {
	ch    chan struct{}
	ready *atomic.Bool
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{
		ch:    make(chan struct{}),
		ready: atomic.NewBool(false),
	}
}

func (f *Future[T]) complete(value T, err error) {
	f.value = value
	f.err = err
	f.ready.Store(true)
	close(f.ch)
}

// Await 阻塞等待结果。
func (f *Future[T]) Await() (T, error) {
	<-f.ch
	return f.value, f.err
}

// Value 阻塞等待并返回结果值。
func (f *Future[T]) Value() T {
	<-f.ch
	return f.value
}

// Err 阻塞等待并返回错误。
func (f *Future[T]) Err() error {
	<-f.ch
	return f.err
}

// Ready 非阻塞地判断结果是否已就绪。
func (f *Future[T]) Ready() bool {
	return f.ready.Load()
}

// Inner 非阻塞地返回结果，未就绪时 ok 为 false。
func (f *Future[T]) Inner() (value T, err error, ok bool) {
	if !f.Ready() {
		return value, nil, false
	}
	return f.value, f.err, true
}

// Done 返回结果就绪时关闭的通道。
func (f *Future[T]) Done() <-chan struct{} {
	return f.ch
}

// Go 在新协程中执行 fn 并返回其 Future。
func Go[T any](fn func() (T, error)) *Future[T] {
	f := newFuture[T]()
	go func() {
		var zero T
		value, err := zero, error(nil)
		defer func() { f.complete(value, err) }()
		value, err = fn()
	}()
	return f
}

// Ready 返回一个已完成的 Future。
func Ready[T any](value T, err error) *Future[T] {
	f := newFuture[T]()
	f.complete(value, err)
	return f
}

// BlockOnAll 等待所有 Future 完成，返回遇到的第一个错误。
func BlockOnAll[T any](futures ...*Future[T]) error {
	var first error
	for _, f := range futures {
		if f == nil {
			continue
		}
		if err := f.Err(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
