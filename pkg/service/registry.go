package service

import (
	"sync"

	"github.com/lk2023060901/zeus-link/pkg/logger"
)

// Handle 是注册表中服务的稳定句柄，槽位复用时代数递增。
type Handle struct {
	index uint32
	gen   uint32
}

// Valid 返回句柄是否曾由注册表分配。
func (h Handle) Valid() bool {
	return h.gen != 0
}

type slot struct {
	svc Service
	gen uint32
}

// Registry 持有所有存活的服务，并按注册顺序逐个轮询。
//
// Registry 不加锁，只能在单个清扫协程中访问。
type Registry struct {
	slots []slot
	free  []uint32
	// order 按注册顺序保存句柄，清扫期间的移除只留下零值墓碑，清扫结束后压缩。
	order    []Handle
	live     int
	sweeping bool
	dirty    bool

	sweeps uint64
	reaped uint64

	logger logger.Logger
}

// RegistryOption 注册表选项
type RegistryOption func(*Registry)

// WithLogger 设置日志记录器
func WithLogger(l logger.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry 创建一个空注册表。
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{logger: logger.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default 返回进程级注册表，首次调用时创建。
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry(WithLogger(logger.Get("service")))
	})
	return defaultRegistry
}

// Register 把服务追加到注册表末尾并返回其句柄，重复注册返回原句柄。
func (r *Registry) Register(svc Service) Handle {
	if svc == nil {
		return Handle{}
	}
	b := svc.base()
	if b.reg == r && r.Lookup(b.handle) == svc {
		return b.handle
	}

	var idx uint32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		idx = uint32(len(r.slots))
		r.slots = append(r.slots, slot{})
	}
	s := &r.slots[idx]
	s.gen++
	s.svc = svc

	h := Handle{index: idx, gen: s.gen}
	b.reg = r
	b.handle = h
	b.removed = false
	r.order = append(r.order, h)
	r.live++
	return h
}

// Unregister 移除指定句柄对应的服务，服务已不在注册表中时返回 false。
func (r *Registry) Unregister(h Handle) bool {
	if r.Lookup(h) == nil {
		return false
	}
	for i, oh := range r.order {
		if oh == h {
			r.release(h, i)
			break
		}
	}
	if !r.sweeping {
		r.compact()
	}
	return true
}

// Lookup 按句柄查找服务，句柄失效时返回 nil。
func (r *Registry) Lookup(h Handle) Service {
	if !h.Valid() || int(h.index) >= len(r.slots) {
		return nil
	}
	s := r.slots[h.index]
	if s.gen != h.gen {
		return nil
	}
	return s.svc
}

// PollAll 执行一次清扫：已关闭且由注册表持有的服务被销毁并移除，其余服务各轮询一次。
//
// 清扫中注册的服务从下一次清扫开始被轮询。Poll 中的 panic 不会被捕获。
func (r *Registry) PollAll() {
	if r.sweeping {
		r.logger.Warn("service: reentrant sweep ignored")
		return
	}
	r.sweeping = true
	defer func() {
		r.sweeping = false
		r.compact()
	}()

	n := len(r.order)
	for i := 0; i < n; i++ {
		h := r.order[i]
		svc := r.Lookup(h)
		if svc == nil {
			continue
		}
		b := svc.base()
		if b.ownership == Owned && b.closed {
			r.release(h, i)
			svc.Destroy()
			r.reaped++
			continue
		}
		svc.Poll()
	}
	r.sweeps++
}

// Shutdown 关闭并销毁注册表中剩余的全部服务。
func (r *Registry) Shutdown() {
	if r.sweeping {
		r.logger.Warn("service: shutdown during sweep ignored")
		return
	}
	r.sweeping = true
	defer func() {
		r.sweeping = false
		r.compact()
	}()

	for i := 0; i < len(r.order); i++ {
		h := r.order[i]
		svc := r.Lookup(h)
		if svc == nil {
			continue
		}
		svc.base().closed = true
		if svc.Owned() {
			r.release(h, i)
			svc.Destroy()
			r.reaped++
			continue
		}
		svc.Destroy()
		if r.Lookup(h) != nil {
			r.logger.Warn("service: external service left registered after destroy")
			r.release(h, i)
		}
	}
}

// Each 按注册顺序遍历存活的服务，fn 返回 false 时停止。
func (r *Registry) Each(fn func(h Handle, svc Service) bool) {
	handles := append([]Handle(nil), r.order...)
	for _, h := range handles {
		svc := r.Lookup(h)
		if svc == nil {
			continue
		}
		if !fn(h, svc) {
			return
		}
	}
}

// Len 返回存活服务数量。
func (r *Registry) Len() int {
	return r.live
}

// Sweeps 返回已完成的清扫次数。
func (r *Registry) Sweeps() uint64 {
	return r.sweeps
}

// Reaped 返回被注册表销毁的服务数量。
func (r *Registry) Reaped() uint64 {
	return r.reaped
}

// Sweeping 返回当前是否处于清扫中。
func (r *Registry) Sweeping() bool {
	return r.sweeping
}

func (r *Registry) release(h Handle, pos int) {
	s := &r.slots[h.index]
	s.svc.base().removed = true
	s.svc = nil
	r.free = append(r.free, h.index)
	r.order[pos] = Handle{}
	r.live--
	r.dirty = true
}

func (r *Registry) compact() {
	if !r.dirty {
		return
	}
	kept := r.order[:0]
	for _, h := range r.order {
		if h.Valid() {
			kept = append(kept, h)
		}
	}
	for i := len(kept); i < len(r.order); i++ {
		r.order[i] = Handle{}
	}
	r.order = kept
	r.dirty = false
}
