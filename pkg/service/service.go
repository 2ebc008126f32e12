package service

// Ownership 表示服务的销毁责任归属。
type Ownership uint8

const (
	// Owned 表示服务由注册表负责销毁，关闭后在下一次清扫中被回收。
	Owned Ownership = iota
	// External 表示服务由外部持有者负责销毁，销毁时自行从注册表注销。
	External
)

// String 返回归属的可读名称。
func (o Ownership) String() string {
	switch o {
	case Owned:
		return "owned"
	case External:
		return "external"
	default:
		return "unknown"
	}
}

// Service 定义由注册表轮询驱动的长生命周期异步服务。
//
// 具体服务必须嵌入 Base；所有方法只允许在清扫所在的协程中调用。
type Service interface {
	// Poll 推进服务一步，必须非阻塞且不得 panic。
	Poll()
	// Close 请求关闭服务，仅设置标记，幂等。
	Close()
	// Closed 返回服务是否已请求关闭。
	Closed() bool
	// Owned 返回服务是否由注册表负责销毁。
	Owned() bool
	// Removed 返回服务是否已被注册表移除。
	Removed() bool
	// Destroy 释放服务持有的资源；外部持有的服务在此注销自身。
	Destroy()

	base() *Base
}

// Base 提供 Service 的公共生命周期状态。
type Base struct {
	reg       *Registry
	handle    Handle
	ownership Ownership
	closed    bool
	removed   bool
}

// Attach 以给定归属把 self 注册到 reg，self 必须是嵌入了当前 Base 的服务。
func (b *Base) Attach(reg *Registry, self Service, ownership Ownership) Handle {
	b.ownership = ownership
	if reg == nil {
		return Handle{}
	}
	return reg.Register(self)
}

// Poll 默认不做任何事。
func (b *Base) Poll() {}

// Close 标记服务已完成，实际销毁发生在清扫或持有者调用 Destroy 时。
func (b *Base) Close() {
	b.closed = true
}

// Closed 返回服务是否已请求关闭。
func (b *Base) Closed() bool {
	return b.closed
}

// Owned 返回服务是否由注册表负责销毁。
func (b *Base) Owned() bool {
	return b.ownership == Owned
}

// Ownership 返回服务的归属。
func (b *Base) Ownership() Ownership {
	return b.ownership
}

// Removed 返回服务是否已被注册表移除。
func (b *Base) Removed() bool {
	return b.removed
}

// Handle 返回服务在注册表中的句柄。
func (b *Base) Handle() Handle {
	return b.handle
}

// Registry 返回服务所在的注册表，未注册时为 nil。
func (b *Base) Registry() *Registry {
	return b.reg
}

// Destroy 在注册表尚未移除服务时将其注销。
func (b *Base) Destroy() {
	b.closed = true
	if b.reg != nil && !b.removed {
		b.reg.Unregister(b.handle)
	}
}

func (b *Base) base() *Base {
	return b
}
