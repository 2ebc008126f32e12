package event

import "net"

// Kind 表示事件类别。
type Kind uint8

const (
	// KindNone 表示空事件。
	KindNone Kind = iota
	// KindConnected 表示连接已建立。
	KindConnected
	// KindReadable 表示收到数据，Data 携带负载。
	KindReadable
	// KindWritten 表示一次写入已完成，Value 携带写入字节数。
	KindWritten
	// KindDatagram 表示收到数据报，Addr 为对端地址。
	KindDatagram
	// KindAccept 表示监听套接字上有一个待接受的连接。
	KindAccept
	// KindClosed 表示对端关闭或本端关闭完成。
	KindClosed
	// KindError 表示传输层错误，Err 携带原因。
	KindError
	// KindResolved 表示 DNS 查询完成，Value 为解析出的地址，失败时 Err 非 nil。
	KindResolved
	// KindLinkUp 表示链路建立成功。
	KindLinkUp
	// KindLinkDown 表示链路拆除完成或失败。
	KindLinkDown
	// KindLinkFailed 表示链路建立失败。
	KindLinkFailed
)

// String 返回事件类别名称。
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "NONE"
	case KindConnected:
		return "CONNECTED"
	case KindReadable:
		return "READABLE"
	case KindWritten:
		return "WRITTEN"
	case KindDatagram:
		return "DATAGRAM"
	case KindAccept:
		return "ACCEPT"
	case KindClosed:
		return "CLOSED"
	case KindError:
		return "ERROR"
	case KindResolved:
		return "RESOLVED"
	case KindLinkUp:
		return "LINK_UP"
	case KindLinkDown:
		return "LINK_DOWN"
	case KindLinkFailed:
		return "LINK_FAILED"
	default:
		return "UNKNOWN"
	}
}

// Event 是投递给监听者的事件值。
type Event struct {
	Kind  Kind
	Data  []byte
	Addr  net.Addr
	Value any
	Err   error
}

// Listener 是事件的接收方，同一时刻一个队列至多绑定一个监听者。
type Listener interface {
	OnEvent(ev Event)
}

// ListenerFunc 把普通函数适配为 Listener。
type ListenerFunc func(ev Event)

// OnEvent 调用 f(ev)。
func (f ListenerFunc) OnEvent(ev Event) {
	f(ev)
}
