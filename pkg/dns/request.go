package dns

import (
	"net/netip"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/singleflight"

	"github.com/lk2023060901/zeus-link/pkg/event"
	"github.com/lk2023060901/zeus-link/pkg/logger"
	"github.com/lk2023060901/zeus-link/pkg/service"
)

// Request 一次域名解析，由注册表持有，完成后自行关闭。
//
// done 标记协议层面的完成，与注册表使用的 closed 分开记录；Close 同时设置两者。
type Request struct {
	service.Base

	name   string
	host   *Host
	addr   netip.Addr
	done   bool
	result <-chan singleflight.Result
	events event.Queue
	logger logger.Logger
}

// Resolve 为 name 发起解析。
func (c *Client) Resolve(name string, l event.Listener) *Request {
	r := &Request{
		name:   name,
		logger: c.logger,
	}
	r.events.Bind(l)
	r.Attach(c.reg, r, service.Owned)
	r.result = c.lookup(name)
	return r
}

// ResolveHost 解析 h.Name，成功时把地址写回 h。
func (c *Client) ResolveHost(h *Host, l event.Listener) *Request {
	r := c.Resolve(h.Name, l)
	r.host = h
	return r
}

// Poll 检查查询是否完成，完成时调用 OnReply。
func (r *Request) Poll() {
	if r.done {
		return
	}
	select {
	case res := <-r.result:
		addr, _ := res.Val.(netip.Addr)
		if res.Shared {
			r.logger.Debug("dns: shared lookup", logger.Fields("name", r.name)...)
		}
		r.OnReply(addr, res.Err)
	default:
	}
}

// OnReply 记录解析结果，成功时回填绑定的 Host，然后无论成败都投递 KindResolved 并关闭请求。
func (r *Request) OnReply(addr netip.Addr, err error) {
	if r.done {
		return
	}
	ev := event.Event{Kind: event.KindResolved}
	if err == nil && !addr.IsValid() {
		err = ErrNoAddress
	}
	if err != nil {
		replyErr := newReplyError(r.name, err)
		r.logger.Warn("dns: lookup failed", logger.Fields("name", r.name, "error", err)...)
		ev.Err = replyErr
	} else {
		r.addr = addr
		if r.host != nil {
			r.host.Addr = addr
		}
		ev.Value = addr
	}
	r.Close()
	r.events.Dispatch(ev)
}

// Close 标记请求完成并请求注册表回收，可重复调用。
func (r *Request) Close() {
	if r.done && r.Closed() {
		return
	}
	r.done = true
	r.Base.Close()
}

// Done 返回请求是否已完成。
func (r *Request) Done() bool {
	return r.done
}

// Name 返回被解析的名称。
func (r *Request) Name() string {
	return r.name
}

// Addr 返回解析结果，未完成或失败时为零值。
func (r *Request) Addr() netip.Addr {
	return r.addr
}

// Destroy 解除监听者并注销自身。
func (r *Request) Destroy() {
	r.done = true
	r.events.Discard()
	r.events.Bind(nil)
	r.Base.Destroy()
}

// IsFailure 判断 err 是否为解析失败。
func IsFailure(err error) bool {
	return errors.Is(err, ErrDNSFailure)
}
