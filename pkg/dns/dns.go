// Package dns 提供可轮询的域名解析请求服务。
package dns

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/singleflight"

	"github.com/lk2023060901/zeus-link/pkg/logger"
	"github.com/lk2023060901/zeus-link/pkg/service"
)

var (
	// ErrDNSFailure 标记所有解析失败
	ErrDNSFailure = errors.New("dns: lookup failed")
	// ErrNoAddress 解析成功但没有匹配的地址
	ErrNoAddress = errors.New("dns: no address")
)

// ReplyError 解析失败时随 KindResolved 事件投递的错误。
type ReplyError struct {
	Name   string
	Reason error
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("dns: resolve %q: %v", e.Name, e.Reason)
}

// Unwrap 返回失败原因，原因总是带有 ErrDNSFailure 标记。
func (e *ReplyError) Unwrap() error {
	return e.Reason
}

func newReplyError(name string, reason error) *ReplyError {
	return &ReplyError{Name: name, Reason: errors.Mark(reason, ErrDNSFailure)}
}

// Host 由解析请求回填地址的主机记录。
type Host struct {
	Name string
	Port uint16
	Addr netip.Addr
}

// Resolved 返回地址是否已回填。
func (h *Host) Resolved() bool {
	return h.Addr.IsValid()
}

// AddrPort 返回地址与端口。
func (h *Host) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(h.Addr, h.Port)
}

func (h *Host) String() string {
	if !h.Resolved() {
		return net.JoinHostPort(h.Name, fmt.Sprint(h.Port))
	}
	return h.AddrPort().String()
}

// Resolver 域名解析协作方，*net.Resolver 满足该接口。
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// Config 解析配置
type Config struct {
	// Network 地址族："ip"、"ip4" 或 "ip6"，默认 "ip4"
	Network string `yaml:"network"`
	// Timeout 单次解析超时，默认 5 秒
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Network: "ip4",
		Timeout: 5 * time.Second,
	}
}

// Client 发起解析请求，相同名称的并发请求共享一次查询。
type Client struct {
	reg      *service.Registry
	resolver Resolver
	cfg      Config
	group    singleflight.Group
	logger   logger.Logger
}

// ClientOption 客户端选项
type ClientOption func(*Client)

// WithLogger 设置日志记录器
func WithLogger(l logger.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient 创建解析客户端，resolver 为 nil 时使用 net.DefaultResolver。
func NewClient(reg *service.Registry, resolver Resolver, cfg Config, opts ...ClientOption) *Client {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	def := DefaultConfig()
	if cfg.Network == "" {
		cfg.Network = def.Network
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	c := &Client{
		reg:      reg,
		resolver: resolver,
		cfg:      cfg,
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) lookup(name string) <-chan singleflight.Result {
	return c.group.DoChan(name, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
		defer cancel()
		addrs, err := c.resolver.LookupNetIP(ctx, c.cfg.Network, name)
		if err != nil {
			return netip.Addr{}, err
		}
		if len(addrs) == 0 {
			return netip.Addr{}, ErrNoAddress
		}
		return addrs[0].Unmap(), nil
	})
}
