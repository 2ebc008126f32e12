// Package sim 提供可编排失败次数的模拟模组，用于测试与演示。
package sim

import (
	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/zeus-link/pkg/modem"
)

var (
	// ErrOpenFailed 模拟命令通道打开失败
	ErrOpenFailed = errors.New("sim: command channel did not respond")
	// ErrNegotiationRejected 模拟链路协商被拒绝
	ErrNegotiationRejected = errors.New("sim: link negotiation rejected")
	// ErrTeardownFailed 模拟链路拆除失败
	ErrTeardownFailed = errors.New("sim: link teardown failed")
)

// Config 模拟模组行为配置
//
// OpenFailures 与 NegotiateFailures 默认按进程内累计的尝试次数计算：
// 前 N 次失败后，之后的每一轮连接都会成功。设置 PerPowerCycle 后改为每次上电重新计数，
// 即每一轮连接的前 N 次尝试都失败。
type Config struct {
	// PowerOnFails 上电是否失败
	PowerOnFails bool `yaml:"power_on_fails"`
	// OpenFailures 打开命令通道前若干次尝试失败，负数表示始终失败
	OpenFailures int `yaml:"open_failures"`
	// NegotiateFailures 链路协商前若干次尝试失败，负数表示始终失败
	NegotiateFailures int `yaml:"negotiate_failures"`
	// TeardownFails 链路拆除是否失败
	TeardownFails bool `yaml:"teardown_fails"`
	// Latency 每次尝试需要的轮询次数，0 表示立即完成
	Latency int `yaml:"latency"`
	// PerPowerCycle 每次上电重置失败计数
	PerPowerCycle bool `yaml:"per_power_cycle"`
}

// Modem 模拟模组，同时实现 Power、CommandChannel 与 Negotiator。
type Modem struct {
	cfg Config

	Powered         bool
	Open            bool
	LinkUp          bool
	PowerOns        int
	PowerOffs       int
	Opens           int
	Closes          int
	Negotiations    int
	Teardowns       int
	LastCredentials modem.Credentials

	// 当前上电周期内的尝试次数
	cycleOpens        int
	cycleNegotiations int
}

// New 创建模拟模组
func New(cfg Config) *Modem {
	return &Modem{cfg: cfg}
}

// PowerOn 实现 modem.Power。
func (m *Modem) PowerOn() bool {
	m.PowerOns++
	if m.cfg.PowerOnFails {
		return false
	}
	m.Powered = true
	m.cycleOpens = 0
	m.cycleNegotiations = 0
	return true
}

// PowerOff 实现 modem.Power。
func (m *Modem) PowerOff() bool {
	m.PowerOffs++
	m.Powered = false
	m.Open = false
	m.LinkUp = false
	return true
}

// Channel 返回命令通道视图。
func (m *Modem) Channel() modem.CommandChannel {
	return channel{m}
}

// Negotiator 返回链路协商视图。
func (m *Modem) Negotiator() modem.Negotiator {
	return negotiator{m}
}

func (m *Modem) attempt(n int, failures int, onDone func() error) modem.Attempt {
	polls := 0
	return modem.AttemptFunc(func() (bool, error) {
		polls++
		if polls <= m.cfg.Latency {
			return false, nil
		}
		if failures < 0 || n <= failures {
			return true, onDone()
		}
		return true, nil
	})
}

// scriptIndex 返回与失败脚本比较的尝试序号。
func (m *Modem) scriptIndex(total, cycle int) int {
	if m.cfg.PerPowerCycle {
		return cycle
	}
	return total
}

type channel struct{ m *Modem }

func (c channel) Open() modem.Attempt {
	c.m.Opens++
	c.m.cycleOpens++
	inner := c.m.attempt(c.m.scriptIndex(c.m.Opens, c.m.cycleOpens), c.m.cfg.OpenFailures, func() error { return ErrOpenFailed })
	return modem.AttemptFunc(func() (bool, error) {
		done, err := inner.Poll()
		if done && err == nil {
			if !c.m.Powered {
				return true, modem.ErrChannelClosed
			}
			c.m.Open = true
		}
		return done, err
	})
}

func (c channel) Close() error {
	c.m.Closes++
	c.m.Open = false
	return nil
}

type negotiator struct{ m *Modem }

func (n negotiator) Negotiate(cred modem.Credentials) modem.Attempt {
	n.m.Negotiations++
	n.m.cycleNegotiations++
	n.m.LastCredentials = cred
	inner := n.m.attempt(n.m.scriptIndex(n.m.Negotiations, n.m.cycleNegotiations), n.m.cfg.NegotiateFailures, func() error { return ErrNegotiationRejected })
	return modem.AttemptFunc(func() (bool, error) {
		done, err := inner.Poll()
		if done && err == nil {
			if !n.m.Open {
				return true, modem.ErrChannelClosed
			}
			n.m.LinkUp = true
		}
		return done, err
	})
}

func (n negotiator) Teardown() modem.Attempt {
	n.m.Teardowns++
	failures := 0
	if n.m.cfg.TeardownFails {
		failures = -1
	}
	inner := n.m.attempt(n.m.Teardowns, failures, func() error { return ErrTeardownFailed })
	return modem.AttemptFunc(func() (bool, error) {
		done, err := inner.Poll()
		if done && err == nil {
			n.m.LinkUp = false
		}
		return done, err
	})
}
