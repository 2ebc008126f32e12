// Package modem 定义蜂窝模组链路建立所依赖的硬件与协议协作方。
//
// 协作方的每一次尝试都以 Attempt 的形式返回，由调用方在轮询中推进，任何方法都不允许阻塞。
package modem

import "github.com/cockroachdb/errors"

var (
	// ErrPowerFailure 模组上电失败
	ErrPowerFailure = errors.New("modem: power failure")
	// ErrChannelClosed 命令通道未打开
	ErrChannelClosed = errors.New("modem: command channel not open")
)

// Credentials 链路协商使用的接入参数。
type Credentials struct {
	APN      string `yaml:"apn"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// Power 模组电源控制。
type Power interface {
	// PowerOn 给模组上电，失败返回 false。
	PowerOn() bool
	// PowerOff 给模组断电，返回值仅供记录。
	PowerOff() bool
}

// Attempt 表示一次可轮询推进的阶段尝试。
type Attempt interface {
	// Poll 推进尝试；done 为 false 表示仍在进行，done 为 true 时 err 给出结果。
	Poll() (done bool, err error)
}

// CommandChannel 模组命令通道。
type CommandChannel interface {
	// Open 开始一次打开命令通道的尝试。
	Open() Attempt
	// Close 关闭命令通道。
	Close() error
}

// Negotiator 在已打开的命令通道上协商链路层会话。
type Negotiator interface {
	// Negotiate 开始一次链路协商尝试。
	Negotiate(cred Credentials) Attempt
	// Teardown 开始一次链路拆除尝试。
	Teardown() Attempt
}

// AttemptFunc 把函数适配为 Attempt。
type AttemptFunc func() (bool, error)

// Poll 调用 f()。
func (f AttemptFunc) Poll() (bool, error) {
	return f()
}

// Done 返回一个立即以 err 结束的 Attempt。
func Done(err error) Attempt {
	return AttemptFunc(func() (bool, error) {
		return true, err
	})
}
