package link

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrModem 模组上电或命令通道阶段失败
	ErrModem = errors.New("link: modem error")

	// ErrBusy 链路建立或拆除正在进行
	ErrBusy = errors.New("link: establisher busy")

	// ErrNotConnected 链路未建立
	ErrNotConnected = errors.New("link: not connected")

	// ErrClosed 建立器已关闭
	ErrClosed = errors.New("link: establisher closed")

	// ErrInvalidConfig 无效配置
	ErrInvalidConfig = errors.New("link: invalid config")
)

// NegotiationError 链路协商重试耗尽，Reason 为最后一次尝试的失败原因。
type NegotiationError struct {
	Attempts int
	Reason   error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("link: negotiation failed after %d attempts: %v", e.Attempts, e.Reason)
}

// Unwrap 返回失败原因。
func (e *NegotiationError) Unwrap() error {
	return e.Reason
}

func modemError(cause error, msg string) error {
	return errors.Mark(errors.Wrap(cause, msg), ErrModem)
}
