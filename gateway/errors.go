package gateway

import (
	"errors"
	"fmt"
)

var ErrClientNotSet = errors.New("http client not set")

// ConnectivityError 交易所不可达、超时或返回 5xx/429，可重试。
type ConnectivityError struct {
	Op     string
	Status int // 0 表示未拿到 HTTP 响应
	Err    error
}

func (e *ConnectivityError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: exchange unavailable (status %d)", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: exchange unreachable: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// ProtocolError 响应状态或结构与约定不符，不可重试。
type ProtocolError struct {
	Op     string
	Status int
	Reason string
}

func (e *ProtocolError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// IsConnectivity reports whether err carries a ConnectivityError.
func IsConnectivity(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}

// IsProtocol reports whether err carries a ProtocolError.
func IsProtocol(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
