package transport

import "errors"

var (
	// ErrPeerUnreachable 对端不可达（建连失败、写失败或重传耗尽）
	ErrPeerUnreachable = errors.New("peer unreachable")

	// ErrMessageRejected 对端无法解析消息并回复了 ERROR
	ErrMessageRejected = errors.New("message rejected by peer")

	// ErrNotStarted 处理器尚未启动
	ErrNotStarted = errors.New("network handler not started")

	// ErrHandlerStopped 发送过程中本端处理器被关闭
	ErrHandlerStopped = errors.New("network handler stopped")

	// ErrAlreadyStarted 处理器已经启动
	ErrAlreadyStarted = errors.New("network handler already started")

	// ErrAddressInUse 内存网络中地址已被占用
	ErrAddressInUse = errors.New("address already in use")

	// ErrUnknownHandler 未知的处理器类型
	ErrUnknownHandler = errors.New("unknown network handler")
)
