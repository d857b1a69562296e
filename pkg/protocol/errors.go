package protocol

import "errors"

// 协议错误
var (
	// ErrMalformedMessage 无法解析的消息文本
	ErrMalformedMessage = errors.New("malformed message")
	// ErrUnknownMessageType 未知的消息类型
	ErrUnknownMessageType = errors.New("unknown message type")
	// ErrMalformedEnvelope 无法解析的传输封装
	ErrMalformedEnvelope = errors.New("malformed envelope")
)
