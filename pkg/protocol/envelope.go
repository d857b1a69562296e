package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// EnvelopeKind 封装类型
type EnvelopeKind string

const (
	// EnvelopeData 携带消息
	EnvelopeData EnvelopeKind = "DATA"
	// EnvelopeAck 确认收到 DATA
	EnvelopeAck EnvelopeKind = "ACK"
	// EnvelopeError 接收方无法处理 DATA
	EnvelopeError EnvelopeKind = "ERROR"
)

// Envelope 传输层封装
//
// SourceIP/SourcePort 是发送方的监听地址，而不是连接的临时端口。
type Envelope struct {
	Kind       EnvelopeKind
	SourceIP   string
	SourcePort int
	Sequence   uint64
	RetryCount int
	Payload    string
}

// Encode 编码为单行文本
func (e *Envelope) Encode() string {
	head := fmt.Sprintf("%s %s %d %d %d", e.Kind, e.SourceIP, e.SourcePort, e.Sequence, e.RetryCount)
	if e.Payload == "" {
		return head
	}
	return head + " " + e.Payload
}

// ParseEnvelope 解析封装
func ParseEnvelope(text string) (*Envelope, error) {
	parts := strings.SplitN(strings.TrimRight(text, "\r\n"), " ", 6)
	if len(parts) < 5 {
		return nil, fmt.Errorf("%w: %d header fields", ErrMalformedEnvelope, len(parts))
	}

	kind := EnvelopeKind(parts[0])
	switch kind {
	case EnvelopeData, EnvelopeAck, EnvelopeError:
	default:
		return nil, fmt.Errorf("%w: kind %q", ErrMalformedEnvelope, parts[0])
	}

	port, err := strconv.Atoi(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: port %q", ErrMalformedEnvelope, parts[2])
	}
	seq, err := strconv.ParseUint(parts[3], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: sequence %q", ErrMalformedEnvelope, parts[3])
	}
	retry, err := strconv.Atoi(parts[4])
	if err != nil {
		return nil, fmt.Errorf("%w: retry count %q", ErrMalformedEnvelope, parts[4])
	}

	e := &Envelope{
		Kind:       kind,
		SourceIP:   parts[1],
		SourcePort: port,
		Sequence:   seq,
		RetryCount: retry,
	}
	if len(parts) == 6 {
		e.Payload = parts[5]
	}
	return e, nil
}

// IsEnvelope 判断文本是否以封装类型开头
func IsEnvelope(text string) bool {
	kind, _, _ := strings.Cut(text, " ")
	switch EnvelopeKind(kind) {
	case EnvelopeData, EnvelopeAck:
		return true
	}
	// ERROR 同时是消息类型，仅在头部字段齐全时视为封装
	if EnvelopeKind(kind) == EnvelopeError {
		_, err := ParseEnvelope(text)
		return err == nil
	}
	return false
}
