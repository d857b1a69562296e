package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dep2p/go-filesharer/pkg/types"
)

// Message 协议消息
//
// 派发后视为不可变；路由器转发前对每个目标调用 Clone 后再修改跳数。
type Message struct {
	Type MessageType
	Data []string
}

// New 创建消息
func New(t MessageType, fields ...string) *Message {
	m := &Message{Type: t}
	if len(fields) > 0 {
		m.Data = append([]string(nil), fields...)
	}
	return m
}

// Field 返回第 i 个字段，不存在时返回空串
func (m *Message) Field(i int) string {
	if i < 0 || i >= len(m.Data) {
		return ""
	}
	return m.Data[i]
}

// IntField 以整数读取第 i 个字段
func (m *Message) IntField(i int) (int, error) {
	if i < 0 || i >= len(m.Data) {
		return 0, fmt.Errorf("%w: %s missing field %d", ErrMalformedMessage, m.Type, i)
	}
	v, err := strconv.Atoi(m.Data[i])
	if err != nil {
		return 0, fmt.Errorf("%w: %s field %d %q is not an integer", ErrMalformedMessage, m.Type, i, m.Data[i])
	}
	return v, nil
}

// SetField 设置第 i 个字段，必要时扩展 Data
func (m *Message) SetField(i int, v string) {
	for len(m.Data) <= i {
		m.Data = append(m.Data, "")
	}
	m.Data[i] = v
}

// FieldsFrom 返回从 start 开始的字段副本
func (m *Message) FieldsFrom(start int) []string {
	if start >= len(m.Data) {
		return nil
	}
	return append([]string(nil), m.Data[start:]...)
}

// Clone 深拷贝
func (m *Message) Clone() *Message {
	return New(m.Type, m.Data...)
}

// Equal 比较类型与字段
func (m *Message) Equal(other *Message) bool {
	if m == nil || other == nil {
		return m == other
	}
	if m.Type != other.Type || len(m.Data) != len(other.Data) {
		return false
	}
	for i := range m.Data {
		if m.Data[i] != other.Data[i] {
			return false
		}
	}
	return true
}

// String 返回线路编码
func (m *Message) String() string {
	return Encode(m)
}

// ============================================================================
//                              编解码
// ============================================================================

// Encode 将消息编码为线路文本
func Encode(m *Message) string {
	var b strings.Builder
	b.WriteString(m.Type.Code())
	for _, f := range m.Data {
		b.WriteByte(' ')
		writeField(&b, f)
	}
	return b.String()
}

func writeField(b *strings.Builder, f string) {
	if f != "" && !strings.ContainsAny(f, " \t\r\n\"\\") {
		b.WriteString(f)
		return
	}
	b.WriteByte('"')
	for i := 0; i < len(f); i++ {
		switch c := f[i]; c {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
}

// Parse 解析线路文本
func Parse(text string) (*Message, error) {
	tokens, err := tokenize(text)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: empty message", ErrMalformedMessage)
	}

	t, ok := ParseMessageType(tokens[0])
	if !ok {
		return nil, fmt.Errorf("%w: %w: %q", ErrMalformedMessage, ErrUnknownMessageType, tokens[0])
	}

	m := &Message{Type: t}
	if len(tokens) > 1 {
		m.Data = tokens[1:]
	}
	if len(m.Data) < t.MinFields() {
		return nil, fmt.Errorf("%w: %s requires %d fields, got %d",
			ErrMalformedMessage, t, t.MinFields(), len(m.Data))
	}
	return m, nil
}

// tokenize 按空白切分，尊重双引号
func tokenize(text string) ([]string, error) {
	var tokens []string
	i, n := 0, len(text)

	for {
		for i < n && isSpace(text[i]) {
			i++
		}
		if i >= n {
			return tokens, nil
		}

		if text[i] != '"' {
			start := i
			for i < n && !isSpace(text[i]) {
				if text[i] == '"' {
					return nil, fmt.Errorf("%w: stray quote at %d", ErrMalformedMessage, i)
				}
				i++
			}
			tokens = append(tokens, text[start:i])
			continue
		}

		var b strings.Builder
		i++
		closed := false
		for i < n && !closed {
			c := text[i]
			switch {
			case c == '\\' && i+1 < n:
				i++
				switch text[i] {
				case 'n':
					b.WriteByte('\n')
				case 'r':
					b.WriteByte('\r')
				case 't':
					b.WriteByte('\t')
				default:
					b.WriteByte(text[i])
				}
			case c == '"':
				closed = true
			default:
				b.WriteByte(c)
			}
			i++
		}
		if !closed {
			return nil, fmt.Errorf("%w: unterminated quote", ErrMalformedMessage)
		}
		if i < n && !isSpace(text[i]) {
			return nil, fmt.Errorf("%w: missing delimiter after quoted field", ErrMalformedMessage)
		}
		tokens = append(tokens, b.String())
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

// ============================================================================
//                              节点列表字段
// ============================================================================

// NodeFields 将节点编码为 count ip port ip port ...
func NodeFields(nodes []*types.Node) []string {
	out := make([]string, 0, 1+2*len(nodes))
	out = append(out, strconv.Itoa(len(nodes)))
	for _, n := range nodes {
		out = append(out, n.IP, strconv.Itoa(n.Port))
	}
	return out
}

// ParseNodeFields 从 start 开始读取 count 个 ip port 对
func ParseNodeFields(m *Message, countIndex, start int) ([]*types.Node, error) {
	count, err := m.IntField(countIndex)
	if err != nil {
		return nil, err
	}
	if count < 0 || start+2*count > len(m.Data) {
		return nil, fmt.Errorf("%w: %s declares %d nodes, has %d fields",
			ErrMalformedMessage, m.Type, count, len(m.Data)-start)
	}
	nodes := make([]*types.Node, 0, count)
	for i := 0; i < count; i++ {
		port, err := m.IntField(start + 2*i + 1)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, types.NewNode(m.Data[start+2*i], port))
	}
	return nodes, nil
}
