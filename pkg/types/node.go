package types

import (
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
)

// Node 远端节点
//
// 身份由 (IP, Port) 决定，两个 Node 当且仅当 IP 与端口相同时相等。
// 同一个 *Node 可能同时出现在路由表的多个池中，状态与角色因此使用原子变量。
type Node struct {
	IP   string
	Port int

	state atomic.Int32
	role  atomic.Int32
}

// NewNode 创建一个存活的普通节点
func NewNode(ip string, port int) *Node {
	return &Node{IP: ip, Port: port}
}

// ParseNode 从 "ip:port" 解析节点
func ParseNode(addr string) (*Node, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid node address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return nil, fmt.Errorf("invalid node port %q", portStr)
	}
	return NewNode(host, port), nil
}

// NodeKey 返回 ip:port 形式的身份键
func NodeKey(ip string, port int) string {
	return net.JoinHostPort(ip, strconv.Itoa(port))
}

// Key 返回节点身份键
func (n *Node) Key() string {
	return NodeKey(n.IP, n.Port)
}

// Equal 按身份比较
func (n *Node) Equal(other *Node) bool {
	if n == nil || other == nil {
		return n == other
	}
	return n.IP == other.IP && n.Port == other.Port
}

// Is 判断节点是否为指定地址
func (n *Node) Is(ip string, port int) bool {
	return n != nil && n.IP == ip && n.Port == port
}

// State 返回存活状态
func (n *Node) State() NodeState {
	return NodeState(n.state.Load())
}

// SetState 设置存活状态
func (n *Node) SetState(s NodeState) {
	n.state.Store(int32(s))
}

// IsActive 节点是否存活
func (n *Node) IsActive() bool {
	return n.State() == NodeActive
}

// Role 返回节点角色
func (n *Node) Role() PeerRole {
	return PeerRole(n.role.Load())
}

// SetRole 设置节点角色
func (n *Node) SetRole(r PeerRole) {
	n.role.Store(int32(r))
}

// Copy 返回同身份、同状态的独立副本
func (n *Node) Copy() *Node {
	c := NewNode(n.IP, n.Port)
	c.SetState(n.State())
	c.SetRole(n.Role())
	return c
}

// String 返回 ip:port
func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	return n.Key()
}
