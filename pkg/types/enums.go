package types

import (
	"fmt"
	"strings"
)

// ============================================================================
//                              NodeState - 节点存活状态
// ============================================================================

// NodeState 节点存活状态
type NodeState int32

const (
	// NodeActive 节点存活
	NodeActive NodeState = iota
	// NodeInactive 节点不可达，等待垃圾回收
	NodeInactive
)

// String 返回状态的字符串表示
func (s NodeState) String() string {
	switch s {
	case NodeActive:
		return "active"
	case NodeInactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// ============================================================================
//                              PeerRole - 节点角色
// ============================================================================

// PeerRole 节点在覆盖网络中的角色
type PeerRole int32

const (
	// RoleOrdinary 普通节点
	RoleOrdinary PeerRole = iota
	// RoleSuper 超级节点，维护分配给它的普通节点的聚合索引
	RoleSuper
)

// String 返回角色的字符串表示
func (r PeerRole) String() string {
	switch r {
	case RoleOrdinary:
		return "ordinary"
	case RoleSuper:
		return "super"
	default:
		return "unknown"
	}
}

// ============================================================================
//                              RoutingStrategyType - 路由策略
// ============================================================================

// RoutingStrategyType 路由策略类型
type RoutingStrategyType string

const (
	// StrategyFlooding 非结构化泛洪
	StrategyFlooding RoutingStrategyType = "flooding"
	// StrategyRandomWalk 非结构化随机游走
	StrategyRandomWalk RoutingStrategyType = "random-walk"
	// StrategySuperPeerFlooding 感知超级节点的泛洪
	StrategySuperPeerFlooding RoutingStrategyType = "super-peer-flooding"
)

// ParseRoutingStrategyType 解析策略名称（大小写不敏感，兼容下划线写法）
func ParseRoutingStrategyType(s string) (RoutingStrategyType, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	switch RoutingStrategyType(normalized) {
	case StrategyFlooding, "unstructured-flooding":
		return StrategyFlooding, nil
	case StrategyRandomWalk, "unstructured-random-walk":
		return StrategyRandomWalk, nil
	case StrategySuperPeerFlooding:
		return StrategySuperPeerFlooding, nil
	}
	return "", fmt.Errorf("unknown routing strategy %q", s)
}

// ============================================================================
//                              NetworkHandlerType - 传输类型
// ============================================================================

// NetworkHandlerType 网络处理器类型
type NetworkHandlerType string

const (
	// HandlerTCP 基于 TCP 的处理器
	HandlerTCP NetworkHandlerType = "tcp"
	// HandlerUDP 基于 UDP 的确认重传处理器
	HandlerUDP NetworkHandlerType = "udp"
	// HandlerMemory 进程内处理器（测试与仿真）
	HandlerMemory NetworkHandlerType = "memory"
)

// Valid 检查处理器类型是否受支持
func (t NetworkHandlerType) Valid() bool {
	switch t {
	case HandlerTCP, HandlerUDP, HandlerMemory:
		return true
	}
	return false
}
