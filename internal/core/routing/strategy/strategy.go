// Package strategy 实现路由策略
//
// 策略根据路由表与入站消息决定转发目标。策略对路由表只读；
// 结果中排除发送方 from（from 为 nil 表示消息由本节点发起）以及 INACTIVE 节点。
// 结果集合没有顺序保证。
package strategy

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-filesharer/internal/core/resource"
	"github.com/dep2p/go-filesharer/internal/core/routing/table"
	"github.com/dep2p/go-filesharer/pkg/protocol"
	"github.com/dep2p/go-filesharer/pkg/types"
)

// ErrUnknownStrategy 未知的策略类型
var ErrUnknownStrategy = errors.New("unknown routing strategy")

// Strategy 路由策略
type Strategy interface {
	// Name 策略类型
	Name() types.RoutingStrategyType

	// ForwardingNodes 返回转发目标
	ForwardingNodes(t table.Table, from *types.Node, msg *protocol.Message) []*types.Node
}

// IndexSource 提供当前资源索引（超级节点泛洪需要查询聚合索引）
type IndexSource interface {
	ResourceIndex() resource.Index
}

// New 按类型创建策略
func New(kind types.RoutingStrategyType, indexes IndexSource) (Strategy, error) {
	switch kind {
	case types.StrategyFlooding:
		return NewFlooding(), nil
	case types.StrategyRandomWalk:
		return NewRandomWalk(), nil
	case types.StrategySuperPeerFlooding:
		return NewSuperPeerFlooding(indexes), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, kind)
}

// live 过滤掉 from 与 INACTIVE 节点
func live(nodes []*types.Node, from *types.Node) []*types.Node {
	out := make([]*types.Node, 0, len(nodes))
	for _, n := range nodes {
		if n.IsActive() && !n.Equal(from) {
			out = append(out, n)
		}
	}
	return out
}
