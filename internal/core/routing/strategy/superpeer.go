package strategy

import (
	"github.com/dep2p/go-filesharer/internal/core/resource"
	"github.com/dep2p/go-filesharer/internal/core/routing/table"
	"github.com/dep2p/go-filesharer/pkg/protocol"
	"github.com/dep2p/go-filesharer/pkg/types"
)

// SuperPeerFlooding 感知角色的泛洪
//
// 普通节点：已分配的超级节点存活时只发给它，否则退化为非结构化泛洪。
// 超级节点：聚合索引命中时只发给拥有该资源的已分配节点，否则发给超级节点池。
type SuperPeerFlooding struct {
	indexes IndexSource
}

var _ Strategy = (*SuperPeerFlooding)(nil)

// NewSuperPeerFlooding 创建超级节点泛洪策略
func NewSuperPeerFlooding(indexes IndexSource) *SuperPeerFlooding {
	return &SuperPeerFlooding{indexes: indexes}
}

// Name 策略类型
func (*SuperPeerFlooding) Name() types.RoutingStrategyType {
	return types.StrategySuperPeerFlooding
}

// ForwardingNodes 按路由表变体选择转发目标
func (s *SuperPeerFlooding) ForwardingNodes(t table.Table, from *types.Node, msg *protocol.Message) []*types.Node {
	switch tbl := t.(type) {
	case *table.OrdinaryTable:
		if sp := tbl.AssignedSuperPeer(); sp != nil && sp.IsActive() && !sp.Equal(from) {
			return []*types.Node{sp}
		}
		return live(tbl.GetAllUnstructured(), from)

	case *table.SuperTable:
		if owners := s.aggregatedOwners(tbl, from, msg); len(owners) > 0 {
			return owners
		}
		return live(tbl.GetAllSuperPeers(), from)
	}
	return nil
}

// aggregatedOwners 聚合索引中拥有查询资源的存活节点
func (s *SuperPeerFlooding) aggregatedOwners(tbl *table.SuperTable, from *types.Node, msg *protocol.Message) []*types.Node {
	if s.indexes == nil || msg == nil || msg.Type != protocol.TypeSer {
		return nil
	}
	agg, ok := s.indexes.ResourceIndex().(*resource.AggregatedIndex)
	if !ok {
		return nil
	}

	owners := make(map[string]*types.Node)
	for _, r := range agg.FindAggregatedResources(msg.Field(protocol.SerQuery)) {
		for _, n := range r.Nodes() {
			// 以路由表中的节点为准，才能反映最新的存活状态
			if known := tbl.Get(n.IP, n.Port); known != nil {
				n = known
			}
			owners[n.Key()] = n
		}
	}

	nodes := make([]*types.Node, 0, len(owners))
	for _, n := range owners {
		nodes = append(nodes, n)
	}
	return live(nodes, from)
}
