package strategy

import (
	"github.com/dep2p/go-filesharer/internal/core/routing/table"
	"github.com/dep2p/go-filesharer/pkg/protocol"
	"github.com/dep2p/go-filesharer/pkg/types"
)

// Flooding 向所有存活的非结构化邻居转发
type Flooding struct{}

var _ Strategy = (*Flooding)(nil)

// NewFlooding 创建泛洪策略
func NewFlooding() *Flooding {
	return &Flooding{}
}

// Name 策略类型
func (*Flooding) Name() types.RoutingStrategyType {
	return types.StrategyFlooding
}

// ForwardingNodes 非结构化邻居（去掉 from 与 INACTIVE）
func (*Flooding) ForwardingNodes(t table.Table, from *types.Node, _ *protocol.Message) []*types.Node {
	return live(t.GetAllUnstructured(), from)
}
