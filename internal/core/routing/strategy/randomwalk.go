package strategy

import (
	"math/rand/v2"

	"github.com/dep2p/go-filesharer/internal/core/routing/table"
	"github.com/dep2p/go-filesharer/pkg/protocol"
	"github.com/dep2p/go-filesharer/pkg/types"
)

// RandomWalk 在存活的非结构化邻居中均匀随机选择一个
type RandomWalk struct{}

var _ Strategy = (*RandomWalk)(nil)

// NewRandomWalk 创建随机游走策略
func NewRandomWalk() *RandomWalk {
	return &RandomWalk{}
}

// Name 策略类型
func (*RandomWalk) Name() types.RoutingStrategyType {
	return types.StrategyRandomWalk
}

// ForwardingNodes 恰好一个节点，没有候选时为空
func (*RandomWalk) ForwardingNodes(t table.Table, from *types.Node, _ *protocol.Message) []*types.Node {
	candidates := live(t.GetAllUnstructured(), from)
	if len(candidates) == 0 {
		return nil
	}
	return []*types.Node{candidates[rand.IntN(len(candidates))]}
}
