package strategy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-filesharer/internal/core/resource"
	"github.com/dep2p/go-filesharer/internal/core/routing/table"
	"github.com/dep2p/go-filesharer/pkg/protocol"
	"github.com/dep2p/go-filesharer/pkg/types"
)

// ============================================================================
//                              测试夹具
// ============================================================================

// fixedIndex 固定返回同一个索引
type fixedIndex struct {
	idx resource.Index
}

func (f fixedIndex) ResourceIndex() resource.Index { return f.idx }

type fixture struct {
	from                *types.Node
	node1, node2, node3 *types.Node
	node4, node5        *types.Node
	ordinary            *table.OrdinaryTable
	super               *table.SuperTable
	index               *resource.AggregatedIndex
	message             *protocol.Message
}

// newFixture 与超级节点泛洪的经典用例一致：
// 非结构化池 {from,1,2,3,4,5}，已分配普通节点 {from,1,2,3}，超级节点池 {from,4,5}，
// 普通节点表的已分配超级节点为 node1
func newFixture() *fixture {
	f := &fixture{
		from:  types.NewNode("192.168.1.100", 5000),
		node1: types.NewNode("192.168.1.1", 5001),
		node2: types.NewNode("192.168.1.2", 5002),
		node3: types.NewNode("192.168.1.3", 5003),
		node4: types.NewNode("192.168.1.4", 5004),
		node5: types.NewNode("192.168.1.5", 5005),
		index: resource.NewAggregatedIndex(),
	}

	f.ordinary = table.NewOrdinaryTable(table.Limits{})
	f.super = table.NewSuperTable(table.Limits{})
	for _, n := range []*types.Node{f.from, f.node1, f.node2, f.node3, f.node4, f.node5} {
		f.ordinary.AddUnstructured(n)
		f.super.AddUnstructured(n)
	}
	f.ordinary.SetAssignedSuperPeer(f.node1)
	for _, n := range []*types.Node{f.from, f.node1, f.node2, f.node3} {
		f.super.AddAssignedOrdinaryPeer(n)
	}
	for _, n := range []*types.Node{f.from, f.node4, f.node5} {
		f.super.AddSuperPeer(n)
	}

	f.message = protocol.New(protocol.TypeSer, "192.168.1.100", "5000", "1", "0", "Lord of the Rings")
	return f
}

func keys(nodes []*types.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Key())
	}
	return out
}

// ============================================================================
//                              Flooding
// ============================================================================

func TestFlooding_ExcludesSender(t *testing.T) {
	f := newFixture()
	s := NewFlooding()

	nodes := s.ForwardingNodes(f.ordinary, f.from, f.message)
	assert.Len(t, nodes, 5, "N-1")
	assert.NotContains(t, keys(nodes), f.from.Key())

	nodes = s.ForwardingNodes(f.ordinary, nil, f.message)
	assert.Len(t, nodes, 6, "自身发起时为 N")
}

func TestFlooding_ExcludesInactive(t *testing.T) {
	f := newFixture()
	f.node2.SetState(types.NodeInactive)
	f.node3.SetState(types.NodeInactive)

	nodes := NewFlooding().ForwardingNodes(f.super, f.from, f.message)
	assert.ElementsMatch(t, []string{f.node1.Key(), f.node4.Key(), f.node5.Key()}, keys(nodes))
}

func TestFlooding_DoesNotMutateTable(t *testing.T) {
	f := newFixture()
	before := len(f.ordinary.GetAllUnstructured())
	_ = NewFlooding().ForwardingNodes(f.ordinary, f.from, f.message)
	assert.Equal(t, before, len(f.ordinary.GetAllUnstructured()))
}

// ============================================================================
//                              RandomWalk
// ============================================================================

func TestRandomWalk_ExactlyOneLiveNode(t *testing.T) {
	f := newFixture()
	f.node2.SetState(types.NodeInactive)
	s := NewRandomWalk()

	members := map[string]bool{}
	for _, n := range f.ordinary.GetAllUnstructured() {
		members[n.Key()] = true
	}

	for i := 0; i < 200; i++ {
		nodes := s.ForwardingNodes(f.ordinary, f.from, f.message)
		require.Len(t, nodes, 1)
		assert.True(t, members[nodes[0].Key()])
		assert.True(t, nodes[0].IsActive())
		assert.False(t, nodes[0].Equal(f.from))
	}
}

func TestRandomWalk_NoCandidates(t *testing.T) {
	ot := table.NewOrdinaryTable(table.Limits{})
	only := types.NewNode("10.0.0.1", 1)
	ot.AddUnstructured(only)

	assert.Empty(t, NewRandomWalk().ForwardingNodes(ot, only, nil))

	only.SetState(types.NodeInactive)
	assert.Empty(t, NewRandomWalk().ForwardingNodes(ot, nil, nil))
}

// ============================================================================
//                              SuperPeerFlooding - 普通节点表
// ============================================================================

func TestSuperPeerFlooding_OrdinaryForwardsToAssignedSuperPeer(t *testing.T) {
	f := newFixture()
	s := NewSuperPeerFlooding(fixedIndex{f.index})

	nodes := s.ForwardingNodes(f.ordinary, f.from, f.message)
	require.Len(t, nodes, 1)
	assert.True(t, nodes[0].Equal(f.node1))

	nodes = s.ForwardingNodes(f.ordinary, nil, f.message)
	require.Len(t, nodes, 1)
	assert.True(t, nodes[0].Equal(f.node1))
}

func TestSuperPeerFlooding_OrdinaryFallsBackWhenSuperPeerDead(t *testing.T) {
	f := newFixture()
	f.node1.SetState(types.NodeInactive)
	s := NewSuperPeerFlooding(fixedIndex{f.index})

	nodes := s.ForwardingNodes(f.ordinary, f.from, f.message)
	assert.ElementsMatch(t, []string{f.node2.Key(), f.node3.Key(), f.node4.Key(), f.node5.Key()}, keys(nodes))
}

func TestSuperPeerFlooding_OrdinaryWithoutSuperPeerFloods(t *testing.T) {
	f := newFixture()
	f.ordinary.ClearAssignedSuperPeer()
	s := NewSuperPeerFlooding(fixedIndex{f.index})

	assert.Len(t, s.ForwardingNodes(f.ordinary, f.from, f.message), 5)
	assert.Len(t, s.ForwardingNodes(f.ordinary, nil, f.message), 6)
}

// ============================================================================
//                              SuperPeerFlooding - 超级节点表
// ============================================================================

func TestSuperPeerFlooding_SuperAggregatedMatch(t *testing.T) {
	f := newFixture()
	f.index.AddResourceToAggregatedIndex("Lord of the Rings", f.node1)
	f.index.AddResourceToAggregatedIndex("Lord of the Rings", f.node2)
	s := NewSuperPeerFlooding(fixedIndex{f.index})

	nodes := s.ForwardingNodes(f.super, f.from, f.message)
	assert.ElementsMatch(t, []string{f.node1.Key(), f.node2.Key()}, keys(nodes))

	nodes = s.ForwardingNodes(f.super, nil, f.message)
	assert.ElementsMatch(t, []string{f.node1.Key(), f.node2.Key()}, keys(nodes))
}

func TestSuperPeerFlooding_SuperAggregatedMatchExcludesInactive(t *testing.T) {
	f := newFixture()
	f.index.AddResourceToAggregatedIndex("Lord of the Rings", f.node1)
	f.index.AddResourceToAggregatedIndex("Lord of the Rings", f.node2)
	f.node1.SetState(types.NodeInactive)
	s := NewSuperPeerFlooding(fixedIndex{f.index})

	nodes := s.ForwardingNodes(f.super, f.from, f.message)
	assert.Equal(t, []string{f.node2.Key()}, keys(nodes))
}

func TestSuperPeerFlooding_SuperAggregatedMatchUsesTableLiveness(t *testing.T) {
	f := newFixture()
	// 通过 ip/port 上报的目录条目，存活状态以路由表中的节点为准
	f.index.AddAllAggregatedResources([]string{"Lord of the Rings"}, f.node3.IP, f.node3.Port)
	f.node3.SetState(types.NodeInactive)
	s := NewSuperPeerFlooding(fixedIndex{f.index})

	nodes := s.ForwardingNodes(f.super, f.from, f.message)
	assert.ElementsMatch(t, []string{f.node4.Key(), f.node5.Key()}, keys(nodes))
}

func TestSuperPeerFlooding_SuperNoMatchUsesSuperPeerPool(t *testing.T) {
	f := newFixture()
	s := NewSuperPeerFlooding(fixedIndex{f.index})

	nodes := s.ForwardingNodes(f.super, f.from, f.message)
	assert.ElementsMatch(t, []string{f.node4.Key(), f.node5.Key()}, keys(nodes))

	nodes = s.ForwardingNodes(f.super, nil, f.message)
	assert.ElementsMatch(t, []string{f.from.Key(), f.node4.Key(), f.node5.Key()}, keys(nodes))
}

func TestSuperPeerFlooding_SuperPeerPoolExcludesInactive(t *testing.T) {
	f := newFixture()
	f.node4.SetState(types.NodeInactive)
	s := NewSuperPeerFlooding(fixedIndex{f.index})

	nodes := s.ForwardingNodes(f.super, f.from, f.message)
	assert.Equal(t, []string{f.node5.Key()}, keys(nodes))
}

func TestSuperPeerFlooding_NonSearchMessageSkipsIndex(t *testing.T) {
	f := newFixture()
	f.index.AddResourceToAggregatedIndex("Lord of the Rings", f.node1)
	s := NewSuperPeerFlooding(fixedIndex{f.index})

	msg := protocol.New(protocol.TypeSerSuperPeer, "192.168.1.100", "5000", "1", "0")
	nodes := s.ForwardingNodes(f.super, f.from, msg)
	assert.ElementsMatch(t, []string{f.node4.Key(), f.node5.Key()}, keys(nodes))
}

// ============================================================================
//                              工厂
// ============================================================================

func TestNew(t *testing.T) {
	for _, kind := range []types.RoutingStrategyType{
		types.StrategyFlooding, types.StrategyRandomWalk, types.StrategySuperPeerFlooding,
	} {
		s, err := New(kind, nil)
		require.NoError(t, err)
		assert.Equal(t, kind, s.Name())
	}

	_, err := New("chord", nil)
	assert.True(t, errors.Is(err, ErrUnknownStrategy))
}
