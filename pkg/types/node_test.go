package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNode_Identity(t *testing.T) {
	a := NewNode("127.0.0.1", 5000)
	b := NewNode("127.0.0.1", 5000)
	c := NewNode("127.0.0.1", 5001)

	b.SetState(NodeInactive)
	b.SetRole(RoleSuper)

	assert.True(t, a.Equal(b), "状态与角色不参与相等判断")
	assert.False(t, a.Equal(c))
	assert.Equal(t, "127.0.0.1:5000", a.Key())
	assert.True(t, a.Is("127.0.0.1", 5000))
}

func TestNode_DefaultsActiveOrdinary(t *testing.T) {
	n := NewNode("10.0.0.1", 1)
	assert.True(t, n.IsActive())
	assert.Equal(t, RoleOrdinary, n.Role())

	n.SetState(NodeInactive)
	assert.False(t, n.IsActive())
	assert.Equal(t, "inactive", n.State().String())
}

func TestParseNode(t *testing.T) {
	n, err := ParseNode("192.168.1.2:4455")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.2", n.IP)
	assert.Equal(t, 4455, n.Port)

	_, err = ParseNode("no-port")
	assert.Error(t, err)
	_, err = ParseNode("1.2.3.4:notaport")
	assert.Error(t, err)
}

func TestAggregatedResource_UnionsNodes(t *testing.T) {
	r := NewAggregatedResource("Cars")
	r.AddNode(NewNode("127.0.0.1", 2))
	r.AddNode(NewNode("127.0.0.1", 1))
	r.AddNode(NewNode("127.0.0.1", 1))

	assert.Equal(t, 2, r.NodeCount())
	assert.True(t, r.HasNode("127.0.0.1", 1))

	nodes := r.Nodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, 1, nodes[0].Port)

	c := r.Clone()
	r.RemoveNode("127.0.0.1", 1)
	assert.Equal(t, 1, r.NodeCount())
	assert.Equal(t, 2, c.NodeCount(), "Clone 不受原对象修改影响")
}

func TestParseRoutingStrategyType_Names(t *testing.T) {
	cases := map[string]RoutingStrategyType{
		"flooding":              StrategyFlooding,
		"UNSTRUCTURED_FLOODING": StrategyFlooding,
		"random_walk":           StrategyRandomWalk,
		"SUPER_PEER_FLOODING":   StrategySuperPeerFlooding,
	}
	for in, want := range cases {
		got, err := ParseRoutingStrategyType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseRoutingStrategyType("chord")
	assert.Error(t, err)
}
