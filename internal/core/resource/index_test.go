package resource

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-filesharer/pkg/types"
)

func TestOwnedIndex_SubstringMatch(t *testing.T) {
	idx := NewOwnedIndex("Lord of the Rings", "Lord of the Rings 2", "Cars")

	assert.Equal(t, []string{"Lord of the Rings", "Lord of the Rings 2"}, idx.FindResources("Lord"))
	assert.Equal(t, []string{"Cars"}, idx.FindResources("Cars"))
	assert.Empty(t, idx.FindResources("lord"), "匹配区分大小写")
	assert.Empty(t, idx.FindResources("Iron Man"))
}

func TestOwnedIndex_AddRemoveClear(t *testing.T) {
	idx := NewOwnedIndex()
	idx.AddOwnedResource("Thor")
	idx.AddOwnedResource("Thor")

	assert.Equal(t, []string{"Thor"}, idx.OwnedResources())
	assert.True(t, idx.RemoveOwnedResource("Thor"))
	assert.False(t, idx.RemoveOwnedResource("Thor"))

	idx.AddOwnedResource("Underworld")
	idx.Clear()
	assert.Empty(t, idx.OwnedResources())
}

func TestAggregatedIndex_GroupsNodes(t *testing.T) {
	idx := NewAggregatedIndex()
	node1 := types.NewNode("127.0.0.1", 1)
	node2 := types.NewNode("127.0.0.1", 2)

	idx.AddResourceToAggregatedIndex("Lord of the Rings", node1)
	idx.AddResourceToAggregatedIndex("Lord of the Rings", node2)
	idx.AddResourceToAggregatedIndex("Lord of the Rings", node2)
	idx.AddResourceToAggregatedIndex("Cars", node2)

	found := idx.FindAggregatedResources("Lord of the Rings")
	require.Len(t, found, 1)
	assert.Equal(t, 2, found[0].NodeCount())
	assert.True(t, found[0].HasNode("127.0.0.1", 1))
	assert.True(t, found[0].HasNode("127.0.0.1", 2))

	assert.Empty(t, idx.FindResources("Lord"), "聚合资源不属于本地资源")
}

func TestAggregatedIndex_AddAllReplacesPeerCatalogue(t *testing.T) {
	idx := NewAggregatedIndex()
	idx.AddAllAggregatedResources([]string{"Me Before You", "Endless Love"}, "127.0.0.1", 4)
	idx.AddAllAggregatedResources([]string{"Endless Love"}, "127.0.0.1", 5)

	require.Len(t, idx.FindAggregatedResources("Endless"), 1)
	assert.Equal(t, 2, idx.FindAggregatedResources("Endless")[0].NodeCount())

	// 重新上报后旧条目被替换
	idx.AddAllAggregatedResources([]string{"Life as we know it"}, "127.0.0.1", 4)
	assert.Empty(t, idx.FindAggregatedResources("Me Before"))
	assert.Equal(t, 1, idx.FindAggregatedResources("Endless")[0].NodeCount())
	assert.Len(t, idx.FindAggregatedResources("Life"), 1)

	idx.RemoveNodeFromAggregatedIndex("127.0.0.1", 5)
	assert.Empty(t, idx.FindAggregatedResources("Endless"))
	assert.Equal(t, 1, idx.AggregatedResourceCount())
}

func TestAggregatedIndex_ClearThenRepopulate(t *testing.T) {
	idx := NewAggregatedIndex("Iron Man")
	idx.AddAllAggregatedResources([]string{"Cars"}, "127.0.0.1", 1)

	idx.Clear()
	assert.Empty(t, idx.OwnedResources())
	assert.Equal(t, 0, idx.AggregatedResourceCount())

	idx.AddAllAggregatedResources([]string{"Cars"}, "127.0.0.1", 2)
	found := idx.FindAggregatedResources("Cars")
	require.Len(t, found, 1)
	assert.True(t, found[0].HasNode("127.0.0.1", 2))
}

func TestPromoteDemote_KeepsOwned(t *testing.T) {
	owned := NewOwnedIndex("X-Men Origins", "Captain America")

	agg := Promote(owned)
	assert.Equal(t, types.RoleSuper, agg.Role())
	assert.Equal(t, []string{"Captain America", "X-Men Origins"}, agg.OwnedResources())
	assert.Same(t, agg, Promote(agg))

	agg.AddAllAggregatedResources([]string{"Cars"}, "127.0.0.1", 9)
	back := Demote(agg)
	assert.Equal(t, types.RoleOrdinary, back.Role())
	assert.Equal(t, []string{"Captain America", "X-Men Origins"}, back.OwnedResources())
}

func TestAggregatedIndex_ConcurrentAccess(t *testing.T) {
	idx := NewAggregatedIndex()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(port int) {
			defer wg.Done()
			idx.AddAllAggregatedResources([]string{"Cars", "Thor"}, "127.0.0.1", port)
		}(i)
		go func() {
			defer wg.Done()
			_ = idx.FindAggregatedResources("Cars")
		}()
	}
	wg.Wait()

	found := idx.FindAggregatedResources("Cars")
	require.Len(t, found, 1)
	assert.Equal(t, 20, found[0].NodeCount())
}
