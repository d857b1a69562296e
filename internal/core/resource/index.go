package resource

import (
	"sort"
	"strings"
	"sync"

	"github.com/dep2p/go-filesharer/pkg/types"
)

// Index 资源索引的公共接口
type Index interface {
	// Role 返回该索引对应的节点角色
	Role() types.PeerRole

	// AddOwnedResource 添加本地资源
	AddOwnedResource(name string)

	// RemoveOwnedResource 移除本地资源
	RemoveOwnedResource(name string) bool

	// FindResources 返回名称包含 query 的本地资源（排序）
	FindResources(query string) []string

	// OwnedResources 返回全部本地资源（排序）
	OwnedResources() []string

	// Clear 清空索引
	Clear()
}

// ============================================================================
//                              OwnedIndex
// ============================================================================

// OwnedIndex 本地资源索引
type OwnedIndex struct {
	mu    sync.RWMutex
	owned map[string]struct{}
}

var _ Index = (*OwnedIndex)(nil)

// NewOwnedIndex 创建本地资源索引
func NewOwnedIndex(names ...string) *OwnedIndex {
	idx := &OwnedIndex{owned: make(map[string]struct{}, len(names))}
	for _, name := range names {
		idx.owned[name] = struct{}{}
	}
	return idx
}

// Role 普通节点
func (idx *OwnedIndex) Role() types.PeerRole {
	return types.RoleOrdinary
}

// AddOwnedResource 添加本地资源
func (idx *OwnedIndex) AddOwnedResource(name string) {
	idx.mu.Lock()
	idx.owned[name] = struct{}{}
	idx.mu.Unlock()
}

// RemoveOwnedResource 移除本地资源
func (idx *OwnedIndex) RemoveOwnedResource(name string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, ok := idx.owned[name]; !ok {
		return false
	}
	delete(idx.owned, name)
	return true
}

// FindResources 子串匹配本地资源
func (idx *OwnedIndex) FindResources(query string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var out []string
	for name := range idx.owned {
		if strings.Contains(name, query) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// OwnedResources 全部本地资源
func (idx *OwnedIndex) OwnedResources() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]string, 0, len(idx.owned))
	for name := range idx.owned {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Clear 清空本地资源
func (idx *OwnedIndex) Clear() {
	idx.mu.Lock()
	idx.owned = make(map[string]struct{})
	idx.mu.Unlock()
}

// ============================================================================
//                              AggregatedIndex
// ============================================================================

// AggregatedIndex 超级节点的聚合索引
//
// 本地资源与聚合资源各自加锁。
type AggregatedIndex struct {
	*OwnedIndex

	aggMu      sync.RWMutex
	aggregated map[string]map[string]*types.Node // 资源名 -> ip:port -> 节点
}

var _ Index = (*AggregatedIndex)(nil)

// NewAggregatedIndex 创建聚合索引
func NewAggregatedIndex(owned ...string) *AggregatedIndex {
	return &AggregatedIndex{
		OwnedIndex: NewOwnedIndex(owned...),
		aggregated: make(map[string]map[string]*types.Node),
	}
}

// Role 超级节点
func (idx *AggregatedIndex) Role() types.PeerRole {
	return types.RoleSuper
}

// AddResourceToAggregatedIndex 记录 node 拥有 name
func (idx *AggregatedIndex) AddResourceToAggregatedIndex(name string, node *types.Node) {
	idx.aggMu.Lock()
	defer idx.aggMu.Unlock()
	idx.addLocked(name, node)
}

func (idx *AggregatedIndex) addLocked(name string, node *types.Node) {
	nodes, ok := idx.aggregated[name]
	if !ok {
		nodes = make(map[string]*types.Node)
		idx.aggregated[name] = nodes
	}
	nodes[node.Key()] = node
}

// AddAllAggregatedResources 用一个节点上报的完整资源列表替换它之前的条目
func (idx *AggregatedIndex) AddAllAggregatedResources(names []string, ip string, port int) {
	node := types.NewNode(ip, port)

	idx.aggMu.Lock()
	defer idx.aggMu.Unlock()

	idx.removeNodeLocked(node.Key())
	for _, name := range names {
		idx.addLocked(name, node)
	}
}

// RemoveNodeFromAggregatedIndex 移除某节点的所有聚合条目
func (idx *AggregatedIndex) RemoveNodeFromAggregatedIndex(ip string, port int) {
	idx.aggMu.Lock()
	defer idx.aggMu.Unlock()
	idx.removeNodeLocked(types.NodeKey(ip, port))
}

func (idx *AggregatedIndex) removeNodeLocked(key string) {
	for name, nodes := range idx.aggregated {
		delete(nodes, key)
		if len(nodes) == 0 {
			delete(idx.aggregated, name)
		}
	}
}

// FindAggregatedResources 子串匹配聚合资源，按名称排序
func (idx *AggregatedIndex) FindAggregatedResources(query string) []*types.AggregatedResource {
	idx.aggMu.RLock()
	defer idx.aggMu.RUnlock()

	var out []*types.AggregatedResource
	for name, nodes := range idx.aggregated {
		if !strings.Contains(name, query) {
			continue
		}
		r := types.NewAggregatedResource(name)
		for _, n := range nodes {
			r.AddNode(n)
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AggregatedResourceCount 聚合索引中的资源名数量
func (idx *AggregatedIndex) AggregatedResourceCount() int {
	idx.aggMu.RLock()
	defer idx.aggMu.RUnlock()
	return len(idx.aggregated)
}

// ClearAggregatedIndex 只清空聚合部分
func (idx *AggregatedIndex) ClearAggregatedIndex() {
	idx.aggMu.Lock()
	idx.aggregated = make(map[string]map[string]*types.Node)
	idx.aggMu.Unlock()
}

// Clear 清空本地与聚合资源
func (idx *AggregatedIndex) Clear() {
	idx.OwnedIndex.Clear()
	idx.ClearAggregatedIndex()
}

// ============================================================================
//                              变体切换
// ============================================================================

// Promote 构造聚合索引，保留本地资源
func Promote(idx Index) *AggregatedIndex {
	if agg, ok := idx.(*AggregatedIndex); ok {
		return agg
	}
	return NewAggregatedIndex(idx.OwnedResources()...)
}

// Demote 构造本地索引，丢弃聚合资源
func Demote(idx Index) *OwnedIndex {
	return NewOwnedIndex(idx.OwnedResources()...)
}
