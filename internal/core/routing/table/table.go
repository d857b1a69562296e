package table

import (
	"sort"
	"sync"

	"github.com/dep2p/go-filesharer/pkg/types"
)

// Pool 路由表中的节点池
type Pool string

const (
	// PoolUnstructured 非结构化邻居
	PoolUnstructured Pool = "unstructured"
	// PoolSuperPeer 超级节点之间的连接（普通节点表中为已分配的超级节点）
	PoolSuperPeer Pool = "super"
	// PoolAssigned 分配给本超级节点的普通节点
	PoolAssigned Pool = "assigned"
)

// Limits 池容量，0 表示不限
type Limits struct {
	MaxUnstructuredPeers     int
	MaxSuperPeers            int
	MaxAssignedOrdinaryPeers int
}

// Table 路由表公共接口
type Table interface {
	// Role 变体标签
	Role() types.PeerRole

	// AddUnstructured 加入非结构化邻居池
	AddUnstructured(node *types.Node) bool

	// RemoveFromAll 从所有池中移除
	RemoveFromAll(ip string, port int) bool

	// Get 在所有池中按身份查找
	Get(ip string, port int) *types.Node

	// GetAll 所有池的并集
	GetAll() []*types.Node

	// GetAllUnstructured 非结构化邻居
	GetAllUnstructured() []*types.Node

	// CollectGarbage 原子地移除所有 INACTIVE 节点，返回被移除的节点
	CollectGarbage() []*types.Node

	// PoolSizes 各池大小
	PoolSizes() map[Pool]int

	// Clear 清空所有池
	Clear()

	sealed()
}

// ============================================================================
//                              公共部分
// ============================================================================

// base 两个变体共享的非结构化池
type base struct {
	mu           sync.RWMutex
	limits       Limits
	unstructured map[string]*types.Node
}

func newBase(limits Limits) base {
	return base{limits: limits, unstructured: make(map[string]*types.Node)}
}

func (b *base) addUnstructuredLocked(node *types.Node) bool {
	if existing, ok := b.unstructured[node.Key()]; ok {
		existing.SetState(types.NodeActive)
		return true
	}
	if full(b.limits.MaxUnstructuredPeers, len(b.unstructured)) {
		return false
	}
	b.unstructured[node.Key()] = node
	return true
}

// GetAllUnstructured 非结构化邻居副本
func (b *base) GetAllUnstructured() []*types.Node {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return values(b.unstructured)
}

func full(limit, size int) bool {
	return limit > 0 && size >= limit
}

func values(m map[string]*types.Node) []*types.Node {
	out := make([]*types.Node, 0, len(m))
	for _, n := range m {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func collectInactive(m map[string]*types.Node, removed map[string]*types.Node) {
	for k, n := range m {
		if !n.IsActive() {
			removed[k] = n
			delete(m, k)
		}
	}
}

// ============================================================================
//                              OrdinaryTable
// ============================================================================

// OrdinaryTable 普通节点路由表
type OrdinaryTable struct {
	base
	assignedSuperPeer *types.Node
}

var _ Table = (*OrdinaryTable)(nil)

// NewOrdinaryTable 创建普通节点路由表
func NewOrdinaryTable(limits Limits) *OrdinaryTable {
	return &OrdinaryTable{base: newBase(limits)}
}

func (t *OrdinaryTable) sealed() {}

// Role 普通节点
func (t *OrdinaryTable) Role() types.PeerRole {
	return types.RoleOrdinary
}

// resolveLocked 复用已存在的同身份节点
func (t *OrdinaryTable) resolveLocked(node *types.Node) *types.Node {
	if n, ok := t.unstructured[node.Key()]; ok {
		return n
	}
	if t.assignedSuperPeer.Equal(node) {
		return t.assignedSuperPeer
	}
	return node
}

// AddUnstructured 加入非结构化邻居池
func (t *OrdinaryTable) AddUnstructured(node *types.Node) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addUnstructuredLocked(t.resolveLocked(node))
}

// SetAssignedSuperPeer 设置已分配的超级节点，替换旧值
func (t *OrdinaryTable) SetAssignedSuperPeer(node *types.Node) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.resolveLocked(node)
	n.SetRole(types.RoleSuper)
	n.SetState(types.NodeActive)
	t.assignedSuperPeer = n
}

// AssignedSuperPeer 返回已分配的超级节点，可能为 nil
func (t *OrdinaryTable) AssignedSuperPeer() *types.Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.assignedSuperPeer
}

// ClearAssignedSuperPeer 清除已分配的超级节点
func (t *OrdinaryTable) ClearAssignedSuperPeer() {
	t.mu.Lock()
	t.assignedSuperPeer = nil
	t.mu.Unlock()
}

// RemoveFromAll 从所有池中移除
func (t *OrdinaryTable) RemoveFromAll(ip string, port int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := types.NodeKey(ip, port)
	_, removed := t.unstructured[key]
	delete(t.unstructured, key)
	if t.assignedSuperPeer.Is(ip, port) {
		t.assignedSuperPeer = nil
		removed = true
	}
	return removed
}

// Get 按身份查找
func (t *OrdinaryTable) Get(ip string, port int) *types.Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if n, ok := t.unstructured[types.NodeKey(ip, port)]; ok {
		return n
	}
	if t.assignedSuperPeer.Is(ip, port) {
		return t.assignedSuperPeer
	}
	return nil
}

// GetAll 所有节点
func (t *OrdinaryTable) GetAll() []*types.Node {
	t.mu.RLock()
	defer t.mu.RUnlock()

	all := make(map[string]*types.Node, len(t.unstructured)+1)
	for k, n := range t.unstructured {
		all[k] = n
	}
	if t.assignedSuperPeer != nil {
		all[t.assignedSuperPeer.Key()] = t.assignedSuperPeer
	}
	return values(all)
}

// CollectGarbage 移除 INACTIVE 节点
func (t *OrdinaryTable) CollectGarbage() []*types.Node {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := make(map[string]*types.Node)
	collectInactive(t.unstructured, removed)
	if t.assignedSuperPeer != nil && !t.assignedSuperPeer.IsActive() {
		removed[t.assignedSuperPeer.Key()] = t.assignedSuperPeer
		t.assignedSuperPeer = nil
	}
	return values(removed)
}

// PoolSizes 各池大小
func (t *OrdinaryTable) PoolSizes() map[Pool]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	super := 0
	if t.assignedSuperPeer != nil {
		super = 1
	}
	return map[Pool]int{PoolUnstructured: len(t.unstructured), PoolSuperPeer: super, PoolAssigned: 0}
}

// Clear 清空
func (t *OrdinaryTable) Clear() {
	t.mu.Lock()
	t.unstructured = make(map[string]*types.Node)
	t.assignedSuperPeer = nil
	t.mu.Unlock()
}

// ============================================================================
//                              SuperTable
// ============================================================================

// SuperTable 超级节点路由表
type SuperTable struct {
	base
	superPeers map[string]*types.Node
	assigned   map[string]*types.Node
}

var _ Table = (*SuperTable)(nil)

// NewSuperTable 创建超级节点路由表
func NewSuperTable(limits Limits) *SuperTable {
	return &SuperTable{
		base:       newBase(limits),
		superPeers: make(map[string]*types.Node),
		assigned:   make(map[string]*types.Node),
	}
}

func (t *SuperTable) sealed() {}

// Role 超级节点
func (t *SuperTable) Role() types.PeerRole {
	return types.RoleSuper
}

// Limits 返回容量配置
func (t *SuperTable) Limits() Limits {
	return t.limits
}

func (t *SuperTable) resolveLocked(node *types.Node) *types.Node {
	key := node.Key()
	for _, pool := range []map[string]*types.Node{t.unstructured, t.superPeers, t.assigned} {
		if n, ok := pool[key]; ok {
			return n
		}
	}
	return node
}

// AddUnstructured 加入非结构化邻居池
func (t *SuperTable) AddUnstructured(node *types.Node) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addUnstructuredLocked(t.resolveLocked(node))
}

// AddSuperPeer 加入超级节点池，已满返回 false
func (t *SuperTable) AddSuperPeer(node *types.Node) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addBoundedLocked(t.superPeers, t.limits.MaxSuperPeers, node, types.RoleSuper)
}

// AddAssignedOrdinaryPeer 加入已分配普通节点池，已满返回 false
func (t *SuperTable) AddAssignedOrdinaryPeer(node *types.Node) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addBoundedLocked(t.assigned, t.limits.MaxAssignedOrdinaryPeers, node, types.RoleOrdinary)
}

func (t *SuperTable) addBoundedLocked(pool map[string]*types.Node, limit int, node *types.Node, role types.PeerRole) bool {
	if existing, ok := pool[node.Key()]; ok {
		existing.SetState(types.NodeActive)
		return true
	}
	if full(limit, len(pool)) {
		return false
	}
	n := t.resolveLocked(node)
	n.SetRole(role)
	pool[n.Key()] = n
	return true
}

// GetAllSuperPeers 超级节点池副本
func (t *SuperTable) GetAllSuperPeers() []*types.Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return values(t.superPeers)
}

// GetAllAssignedOrdinaryPeers 已分配普通节点池副本
func (t *SuperTable) GetAllAssignedOrdinaryPeers() []*types.Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return values(t.assigned)
}

// IsAssignedOrdinaryPeer 是否为已分配的普通节点
func (t *SuperTable) IsAssignedOrdinaryPeer(ip string, port int) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.assigned[types.NodeKey(ip, port)]
	return ok
}

// AssignedOrdinaryPeersFull 已分配池是否已满
func (t *SuperTable) AssignedOrdinaryPeersFull() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return full(t.limits.MaxAssignedOrdinaryPeers, len(t.assigned))
}

// RemoveFromAll 从所有池中移除
func (t *SuperTable) RemoveFromAll(ip string, port int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := types.NodeKey(ip, port)
	removed := false
	for _, pool := range []map[string]*types.Node{t.unstructured, t.superPeers, t.assigned} {
		if _, ok := pool[key]; ok {
			delete(pool, key)
			removed = true
		}
	}
	return removed
}

// Get 按身份查找
func (t *SuperTable) Get(ip string, port int) *types.Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	key := types.NodeKey(ip, port)
	for _, pool := range []map[string]*types.Node{t.unstructured, t.superPeers, t.assigned} {
		if n, ok := pool[key]; ok {
			return n
		}
	}
	return nil
}

// GetAll 所有节点
func (t *SuperTable) GetAll() []*types.Node {
	t.mu.RLock()
	defer t.mu.RUnlock()

	all := make(map[string]*types.Node)
	for _, pool := range []map[string]*types.Node{t.unstructured, t.superPeers, t.assigned} {
		for k, n := range pool {
			all[k] = n
		}
	}
	return values(all)
}

// CollectGarbage 移除 INACTIVE 节点
func (t *SuperTable) CollectGarbage() []*types.Node {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := make(map[string]*types.Node)
	collectInactive(t.unstructured, removed)
	collectInactive(t.superPeers, removed)
	collectInactive(t.assigned, removed)
	return values(removed)
}

// PoolSizes 各池大小
func (t *SuperTable) PoolSizes() map[Pool]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return map[Pool]int{
		PoolUnstructured: len(t.unstructured),
		PoolSuperPeer:    len(t.superPeers),
		PoolAssigned:     len(t.assigned),
	}
}

// Clear 清空
func (t *SuperTable) Clear() {
	t.mu.Lock()
	t.unstructured = make(map[string]*types.Node)
	t.superPeers = make(map[string]*types.Node)
	t.assigned = make(map[string]*types.Node)
	t.mu.Unlock()
}

// ============================================================================
//                              变体切换
// ============================================================================

// Promote 构造超级节点表，保留非结构化邻居，丢弃已分配的超级节点
func Promote(t Table, limits Limits) *SuperTable {
	st := NewSuperTable(limits)
	for _, n := range t.GetAllUnstructured() {
		st.unstructured[n.Key()] = n
	}
	return st
}

// Demote 构造普通节点表，保留非结构化邻居，丢弃超级节点专属的池
func Demote(t Table, limits Limits) *OrdinaryTable {
	ot := NewOrdinaryTable(limits)
	for _, n := range t.GetAllUnstructured() {
		ot.unstructured[n.Key()] = n
	}
	return ot
}
