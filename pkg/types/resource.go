package types

import "sort"

// AggregatedResource 聚合资源
//
// 同一资源名在多个节点上被找到时，合并为一个 AggregatedResource。
type AggregatedResource struct {
	Name  string
	nodes map[string]*Node
}

// NewAggregatedResource 创建空的聚合资源
func NewAggregatedResource(name string) *AggregatedResource {
	return &AggregatedResource{Name: name, nodes: make(map[string]*Node)}
}

// AddNode 添加拥有该资源的节点，重复添加无效果
func (r *AggregatedResource) AddNode(n *Node) {
	if r.nodes == nil {
		r.nodes = make(map[string]*Node)
	}
	if _, ok := r.nodes[n.Key()]; !ok {
		r.nodes[n.Key()] = n
	}
}

// RemoveNode 移除节点
func (r *AggregatedResource) RemoveNode(ip string, port int) {
	delete(r.nodes, NodeKey(ip, port))
}

// HasNode 是否包含指定节点
func (r *AggregatedResource) HasNode(ip string, port int) bool {
	_, ok := r.nodes[NodeKey(ip, port)]
	return ok
}

// NodeCount 拥有该资源的节点数量
func (r *AggregatedResource) NodeCount() int {
	return len(r.nodes)
}

// Nodes 返回节点列表（按 ip:port 排序）
func (r *AggregatedResource) Nodes() []*Node {
	out := make([]*Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Clone 深拷贝
func (r *AggregatedResource) Clone() AggregatedResource {
	c := AggregatedResource{Name: r.Name, nodes: make(map[string]*Node, len(r.nodes))}
	for k, n := range r.nodes {
		c.nodes[k] = n.Copy()
	}
	return c
}
