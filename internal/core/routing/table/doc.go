// Package table 实现路由表
//
// 路由表是一个封闭的和类型（sealed interface），只有两个变体：
//   - OrdinaryTable: 非结构化邻居池 + 至多一个已分配的超级节点
//   - SuperTable: 非结构化邻居池 + 超级节点池（有上限）+ 已分配普通节点池（有上限）
//
// 有上限的池在插入时检查容量，已满则返回 false 且不修改。
// 同一身份的节点在多个池中共享同一个 *types.Node，一次存活状态更新对所有池可见。
// 所有返回的切片都是副本。
package table
