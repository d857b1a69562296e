// Package resource 实现资源索引
//
// 两种变体：
//   - OwnedIndex: 本节点拥有的资源名（位置隐含为本节点）
//   - AggregatedIndex: 超级节点使用，额外记录 资源名 -> 拥有该资源的已分配普通节点集合
//
// 查询均为区分大小写的子串匹配。节点角色变化时通过 Promote/Demote 切换变体，
// 本地资源随之保留。
package resource
