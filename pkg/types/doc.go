// Package types 定义 filesharer 的公共数据类型
//
// 包括：
//   - Node: 远端节点的身份（ip:port）与存活/角色状态
//   - AggregatedResource: 聚合后的查询结果（资源名 + 拥有该资源的节点集合）
//   - 枚举：NodeState、PeerRole、RoutingStrategyType、NetworkHandlerType
package types
