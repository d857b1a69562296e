// Package metrics 提供 Prometheus 监控指标
//
// 指标通过 promauto 注册到默认注册表，由 Server 的 /metrics 端点导出。
// 每个指标都带 node 标签（ip:port），便于在同一进程中运行多个节点时区分。
//
// # 指标
//
//	filesharer_messages_received_total{node,type}  收到的消息
//	filesharer_messages_sent_total{node,type}      发出的消息
//	filesharer_send_failures_total{node}           发送失败
//	filesharer_routing_table_nodes{node,pool}      路由表各池大小
//	filesharer_queries_total{node}                 发起的查询
//	filesharer_ttl_exhausted_total{node}           TTL 耗尽的搜索
//	filesharer_gc_collected_total{node}            GC 清理的节点
package metrics
