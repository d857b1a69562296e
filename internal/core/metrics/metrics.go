package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesReceived 按消息类型统计收到的消息
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filesharer_messages_received_total",
			Help: "Total number of overlay messages received",
		},
		[]string{"node", "type"},
	)

	// MessagesSent 按消息类型统计发出的消息
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filesharer_messages_sent_total",
			Help: "Total number of overlay messages sent",
		},
		[]string{"node", "type"},
	)

	// SendFailures 发送失败次数
	SendFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filesharer_send_failures_total",
			Help: "Total number of messages that could not be delivered",
		},
		[]string{"node"},
	)

	// RoutingTableNodes 路由表各池中的节点数
	RoutingTableNodes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "filesharer_routing_table_nodes",
			Help: "Number of nodes per routing table pool",
		},
		[]string{"node", "pool"},
	)

	// QueriesTotal 本节点发起的查询次数
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filesharer_queries_total",
			Help: "Total number of queries issued by the node",
		},
		[]string{"node"},
	)

	// TTLExhausted 因 TTL 耗尽而终止的搜索
	TTLExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filesharer_ttl_exhausted_total",
			Help: "Total number of searches answered as not found because the time-to-live was exhausted",
		},
		[]string{"node"},
	)

	// GCCollected 垃圾回收清理的 INACTIVE 节点
	GCCollected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filesharer_gc_collected_total",
			Help: "Total number of inactive nodes removed by garbage collection",
		},
		[]string{"node"},
	)
)

// RecordMessageReceived 记录收到的消息
func RecordMessageReceived(node, msgType string) {
	MessagesReceived.WithLabelValues(node, msgType).Inc()
}

// RecordMessageSent 记录发出的消息
func RecordMessageSent(node, msgType string) {
	MessagesSent.WithLabelValues(node, msgType).Inc()
}

// RecordSendFailure 记录发送失败
func RecordSendFailure(node string) {
	SendFailures.WithLabelValues(node).Inc()
}

// SetRoutingTableSizes 更新路由表各池大小
func SetRoutingTableSizes(node string, sizes map[string]int) {
	for pool, size := range sizes {
		RoutingTableNodes.WithLabelValues(node, pool).Set(float64(size))
	}
}

// RecordQuery 记录一次查询
func RecordQuery(node string) {
	QueriesTotal.WithLabelValues(node).Inc()
}

// RecordTTLExhausted 记录 TTL 耗尽
func RecordTTLExhausted(node string) {
	TTLExhausted.WithLabelValues(node).Inc()
}

// RecordGCCollected 记录 GC 清理的节点数
func RecordGCCollected(node string, count int) {
	if count <= 0 {
		return
	}
	GCCollected.WithLabelValues(node).Add(float64(count))
}

// ResetNode 删除某个节点的所有指标序列（节点停止时调用）
func ResetNode(node string) {
	labels := prometheus.Labels{"node": node}
	MessagesReceived.DeletePartialMatch(labels)
	MessagesSent.DeletePartialMatch(labels)
	SendFailures.DeletePartialMatch(labels)
	RoutingTableNodes.DeletePartialMatch(labels)
	QueriesTotal.DeletePartialMatch(labels)
	TTLExhausted.DeletePartialMatch(labels)
	GCCollected.DeletePartialMatch(labels)
}
