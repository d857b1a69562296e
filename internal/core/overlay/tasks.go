package overlay

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-filesharer/internal/core/metrics"
	"github.com/dep2p/go-filesharer/internal/core/resource"
	"github.com/dep2p/go-filesharer/internal/core/routing/table"
	"github.com/dep2p/go-filesharer/pkg/protocol"
	"github.com/dep2p/go-filesharer/pkg/types"
)

// 单轮心跳或 Gossip 的并发发送数
const maxParallelHeartbeats = 8

// ============================================================================
//                              心跳与 GC
// ============================================================================

// EnableHeartBeat 开启心跳与 GC，已开启时无副作用
func (m *Manager) EnableHeartBeat() {
	if m.sched.Enable(TaskHeartbeat, m.cfg.HeartbeatInterval, m.heartbeat) {
		log.Info("心跳已开启", "interval", m.cfg.HeartbeatInterval)
	}
	m.sched.Enable(TaskGC, m.cfg.GCInterval, func(context.Context) { m.CollectGarbage() })
}

// DisableHeartBeat 关闭心跳与 GC，返回时任务已退出
func (m *Manager) DisableHeartBeat() {
	if m.sched.Disable(TaskHeartbeat) {
		log.Info("心跳已关闭")
	}
	m.sched.Disable(TaskGC)
}

// HeartBeatEnabled 心跳是否开启
func (m *Manager) HeartBeatEnabled() bool {
	return m.sched.Enabled(TaskHeartbeat)
}

// heartbeat 向所有邻居发送 HEARTBEAT，失败的节点由路由器标记为 INACTIVE
func (m *Manager) heartbeat(ctx context.Context) {
	m.broadcast(ctx, m.router.RoutingTable().GetAll(), m.addressMessage(protocol.TypeHeartbeat))
}

// CollectGarbage 移除 INACTIVE 节点及其聚合索引条目，返回移除数量
func (m *Manager) CollectGarbage() int {
	removed := m.router.RoutingTable().CollectGarbage()
	if len(removed) > 0 {
		if idx, ok := m.router.ResourceIndex().(*resource.AggregatedIndex); ok {
			for _, n := range removed {
				idx.RemoveNodeFromAggregatedIndex(n.IP, n.Port)
			}
		}
		log.Info("已清理不可达节点", "count", len(removed))
	}
	metrics.RecordGCCollected(m.self().Key(), len(removed))
	m.recordTableSizes()

	// 被清理的可能是本节点的超级节点
	if len(removed) > 0 {
		m.searchForSuperPeer()
	}
	return len(removed)
}

// ============================================================================
//                              Gossip
// ============================================================================

// EnableGossiping 开启 Gossip，已开启时无副作用
func (m *Manager) EnableGossiping() {
	if m.sched.Enable(TaskGossip, m.cfg.GossipInterval, m.Gossip) {
		log.Info("Gossip 已开启", "interval", m.cfg.GossipInterval)
	}
}

// DisableGossiping 关闭 Gossip，返回时任务已退出
func (m *Manager) DisableGossiping() {
	if m.sched.Disable(TaskGossip) {
		log.Info("Gossip 已关闭")
	}
}

// GossipingEnabled Gossip 是否开启
func (m *Manager) GossipingEnabled() bool {
	return m.sched.Enabled(TaskGossip)
}

// Gossip 执行一轮 Gossip
//
// 超级节点向分配的普通节点索取资源列表，并与其他超级节点交换超级节点连接；
// 所有节点与非结构化邻居交换非结构化连接。
func (m *Manager) Gossip(ctx context.Context) {
	tbl := m.router.RoutingTable()
	if st, ok := tbl.(*table.SuperTable); ok {
		m.broadcast(ctx, st.GetAllAssignedOrdinaryPeers(), m.addressMessage(protocol.TypeListResources))
		m.broadcast(ctx, st.GetAllSuperPeers(), m.addressMessage(protocol.TypeListSuperPeerConnections))
	}
	m.broadcast(ctx, tbl.GetAllUnstructured(), m.addressMessage(protocol.TypeListUnstructuredConnections))
}

// broadcast 向一组节点并发发送同一消息
func (m *Manager) broadcast(ctx context.Context, nodes []*types.Node, msg *protocol.Message) {
	if len(nodes) == 0 {
		return
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelHeartbeats)
	for _, n := range nodes {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := m.router.SendMessage(n, msg.Clone()); err != nil {
				log.Debug("周期消息发送失败", "to", n.String(), "type", msg.Type, "err", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// recordTableSizes 更新路由表各池大小指标
func (m *Manager) recordTableSizes() {
	sizes := m.router.RoutingTable().PoolSizes()
	labels := make(map[string]int, len(sizes))
	for pool, size := range sizes {
		labels[string(pool)] = size
	}
	metrics.SetRoutingTableSizes(m.self().Key(), labels)
}
