package overlay

import (
	"math/rand/v2"
	"strconv"

	"github.com/dep2p/go-filesharer/internal/core/resource"
	"github.com/dep2p/go-filesharer/internal/core/routing/table"
	"github.com/dep2p/go-filesharer/pkg/protocol"
	"github.com/dep2p/go-filesharer/pkg/types"
)

// OnMessageReceived 按消息类型分派
func (m *Manager) OnMessageReceived(from *types.Node, msg *protocol.Message) {
	if m.stopped.Load() {
		return
	}

	switch msg.Type {
	case protocol.TypeRegOK:
		m.handleRegOK(msg)
	case protocol.TypeUnregOK:
		m.handleUnregOK(msg)
	case protocol.TypeJoin:
		m.handleJoin(msg)
	case protocol.TypeJoinOK:
		m.handleJoinOK(from, msg)
	case protocol.TypeLeave:
		m.handleLeave(msg)
	case protocol.TypeLeaveOK:
		m.handleLeaveOK(from, msg)
	case protocol.TypeSerSuperPeerOK:
		m.handleSerSuperPeerOK(msg)
	case protocol.TypeJoinSuperPeer:
		m.handleJoinSuperPeer(msg)
	case protocol.TypeJoinSuperPeerOK:
		m.handleJoinSuperPeerOK(from, msg)
	case protocol.TypeHeartbeat:
		m.handleHeartbeat(msg)
	case protocol.TypeHeartbeatOK:
		m.markActive(msg)
	case protocol.TypeListResources:
		m.handleList(msg)
	case protocol.TypeListResourcesOK:
		m.handleListOK(msg)
	case protocol.TypeListUnstructuredConnections:
		m.handleListConnections(msg, protocol.TypeListUnstructuredConnectionsOK)
	case protocol.TypeListSuperPeerConnections:
		m.handleListConnections(msg, protocol.TypeListSuperPeerConnectionsOK)
	case protocol.TypeListUnstructuredConnectionsOK, protocol.TypeListSuperPeerConnectionsOK:
		m.handleListConnectionsOK(msg)
	}
}

// addressOf 读取消息中 ip port 两个字段
func addressOf(msg *protocol.Message, ipIndex, portIndex int) (string, int, bool) {
	port, err := msg.IntField(portIndex)
	if err != nil {
		log.Warn("丢弃端口非法的消息", "msg", msg.String(), "err", err)
		return "", 0, false
	}
	return msg.Field(ipIndex), port, true
}

// ============================================================================
//                              目录服务器
// ============================================================================

func (m *Manager) handleRegOK(msg *protocol.Message) {
	switch value := msg.Field(protocol.RegOKCount); value {
	case protocol.RegOKFailed:
		log.Error("目录服务器注册失败", "bootstrap", types.NodeKey(m.cfg.BootstrapIP, m.cfg.BootstrapPort))
		return
	case protocol.RegOKAlreadyRegistered, protocol.RegOKAlreadyOccupied:
		log.Warn("地址已被注册，换用下一个端口", "node", m.self().String(), "value", value)
		m.rebind()
		return
	case protocol.RegOKFull:
		log.Error("目录服务器已满", "bootstrap", types.NodeKey(m.cfg.BootstrapIP, m.cfg.BootstrapPort))
		return
	}

	nodes, err := protocol.ParseNodeFields(msg, protocol.RegOKCount, protocol.RegOKNodesStart)
	if err != nil {
		log.Warn("无法解析 REGOK", "msg", msg.String(), "err", err)
		return
	}
	m.registered.Store(true)
	m.registerRetry.Store(0)

	self := m.self()
	peers := nodes[:0]
	for _, n := range nodes {
		if !n.Equal(self) {
			peers = append(peers, n)
		}
	}
	log.Info("注册成功", "peers", len(peers))

	if len(peers) == 0 {
		// 网络中的第一个节点
		m.PromoteToSuperPeer()
		return
	}
	if len(peers) > m.cfg.JoinFanout {
		rand.Shuffle(len(peers), func(i, j int) { peers[i], peers[j] = peers[j], peers[i] })
		peers = peers[:m.cfg.JoinFanout]
	}
	m.join(peers)
}

func (m *Manager) handleUnregOK(msg *protocol.Message) {
	if msg.Field(protocol.UnregOKValue) != protocol.ValueSuccess {
		log.Warn("注销失败", "value", msg.Field(protocol.UnregOKValue))
		return
	}
	m.registered.Store(false)
	log.Info("已从目录服务器注销")
}

// ============================================================================
//                              JOIN / LEAVE
// ============================================================================

func (m *Manager) handleJoin(msg *protocol.Message) {
	ip, port, ok := addressOf(msg, protocol.AddrIP, protocol.AddrPort)
	if !ok {
		return
	}

	value := protocol.ValueSuccess
	if !m.router.RoutingTable().AddUnstructured(types.NewNode(ip, port)) {
		value = protocol.ValueError
		log.Debug("拒绝 JOIN", "from", types.NodeKey(ip, port), "err", table.ErrCapacityExceeded)
	}
	m.send(ip, port, m.replyMessage(protocol.TypeJoinOK, value))
	m.recordTableSizes()
}

func (m *Manager) handleJoinOK(from *types.Node, msg *protocol.Message) {
	if msg.Field(protocol.ReplyValue) != protocol.ValueSuccess {
		log.Warn("对方拒绝了 JOIN", "from", from.String(), "value", msg.Field(protocol.ReplyValue))
		return
	}
	ip, port, ok := addressOf(msg, protocol.ReplyIP, protocol.ReplyPort)
	if !ok {
		return
	}
	m.router.RoutingTable().AddUnstructured(types.NewNode(ip, port))
	m.recordTableSizes()
	m.searchForSuperPeer()
}

func (m *Manager) handleLeave(msg *protocol.Message) {
	ip, port, ok := addressOf(msg, protocol.AddrIP, protocol.AddrPort)
	if !ok {
		return
	}

	value := protocol.ValueSuccess
	if !m.router.RoutingTable().RemoveFromAll(ip, port) {
		value = protocol.ValueError
	}
	if idx, ok := m.router.ResourceIndex().(*resource.AggregatedIndex); ok {
		idx.RemoveNodeFromAggregatedIndex(ip, port)
	}
	m.send(ip, port, m.replyMessage(protocol.TypeLeaveOK, value))
	m.recordTableSizes()

	// 离开的可能是本节点的超级节点
	m.searchForSuperPeer()
}

func (m *Manager) handleLeaveOK(from *types.Node, msg *protocol.Message) {
	if msg.Field(protocol.ReplyValue) != protocol.ValueSuccess {
		log.Debug("对方没有本节点的记录", "from", from.String())
		return
	}
	ip, port, ok := addressOf(msg, protocol.ReplyIP, protocol.ReplyPort)
	if !ok {
		return
	}
	m.router.RoutingTable().RemoveFromAll(ip, port)
	m.recordTableSizes()
}

// ============================================================================
//                              超级节点
// ============================================================================

func (m *Manager) handleSerSuperPeerOK(msg *protocol.Message) {
	ip := msg.Field(protocol.SerSuperPeerOKIP)
	portField := msg.Field(protocol.SerSuperPeerOKPort)
	if ip == protocol.NotFoundIP || portField == protocol.NotFoundPort {
		if !m.resolveSearch() {
			return
		}
		if _, ok := m.router.RoutingTable().(*table.OrdinaryTable); !ok {
			return
		}
		log.Info("未找到超级节点，自我提升", "node", m.self().String(), "hops", msg.Field(protocol.SerSuperPeerOKHopCount))
		m.PromoteToSuperPeer()
		return
	}
	port, err := strconv.Atoi(portField)
	if err != nil {
		log.Warn("丢弃端口非法的 SERSUPERPEEROK", "msg", msg.String())
		return
	}

	if !m.resolveSearch() {
		// 同一次搜索的其他回复
		return
	}
	if _, ok := m.router.RoutingTable().(*table.OrdinaryTable); !ok {
		return
	}

	self := m.self()
	join := protocol.New(protocol.TypeJoinSuperPeer, self.IP, strconv.Itoa(self.Port))
	join.Data = append(join.Data, m.router.ResourceIndex().OwnedResources()...)
	log.Info("找到超级节点，请求加入", "super_peer", types.NodeKey(ip, port))
	m.send(ip, port, join)
}

func (m *Manager) handleJoinSuperPeer(msg *protocol.Message) {
	ip, port, ok := addressOf(msg, protocol.JoinSuperPeerIP, protocol.JoinSuperPeerPort)
	if !ok {
		return
	}

	tbl, isSuper := m.router.RoutingTable().(*table.SuperTable)
	idx, isAggregated := m.router.ResourceIndex().(*resource.AggregatedIndex)
	switch {
	case !isSuper || !isAggregated:
		m.send(ip, port, m.replyMessage(protocol.TypeJoinSuperPeerOK, protocol.JoinSuperPeerOKNotSuperPeer))
		return
	case tbl.IsAssignedOrdinaryPeer(ip, port):
	case !tbl.AddAssignedOrdinaryPeer(types.NewNode(ip, port)):
		log.Debug("拒绝 JOINSUPERPEER", "from", types.NodeKey(ip, port), "err", table.ErrCapacityExceeded)
		m.send(ip, port, m.replyMessage(protocol.TypeJoinSuperPeerOK, protocol.JoinSuperPeerOKFull))
		return
	}

	tbl.AddUnstructured(types.NewNode(ip, port))
	idx.AddAllAggregatedResources(msg.FieldsFrom(protocol.JoinSuperPeerNamesStart), ip, port)
	log.Info("普通节点已加入", "peer", types.NodeKey(ip, port))
	m.send(ip, port, m.replyMessage(protocol.TypeJoinSuperPeerOK, protocol.ValueSuccess))
	m.recordTableSizes()
}

func (m *Manager) handleJoinSuperPeerOK(from *types.Node, msg *protocol.Message) {
	if value := msg.Field(protocol.ReplyValue); value != protocol.ValueSuccess {
		log.Warn("超级节点拒绝了加入请求", "from", from.String(), "value", value)
		return
	}
	ip, port, ok := addressOf(msg, protocol.ReplyIP, protocol.ReplyPort)
	if !ok {
		return
	}
	tbl, ok := m.router.RoutingTable().(*table.OrdinaryTable)
	if !ok {
		log.Debug("已是超级节点，忽略 JOINSUPERPEEROK", "from", from.String())
		return
	}
	tbl.SetAssignedSuperPeer(types.NewNode(ip, port))
	log.Info("已分配超级节点", "super_peer", types.NodeKey(ip, port))
	m.recordTableSizes()
}

// ============================================================================
//                              心跳与 Gossip
// ============================================================================

func (m *Manager) handleHeartbeat(msg *protocol.Message) {
	ip, port, ok := addressOf(msg, protocol.AddrIP, protocol.AddrPort)
	if !ok {
		return
	}
	m.markActive(msg)
	m.send(ip, port, m.addressMessage(protocol.TypeHeartbeatOK))
}

// markActive 发送方仍然存活
func (m *Manager) markActive(msg *protocol.Message) {
	ip, port, ok := addressOf(msg, protocol.AddrIP, protocol.AddrPort)
	if !ok {
		return
	}
	if n := m.router.RoutingTable().Get(ip, port); n != nil {
		n.SetState(types.NodeActive)
	}
}

func (m *Manager) handleList(msg *protocol.Message) {
	ip, port, ok := addressOf(msg, protocol.AddrIP, protocol.AddrPort)
	if !ok {
		return
	}
	names := m.router.ResourceIndex().OwnedResources()
	reply := m.addressMessage(protocol.TypeListResourcesOK)
	reply.Data = append(reply.Data, strconv.Itoa(len(names)))
	reply.Data = append(reply.Data, names...)
	m.send(ip, port, reply)
}

func (m *Manager) handleListOK(msg *protocol.Message) {
	ip, port, ok := addressOf(msg, protocol.ListOKIP, protocol.ListOKPort)
	if !ok {
		return
	}
	tbl, isSuper := m.router.RoutingTable().(*table.SuperTable)
	idx, isAggregated := m.router.ResourceIndex().(*resource.AggregatedIndex)
	if !isSuper || !isAggregated || !tbl.IsAssignedOrdinaryPeer(ip, port) {
		return
	}
	idx.AddAllAggregatedResources(msg.FieldsFrom(protocol.ListOKNamesStart), ip, port)
}

func (m *Manager) handleListConnections(msg *protocol.Message, replyType protocol.MessageType) {
	ip, port, ok := addressOf(msg, protocol.AddrIP, protocol.AddrPort)
	if !ok {
		return
	}

	var nodes []*types.Node
	tbl := m.router.RoutingTable()
	switch replyType {
	case protocol.TypeListUnstructuredConnectionsOK:
		nodes = tbl.GetAllUnstructured()
	case protocol.TypeListSuperPeerConnectionsOK:
		if st, ok := tbl.(*table.SuperTable); ok {
			nodes = st.GetAllSuperPeers()
		}
	}

	reply := m.addressMessage(replyType)
	reply.Data = append(reply.Data, protocol.NodeFields(nodes)...)
	m.send(ip, port, reply)
}

// handleListConnectionsOK 容量允许时加入未知节点
func (m *Manager) handleListConnectionsOK(msg *protocol.Message) {
	nodes, err := protocol.ParseNodeFields(msg, protocol.ListConnectionsOKCount, protocol.ListConnectionsOKNodesStart)
	if err != nil {
		log.Warn("无法解析连接列表", "msg", msg.String(), "err", err)
		return
	}

	self := m.self()
	tbl := m.router.RoutingTable()
	added := 0
	for _, n := range nodes {
		if n.Equal(self) || tbl.Get(n.IP, n.Port) != nil {
			continue
		}
		var ok bool
		if st, isSuper := tbl.(*table.SuperTable); isSuper && msg.Type == protocol.TypeListSuperPeerConnectionsOK {
			ok = st.AddSuperPeer(n)
		} else if msg.Type == protocol.TypeListUnstructuredConnectionsOK {
			ok = tbl.AddUnstructured(n)
		}
		if !ok {
			break
		}
		added++
	}
	if added > 0 {
		log.Debug("通过 Gossip 发现节点", "type", msg.Type, "added", added)
		m.recordTableSizes()
	}
}
