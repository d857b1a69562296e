package routing

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-filesharer/internal/core/resource"
	"github.com/dep2p/go-filesharer/internal/core/routing/table"
	"github.com/dep2p/go-filesharer/pkg/interfaces"
	"github.com/dep2p/go-filesharer/pkg/protocol"
	"github.com/dep2p/go-filesharer/pkg/types"
)

// ============================================================================
//                              Mock 实现
// ============================================================================

type sentMessage struct {
	to  string
	msg *protocol.Message
}

// recordingHandler 记录所有发出的消息，对 failing 中的目标回调发送失败
type recordingHandler struct {
	mu        sync.Mutex
	sent      []sentMessage
	listeners []interfaces.NetworkHandlerListener
	failing   map[string]bool
}

var errUnreachable = errors.New("unreachable")

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{failing: make(map[string]bool)}
}

func (h *recordingHandler) Name() types.NetworkHandlerType { return types.HandlerMemory }

func (h *recordingHandler) Start(context.Context) error { return nil }

func (h *recordingHandler) Shutdown() error { return nil }

func (h *recordingHandler) Restart(context.Context) error { return nil }

func (h *recordingHandler) SendMessage(ip string, port int, msg *protocol.Message, _ bool) error {
	key := types.NodeKey(ip, port)
	h.mu.Lock()
	failing := h.failing[key]
	listeners := append([]interfaces.NetworkHandlerListener(nil), h.listeners...)
	if !failing {
		h.sent = append(h.sent, sentMessage{to: key, msg: msg.Clone()})
	}
	h.mu.Unlock()

	if failing {
		for _, l := range listeners {
			l.OnMessageSendFailed(ip, port, msg)
		}
		return errUnreachable
	}
	return nil
}

func (h *recordingHandler) RegisterListener(l interfaces.NetworkHandlerListener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, l)
}

func (h *recordingHandler) UnregisterListener(l interfaces.NetworkHandlerListener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, existing := range h.listeners {
		if existing == l {
			h.listeners = append(h.listeners[:i], h.listeners[i+1:]...)
			return
		}
	}
}

func (h *recordingHandler) listenerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}

func (h *recordingHandler) fail(key string) {
	h.mu.Lock()
	h.failing[key] = true
	h.mu.Unlock()
}

func (h *recordingHandler) messages() []sentMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]sentMessage(nil), h.sent...)
}

func (h *recordingHandler) sentTo(key string) []*protocol.Message {
	var out []*protocol.Message
	for _, s := range h.messages() {
		if s.to == key {
			out = append(out, s.msg)
		}
	}
	return out
}

// recordingListener 记录派发给它的消息
type recordingListener struct {
	mu       sync.Mutex
	received []*protocol.Message
	from     []*types.Node
}

func (l *recordingListener) OnMessageReceived(from *types.Node, msg *protocol.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.received = append(l.received, msg)
	l.from = append(l.from, from)
}

func (l *recordingListener) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.received)
}

type panickingListener struct {
	calls atomic.Int32
}

func (l *panickingListener) OnMessageReceived(*types.Node, *protocol.Message) {
	l.calls.Add(1)
	panic("listener failure")
}

// ============================================================================
//                              测试夹具
// ============================================================================

const (
	selfIP   = "127.0.0.1"
	selfPort = 6000
)

func newTestRouter(t *testing.T, kind types.RoutingStrategyType, resources ...string) (*Router, *recordingHandler) {
	t.Helper()
	h := newRecordingHandler()
	cfg := DefaultConfig()
	cfg.Strategy = kind
	cfg.TimeToLive = 3
	cfg.Resources = resources

	r, err := NewRouter(types.NewNode(selfIP, selfPort), h, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, h
}

func addNeighbours(r *Router, ports ...int) []*types.Node {
	nodes := make([]*types.Node, 0, len(ports))
	for _, p := range ports {
		n := types.NewNode(selfIP, p)
		r.RoutingTable().AddUnstructured(n)
		nodes = append(nodes, n)
	}
	return nodes
}

func search(srcPort int, seq, hops, query string) *protocol.Message {
	return protocol.New(protocol.TypeSer, selfIP, strconv.Itoa(srcPort), seq, hops, query)
}

// ============================================================================
//                              资源搜索
// ============================================================================

func TestRouter_OwnedResourceHitRepliesToSource(t *testing.T) {
	r, h := newTestRouter(t, types.StrategyFlooding, "Lord of the Rings", "Lord of the Rings 2", "Cars")
	addNeighbours(r, 6001, 6002)

	r.OnMessageReceived(selfIP, 6001, search(6009, "4", "2", "Lord"))

	replies := h.sentTo(types.NodeKey(selfIP, 6009))
	require.Len(t, replies, 1)
	reply := replies[0]
	assert.Equal(t, protocol.TypeSerOK, reply.Type)
	assert.Equal(t, "2", reply.Field(protocol.SerOKCount))
	assert.Equal(t, selfIP, reply.Field(protocol.SerOKIP))
	assert.Equal(t, "6000", reply.Field(protocol.SerOKPort))
	assert.Equal(t, "4", reply.Field(protocol.SerOKSequenceNumber))
	assert.Equal(t, "2", reply.Field(protocol.SerOKHopCount))
	assert.ElementsMatch(t, []string{"Lord of the Rings", "Lord of the Rings 2"}, reply.FieldsFrom(protocol.SerOKNamesStart))

	// 命中后不再转发
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, h.messages(), 1)
}

func TestRouter_SelfOriginatedHitRepliesToSelf(t *testing.T) {
	r, h := newTestRouter(t, types.StrategyFlooding, "Thor")

	require.NoError(t, r.Route(search(selfPort, "1", "0", "Thor")))

	replies := h.sentTo(types.NodeKey(selfIP, selfPort))
	require.Len(t, replies, 1)
	assert.Equal(t, protocol.TypeSerOK, replies[0].Type)
}

func TestRouter_FloodingForwardsWithIncrementedHop(t *testing.T) {
	r, h := newTestRouter(t, types.StrategyFlooding)
	addNeighbours(r, 6001, 6002, 6003)

	r.OnMessageReceived(selfIP, 6001, search(6009, "7", "1", "Cars"))

	require.Eventually(t, func() bool { return len(h.messages()) == 2 }, time.Second, 5*time.Millisecond)
	for _, s := range h.messages() {
		assert.NotEqual(t, types.NodeKey(selfIP, 6001), s.to, "不回发给发送方")
		assert.Equal(t, protocol.TypeSer, s.msg.Type)
		assert.Equal(t, "2", s.msg.Field(protocol.SerHopCount))
		assert.Equal(t, "Cars", s.msg.Field(protocol.SerQuery))
	}
}

func TestRouter_SelfOriginatedFloodsToAllNeighbours(t *testing.T) {
	r, h := newTestRouter(t, types.StrategyFlooding)
	addNeighbours(r, 6001, 6002, 6003)

	require.NoError(t, r.Route(search(selfPort, "1", "0", "Cars")))
	require.Eventually(t, func() bool { return len(h.messages()) == 3 }, time.Second, 5*time.Millisecond)
}

func TestRouter_TTLExhaustedRepliesNotFound(t *testing.T) {
	r, h := newTestRouter(t, types.StrategyFlooding)
	addNeighbours(r, 6001, 6002)

	// TTL 为 3，跳数 3 加一后超过 TTL
	r.OnMessageReceived(selfIP, 6001, search(6009, "5", "3", "Cars"))

	msgs := h.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, types.NodeKey(selfIP, 6009), msgs[0].to)
	reply := msgs[0].msg
	assert.Equal(t, protocol.TypeSerOK, reply.Type)
	assert.Equal(t, "0", reply.Field(protocol.SerOKCount))
	assert.Equal(t, protocol.NotFoundIP, reply.Field(protocol.SerOKIP))
	assert.Equal(t, protocol.NotFoundPort, reply.Field(protocol.SerOKPort))
	assert.Equal(t, "5", reply.Field(protocol.SerOKSequenceNumber))
}

func TestRouter_SetSelfChangesReplyAddress(t *testing.T) {
	r, h := newTestRouter(t, types.StrategyFlooding, "Cars")

	r.SetSelf(types.NewNode(selfIP, selfPort+1))
	assert.Equal(t, types.NodeKey(selfIP, selfPort+1), r.Self().Key())

	r.OnMessageReceived(selfIP, 6001, search(6009, "1", "0", "Cars"))
	replies := h.sentTo(types.NodeKey(selfIP, 6009))
	require.Len(t, replies, 1)
	assert.Equal(t, "6001", replies[0].Field(protocol.SerOKPort))
}

func TestRouter_ForwardCacheSuppressesExactDuplicates(t *testing.T) {
	r, h := newTestRouter(t, types.StrategyFlooding)
	addNeighbours(r, 6001, 6002)

	r.OnMessageReceived(selfIP, 6001, search(6009, "8", "0", "Cars"))
	require.Eventually(t, func() bool { return len(h.messages()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, r.forwarded.len(), "只记录实际发往 6002 的副本")

	// 完全相同的副本不再转发
	r.OnMessageReceived(selfIP, 6001, search(6009, "8", "0", "Cars"))
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, h.messages(), 1)
	assert.Equal(t, 1, r.forwarded.len())

	// 跳数不同的副本继续转发
	r.OnMessageReceived(selfIP, 6001, search(6009, "8", "1", "Cars"))
	require.Eventually(t, func() bool { return len(h.messages()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, r.forwarded.len())
}

func TestRouter_SuperPeerFloodingUsesAggregatedIndex(t *testing.T) {
	r, h := newTestRouter(t, types.StrategySuperPeerFlooding)
	nodes := addNeighbours(r, 6001, 6002, 6003)
	require.True(t, r.PromoteToSuperPeer())

	st := r.RoutingTable().(*table.SuperTable)
	st.AddAssignedOrdinaryPeer(nodes[1])
	st.AddSuperPeer(nodes[2])
	agg := r.ResourceIndex().(*resource.AggregatedIndex)
	agg.AddResourceToAggregatedIndex("Endless Love", nodes[1])

	r.OnMessageReceived(selfIP, 6001, search(6009, "3", "0", "Endless"))
	require.Eventually(t, func() bool { return len(h.messages()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, nodes[1].Key(), h.messages()[0].to)

	// 聚合索引未命中时发给超级节点池
	r.OnMessageReceived(selfIP, 6001, search(6009, "4", "0", "Thor"))
	require.Eventually(t, func() bool { return len(h.messages()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, nodes[2].Key(), h.messages()[1].to)
}

// ============================================================================
//                              超级节点搜索
// ============================================================================

func superPeerSearch(srcPort int, hops string) *protocol.Message {
	return protocol.New(protocol.TypeSerSuperPeer, selfIP, strconv.Itoa(srcPort), "1", hops)
}

func TestRouter_SuperPeerAnswersSuperPeerSearch(t *testing.T) {
	r, h := newTestRouter(t, types.StrategySuperPeerFlooding)
	r.PromoteToSuperPeer()

	r.OnMessageReceived(selfIP, 6001, superPeerSearch(6009, "1"))

	msgs := h.sentTo(types.NodeKey(selfIP, 6009))
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.TypeSerSuperPeerOK, msgs[0].Type)
	assert.Equal(t, selfIP, msgs[0].Field(protocol.SerSuperPeerOKIP))
	assert.Equal(t, "6000", msgs[0].Field(protocol.SerSuperPeerOKPort))
}

func TestRouter_OrdinaryPeerAnswersWithAssignedSuperPeer(t *testing.T) {
	r, h := newTestRouter(t, types.StrategySuperPeerFlooding)
	r.RoutingTable().(*table.OrdinaryTable).SetAssignedSuperPeer(types.NewNode(selfIP, 6100))

	r.OnMessageReceived(selfIP, 6001, superPeerSearch(6009, "0"))

	msgs := h.sentTo(types.NodeKey(selfIP, 6009))
	require.Len(t, msgs, 1)
	assert.Equal(t, "6100", msgs[0].Field(protocol.SerSuperPeerOKPort))
}

func TestRouter_OrdinaryPeerForwardsSuperPeerSearch(t *testing.T) {
	r, h := newTestRouter(t, types.StrategySuperPeerFlooding)
	addNeighbours(r, 6001, 6002)

	r.OnMessageReceived(selfIP, 6001, superPeerSearch(6009, "0"))
	require.Eventually(t, func() bool { return len(h.sentTo(types.NodeKey(selfIP, 6002))) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "1", h.sentTo(types.NodeKey(selfIP, 6002))[0].Field(protocol.SerSuperPeerHopCount))

	// TTL 耗尽时回复未找到
	r.OnMessageReceived(selfIP, 6001, superPeerSearch(6009, "3"))
	msgs := h.sentTo(types.NodeKey(selfIP, 6009))
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.NotFoundIP, msgs[0].Field(protocol.SerSuperPeerOKIP))
}

// ============================================================================
//                              监听器与失败处理
// ============================================================================

func TestRouter_DispatchesOtherMessagesToListeners(t *testing.T) {
	r, _ := newTestRouter(t, types.StrategyFlooding)
	neighbour := addNeighbours(r, 6001)[0]

	good := &recordingListener{}
	bad := &panickingListener{}
	assert.True(t, r.RegisterListener(good))
	assert.True(t, r.RegisterListener(bad))
	assert.False(t, r.RegisterListener(good))

	r.OnMessageReceived(selfIP, 6001, protocol.New(protocol.TypeHeartbeat, selfIP, "6001"))

	assert.Equal(t, 1, good.count(), "其他监听器的 panic 不影响派发")
	assert.Equal(t, int32(1), bad.calls.Load())
	assert.Same(t, neighbour, good.from[0], "发送方解析为路由表中的节点")

	assert.True(t, r.UnregisterListener(good))
	assert.False(t, r.UnregisterListener(good))
	r.OnMessageReceived(selfIP, 6001, protocol.New(protocol.TypeHeartbeat, selfIP, "6001"))
	assert.Equal(t, 1, good.count())
}

func TestRouter_SendFailureMarksNodeInactive(t *testing.T) {
	r, h := newTestRouter(t, types.StrategyFlooding)
	nodes := addNeighbours(r, 6001, 6002)
	h.fail(nodes[1].Key())

	require.NoError(t, r.Route(search(selfPort, "1", "0", "Cars")))
	require.Eventually(t, func() bool { return !nodes[1].IsActive() }, time.Second, 5*time.Millisecond)
	assert.True(t, nodes[0].IsActive())

	// GC 之后节点被移除
	removed := r.RoutingTable().CollectGarbage()
	require.Len(t, removed, 1)
	assert.True(t, removed[0].Equal(nodes[1]))
}

// ============================================================================
//                              角色切换与组件替换
// ============================================================================

func TestRouter_PromoteAndDemote(t *testing.T) {
	r, _ := newTestRouter(t, types.StrategySuperPeerFlooding, "Cars")
	addNeighbours(r, 6001, 6002)

	assert.Equal(t, types.RoleOrdinary, r.Role())
	assert.False(t, r.DemoteToOrdinaryPeer())

	require.True(t, r.PromoteToSuperPeer())
	assert.False(t, r.PromoteToSuperPeer())
	assert.Equal(t, types.RoleSuper, r.Role())
	assert.Len(t, r.RoutingTable().GetAllUnstructured(), 2)
	agg, ok := r.ResourceIndex().(*resource.AggregatedIndex)
	require.True(t, ok)
	assert.Equal(t, []string{"Cars"}, agg.OwnedResources())
	agg.AddResourceToAggregatedIndex("Thor", types.NewNode(selfIP, 6001))

	require.True(t, r.DemoteToOrdinaryPeer())
	assert.Equal(t, types.RoleOrdinary, r.Role())
	assert.Len(t, r.RoutingTable().GetAllUnstructured(), 2)
	_, ok = r.ResourceIndex().(*resource.OwnedIndex)
	assert.True(t, ok)
	assert.Equal(t, []string{"Cars"}, r.ResourceIndex().OwnedResources())
	assert.Empty(t, r.ResourceIndex().FindResources("Thor"))
}

func TestRouter_ChangeRoutingStrategy(t *testing.T) {
	r, _ := newTestRouter(t, types.StrategyFlooding)

	require.NoError(t, r.ChangeRoutingStrategy(types.StrategyRandomWalk))
	assert.Equal(t, types.StrategyRandomWalk, r.RoutingStrategy().Name())

	assert.Error(t, r.ChangeRoutingStrategy("chord"))
	assert.Equal(t, types.StrategyRandomWalk, r.RoutingStrategy().Name())
}

func TestRouter_ChangeNetworkHandlerMovesListener(t *testing.T) {
	r, old := newTestRouter(t, types.StrategyFlooding)
	assert.Equal(t, 1, old.listenerCount())

	replacement := newRecordingHandler()
	r.ChangeNetworkHandler(replacement)
	assert.Equal(t, 0, old.listenerCount())
	assert.Equal(t, 1, replacement.listenerCount())
	assert.Same(t, replacement, r.NetworkHandler())
}

func TestRouter_TimeToLive(t *testing.T) {
	r, _ := newTestRouter(t, types.StrategyFlooding)
	assert.Equal(t, 3, r.TimeToLive())
	r.SetTimeToLive(7)
	assert.Equal(t, 7, r.TimeToLive())
}

func TestRouter_RouteRejectsNonSearchAndClosed(t *testing.T) {
	r, h := newTestRouter(t, types.StrategyFlooding)

	err := r.Route(protocol.New(protocol.TypeJoin, selfIP, "6000"))
	assert.ErrorIs(t, err, ErrNotRoutable)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.ErrorIs(t, r.Route(search(selfPort, "1", "0", "Cars")), ErrRouterClosed)
	assert.Equal(t, 0, h.listenerCount())
}
