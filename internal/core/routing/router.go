// Package routing 实现搜索消息的路由
//
// Router 位于网络处理器与上层服务之间：
//   - SER / SERSUPERPEER 由路由器自己处理（本地命中、跳数、按策略转发）
//   - 其他消息并发派发给已注册的 RouterListener（覆盖网络管理器、查询管理器）
//
// 路由表、资源索引、路由策略、网络处理器、监听器列表与 TTL 各自独立加锁，
// 不存在跨表与索引的联合事务。角色切换时先替换路由表，再替换索引。
package routing

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-filesharer/internal/core/metrics"
	"github.com/dep2p/go-filesharer/internal/core/resource"
	"github.com/dep2p/go-filesharer/internal/core/routing/strategy"
	"github.com/dep2p/go-filesharer/internal/core/routing/table"
	"github.com/dep2p/go-filesharer/internal/util/logger"
	"github.com/dep2p/go-filesharer/pkg/interfaces"
	"github.com/dep2p/go-filesharer/pkg/protocol"
	"github.com/dep2p/go-filesharer/pkg/types"
)

var log = logger.Logger("router")

// Router 搜索消息路由器
type Router struct {
	self atomic.Pointer[types.Node]
	cfg  Config

	tableMu sync.RWMutex
	tbl     table.Table

	indexMu sync.RWMutex
	index   resource.Index

	strategyMu sync.RWMutex
	strategy   strategy.Strategy

	handlerMu sync.RWMutex
	handler   interfaces.NetworkHandler

	listenersMu sync.RWMutex
	listeners   []interfaces.RouterListener

	ttl atomic.Int64

	forwarded *forwardCache
	limiter   *rate.Limiter

	ctx      context.Context
	cancel   context.CancelFunc
	closeMu  sync.RWMutex
	inflight sync.WaitGroup
	closed   atomic.Bool
}

var (
	_ interfaces.NetworkHandlerListener = (*Router)(nil)
	_ strategy.IndexSource              = (*Router)(nil)
)

// NewRouter 创建路由器
//
// 路由器以普通节点身份启动，并注册为 handler 的监听器。
func NewRouter(self *types.Node, handler interfaces.NetworkHandler, cfg Config) (*Router, error) {
	if cfg.MaxParallelForwards <= 0 {
		cfg.MaxParallelForwards = -1
	}
	forwarded, err := newForwardCache(cfg.ForwardCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create forward cache: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Router{
		cfg:       cfg,
		tbl:       table.NewOrdinaryTable(cfg.Limits),
		index:     resource.NewOwnedIndex(cfg.Resources...),
		handler:   handler,
		forwarded: forwarded,
		ctx:       ctx,
		cancel:    cancel,
	}
	if cfg.SendRateLimit > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(cfg.SendRateLimit), cfg.SendBurst)
	}
	r.self.Store(self)
	r.ttl.Store(int64(cfg.TimeToLive))

	s, err := strategy.New(cfg.Strategy, r)
	if err != nil {
		cancel()
		return nil, err
	}
	r.strategy = s

	if handler != nil {
		handler.RegisterListener(r)
	}
	return r, nil
}

// Self 本节点地址
func (r *Router) Self() *types.Node {
	return r.self.Load()
}

// SetSelf 更新本节点地址，监听端口变化后由覆盖网络管理器调用
func (r *Router) SetSelf(self *types.Node) {
	old := r.self.Swap(self)
	if old != nil && old.Key() != self.Key() {
		metrics.ResetNode(old.Key())
	}
	log.Info("本节点地址已更新", "node", self.String())
}

// ============================================================================
//                              路由
// ============================================================================

// Route 路由本节点发起的搜索消息
func (r *Router) Route(msg *protocol.Message) error {
	if r.closed.Load() {
		return ErrRouterClosed
	}
	if msg.Type != protocol.TypeSer && msg.Type != protocol.TypeSerSuperPeer {
		log.Warn("拒绝路由非搜索消息", "type", msg.Type)
		return fmt.Errorf("%w: %s", ErrNotRoutable, msg.Type)
	}
	log.Debug("路由本节点发起的消息", "msg", msg.String())
	r.route(nil, msg)
	return nil
}

// OnMessageReceived 处理网络处理器收到的消息
func (r *Router) OnMessageReceived(fromIP string, fromPort int, msg *protocol.Message) {
	if r.closed.Load() {
		return
	}
	metrics.RecordMessageReceived(r.Self().Key(), msg.Type.Code())
	log.Debug("收到消息", "from", types.NodeKey(fromIP, fromPort), "msg", msg.String())

	from := r.resolve(fromIP, fromPort)
	switch msg.Type {
	case protocol.TypeSer, protocol.TypeSerSuperPeer:
		r.route(from, msg)
	default:
		r.dispatch(from, msg)
	}
}

// OnMessageSendFailed 将目标标记为 INACTIVE
func (r *Router) OnMessageSendFailed(toIP string, toPort int, msg *protocol.Message) {
	metrics.RecordSendFailure(r.Self().Key())
	if n := r.RoutingTable().Get(toIP, toPort); n != nil {
		n.SetState(types.NodeInactive)
		log.Debug("发送失败，标记节点为 INACTIVE", "node", n.String(), "type", msg.Type)
	}
}

// resolve 优先使用路由表中的节点，否则构造一个存活节点
func (r *Router) resolve(ip string, port int) *types.Node {
	if n := r.RoutingTable().Get(ip, port); n != nil {
		return n
	}
	return types.NewNode(ip, port)
}

func (r *Router) route(from *types.Node, msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeSer:
		r.routeSearch(from, msg)
	case protocol.TypeSerSuperPeer:
		r.routeSuperPeerSearch(from, msg)
	}
}

// routeSearch 资源搜索
//
// 本地命中时直接回复源节点并停止；否则跳数加一，超过 TTL 回复未找到，
// 未超过则按策略转发。
func (r *Router) routeSearch(from *types.Node, msg *protocol.Message) {
	srcIP := msg.Field(protocol.SerSourceIP)
	srcPort, err := msg.IntField(protocol.SerSourcePort)
	if err != nil {
		log.Warn("丢弃源端口非法的搜索消息", "msg", msg.String(), "err", err)
		return
	}

	if owned := r.ResourceIndex().FindResources(msg.Field(protocol.SerQuery)); len(owned) > 0 {
		self := r.Self()
		reply := protocol.New(protocol.TypeSerOK,
			strconv.Itoa(len(owned)), self.IP, strconv.Itoa(self.Port),
			msg.Field(protocol.SerSequenceNumber), msg.Field(protocol.SerHopCount))
		reply.Data = append(reply.Data, owned...)
		log.Debug("本地资源命中", "query", msg.Field(protocol.SerQuery), "count", len(owned))
		r.reply(srcIP, srcPort, reply)
		return
	}

	if !r.nextHop(msg, protocol.SerHopCount) {
		r.ttlExhausted(srcIP, srcPort, protocol.New(protocol.TypeSerOK,
			"0", protocol.NotFoundIP, protocol.NotFoundPort,
			msg.Field(protocol.SerSequenceNumber), msg.Field(protocol.SerHopCount)))
		return
	}
	r.forward(from, msg)
}

// routeSuperPeerSearch 超级节点搜索
//
// 超级节点回复自己的地址；已分配存活超级节点的普通节点回复该超级节点；
// 其余情况与资源搜索一样按跳数转发。
func (r *Router) routeSuperPeerSearch(from *types.Node, msg *protocol.Message) {
	srcIP := msg.Field(protocol.SerSuperPeerSourceIP)
	srcPort, err := msg.IntField(protocol.SerSuperPeerSourcePort)
	if err != nil {
		log.Warn("丢弃源端口非法的超级节点搜索", "msg", msg.String(), "err", err)
		return
	}
	hops := msg.Field(protocol.SerSuperPeerHopCount)

	switch tbl := r.RoutingTable().(type) {
	case *table.SuperTable:
		self := r.Self()
		r.reply(srcIP, srcPort, protocol.New(protocol.TypeSerSuperPeerOK,
			self.IP, strconv.Itoa(self.Port), hops))
		return
	case *table.OrdinaryTable:
		if sp := tbl.AssignedSuperPeer(); sp != nil && sp.IsActive() && from != nil {
			r.reply(srcIP, srcPort, protocol.New(protocol.TypeSerSuperPeerOK,
				sp.IP, strconv.Itoa(sp.Port), hops))
			return
		}
	}

	if !r.nextHop(msg, protocol.SerSuperPeerHopCount) {
		r.ttlExhausted(srcIP, srcPort, protocol.New(protocol.TypeSerSuperPeerOK,
			protocol.NotFoundIP, protocol.NotFoundPort, msg.Field(protocol.SerSuperPeerHopCount)))
		return
	}
	r.forward(from, msg)
}

// nextHop 跳数加一，返回是否仍在 TTL 之内
func (r *Router) nextHop(msg *protocol.Message, index int) bool {
	hops, err := msg.IntField(index)
	if err != nil {
		hops = protocol.InitialHopCount
	}
	hops++
	msg.SetField(index, strconv.Itoa(hops))
	return hops <= r.TimeToLive()
}

func (r *Router) ttlExhausted(ip string, port int, reply *protocol.Message) {
	metrics.RecordTTLExhausted(r.Self().Key())
	log.Debug("跳数超过 TTL，回复未找到", "to", types.NodeKey(ip, port), "ttl", r.TimeToLive())
	r.reply(ip, port, reply)
}

func (r *Router) reply(ip string, port int, msg *protocol.Message) {
	if err := r.SendMessageTo(ip, port, msg); err != nil {
		log.Debug("回复失败", "to", types.NodeKey(ip, port), "type", msg.Type, "err", err)
	}
}

// forward 按策略选择目标，去重后并发发送
func (r *Router) forward(from *types.Node, msg *protocol.Message) {
	tbl := r.RoutingTable()
	r.strategyMu.RLock()
	targets := r.strategy.ForwardingNodes(tbl, from, msg)
	r.strategyMu.RUnlock()

	targets = r.forwarded.filter(msg, targets)
	if len(targets) == 0 {
		log.Debug("没有可转发的节点", "msg", msg.String())
		return
	}

	r.closeMu.RLock()
	defer r.closeMu.RUnlock()
	if r.closed.Load() {
		return
	}
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()

		var g errgroup.Group
		g.SetLimit(r.cfg.MaxParallelForwards)
		for _, target := range targets {
			clone := msg.Clone()
			g.Go(func() error {
				if r.limiter != nil {
					if err := r.limiter.Wait(r.ctx); err != nil {
						return err
					}
				}
				log.Debug("转发消息", "to", target.String(), "msg", clone.String())
				return r.SendMessage(target, clone)
			})
		}
		if err := g.Wait(); err != nil {
			log.Debug("部分转发失败", "msg", msg.String(), "err", err)
		}
	}()
}

// dispatch 并发派发给所有监听器，单个监听器 panic 不影响其他监听器
func (r *Router) dispatch(from *types.Node, msg *protocol.Message) {
	r.listenersMu.RLock()
	listeners := append([]interfaces.RouterListener(nil), r.listeners...)
	r.listenersMu.RUnlock()

	var g errgroup.Group
	for _, l := range listeners {
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					log.Error("路由监听器 panic", "listener", fmt.Sprintf("%T", l), "type", msg.Type, "panic", p)
				}
			}()
			l.OnMessageReceived(from, msg)
			return nil
		})
	}
	_ = g.Wait()
}

// ============================================================================
//                              发送
// ============================================================================

// SendMessage 发送消息到指定节点
func (r *Router) SendMessage(to *types.Node, msg *protocol.Message) error {
	return r.SendMessageTo(to.IP, to.Port, msg)
}

// SendMessageTo 发送消息到 ip:port
func (r *Router) SendMessageTo(ip string, port int, msg *protocol.Message) error {
	h := r.NetworkHandler()
	if h == nil {
		return ErrNoNetworkHandler
	}
	if err := h.SendMessage(ip, port, msg, false); err != nil {
		return err
	}
	metrics.RecordMessageSent(r.Self().Key(), msg.Type.Code())
	return nil
}

// ============================================================================
//                              角色切换
// ============================================================================

// PromoteToSuperPeer 切换为超级节点，已经是超级节点时返回 false
func (r *Router) PromoteToSuperPeer() bool {
	r.tableMu.Lock()
	current, ok := r.tbl.(*table.OrdinaryTable)
	if !ok {
		r.tableMu.Unlock()
		return false
	}
	r.tbl = table.Promote(current, r.cfg.Limits)
	r.tableMu.Unlock()

	r.indexMu.Lock()
	r.index = resource.Promote(r.index)
	r.indexMu.Unlock()

	log.Info("已提升为超级节点", "node", r.Self().String())
	return true
}

// DemoteToOrdinaryPeer 切换为普通节点，已经是普通节点时返回 false
func (r *Router) DemoteToOrdinaryPeer() bool {
	r.tableMu.Lock()
	current, ok := r.tbl.(*table.SuperTable)
	if !ok {
		r.tableMu.Unlock()
		return false
	}
	r.tbl = table.Demote(current, r.cfg.Limits)
	r.tableMu.Unlock()

	r.indexMu.Lock()
	r.index = resource.Demote(r.index)
	r.indexMu.Unlock()

	log.Info("已降级为普通节点", "node", r.Self().String())
	return true
}

// Role 当前角色，以路由表变体为准
func (r *Router) Role() types.PeerRole {
	return r.RoutingTable().Role()
}

// ============================================================================
//                              可替换组件
// ============================================================================

// RoutingTable 当前路由表
func (r *Router) RoutingTable() table.Table {
	r.tableMu.RLock()
	defer r.tableMu.RUnlock()
	return r.tbl
}

// ResourceIndex 当前资源索引
func (r *Router) ResourceIndex() resource.Index {
	r.indexMu.RLock()
	defer r.indexMu.RUnlock()
	return r.index
}

// RoutingStrategy 当前路由策略
func (r *Router) RoutingStrategy() strategy.Strategy {
	r.strategyMu.RLock()
	defer r.strategyMu.RUnlock()
	return r.strategy
}

// ChangeRoutingStrategy 替换路由策略
func (r *Router) ChangeRoutingStrategy(kind types.RoutingStrategyType) error {
	s, err := strategy.New(kind, r)
	if err != nil {
		return err
	}
	r.strategyMu.Lock()
	r.strategy = s
	r.strategyMu.Unlock()

	log.Info("路由策略已切换", "strategy", kind)
	return nil
}

// NetworkHandler 当前网络处理器
func (r *Router) NetworkHandler() interfaces.NetworkHandler {
	r.handlerMu.RLock()
	defer r.handlerMu.RUnlock()
	return r.handler
}

// ChangeNetworkHandler 替换网络处理器，监听关系随之迁移
//
// 处理器的启停由调用方负责。
func (r *Router) ChangeNetworkHandler(h interfaces.NetworkHandler) {
	r.handlerMu.Lock()
	old := r.handler
	r.handler = h
	r.handlerMu.Unlock()

	if old != nil {
		old.UnregisterListener(r)
	}
	if h != nil {
		h.RegisterListener(r)
		log.Info("网络处理器已切换", "handler", h.Name())
	}
}

// TimeToLive 搜索的最大跳数
func (r *Router) TimeToLive() int {
	return int(r.ttl.Load())
}

// SetTimeToLive 设置搜索的最大跳数
func (r *Router) SetTimeToLive(ttl int) {
	r.ttl.Store(int64(ttl))
}

// ============================================================================
//                              监听器
// ============================================================================

// RegisterListener 注册监听器，重复注册返回 false
func (r *Router) RegisterListener(l interfaces.RouterListener) bool {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	for _, existing := range r.listeners {
		if existing == l {
			return false
		}
	}
	r.listeners = append(r.listeners, l)
	return true
}

// UnregisterListener 注销监听器，未注册返回 false
func (r *Router) UnregisterListener(l interfaces.RouterListener) bool {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	for i, existing := range r.listeners {
		if existing == l {
			r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// ============================================================================
//                              生命周期
// ============================================================================

// Close 停止接收消息并等待进行中的转发结束
func (r *Router) Close() error {
	r.closeMu.Lock()
	swapped := r.closed.CompareAndSwap(false, true)
	r.closeMu.Unlock()
	if !swapped {
		return nil
	}
	r.cancel()
	r.inflight.Wait()

	if h := r.NetworkHandler(); h != nil {
		h.UnregisterListener(r)
	}
	metrics.ResetNode(r.Self().Key())
	return nil
}
