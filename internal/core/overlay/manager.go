// Package overlay 维护节点在覆盖网络中的位置
//
// Manager 作为路由器监听器处理目录服务器与邻居发来的控制消息：
//   - 注册 / 注销 / 加入 / 离开
//   - 超级节点搜索、加入与自我提升
//   - 心跳、GC 与 Gossip 周期任务
package overlay

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/dep2p/go-filesharer/internal/core/routing"
	"github.com/dep2p/go-filesharer/internal/core/routing/table"
	"github.com/dep2p/go-filesharer/internal/core/scheduler"
	"github.com/dep2p/go-filesharer/internal/util/logger"
	"github.com/dep2p/go-filesharer/pkg/interfaces"
	"github.com/dep2p/go-filesharer/pkg/protocol"
	"github.com/dep2p/go-filesharer/pkg/types"
)

var log = logger.Logger("overlay")

// 周期任务名称
const (
	TaskHeartbeat = "heartbeat"
	TaskGC        = "gc"
	TaskGossip    = "gossip"
)

// Manager 覆盖网络管理器
type Manager struct {
	router *routing.Router
	cfg    Config
	sched  *scheduler.Scheduler
	clock  clock.Clock

	registered     atomic.Bool
	registerRetry  atomic.Int32
	searchSequence atomic.Uint64

	// 换端口后由本管理器启动的处理器
	bindMu sync.Mutex
	bound  interfaces.NetworkHandler
	bindWG sync.WaitGroup

	// 超级节点搜索
	searchMu     sync.Mutex
	searching    bool
	promoteTimer *clock.Timer

	stopped atomic.Bool
}

var _ interfaces.RouterListener = (*Manager)(nil)

// NewManager 创建管理器并注册为路由器监听器
//
// sched 为 nil 时使用真实时钟的调度器。
func NewManager(router *routing.Router, cfg Config, sched *scheduler.Scheduler) *Manager {
	if sched == nil {
		sched = scheduler.New(nil)
	}
	if cfg.Username == "" {
		cfg.Username = router.Self().Key()
	}
	if cfg.JoinFanout <= 0 {
		cfg.JoinFanout = 2
	}

	m := &Manager{
		router: router,
		cfg:    cfg,
		sched:  sched,
		clock:  sched.Clock(),
	}
	router.RegisterListener(m)
	return m
}

// ============================================================================
//                              生命周期
// ============================================================================

// Start 按配置开启周期任务
func (m *Manager) Start(_ context.Context) error {
	if m.stopped.Load() {
		return ErrManagerStopped
	}
	if m.cfg.HeartbeatEnabled {
		m.EnableHeartBeat()
	}
	if m.cfg.GossipEnabled {
		m.EnableGossiping()
	}
	log.Info("覆盖网络管理器已启动",
		"node", m.self().String(),
		"heartbeat", m.cfg.HeartbeatEnabled,
		"gossip", m.cfg.GossipEnabled)
	return nil
}

// Stop 同步停止所有周期任务并注销监听器
func (m *Manager) Stop() error {
	if !m.stopped.CompareAndSwap(false, true) {
		return nil
	}
	m.sched.Stop()

	m.searchMu.Lock()
	if m.promoteTimer != nil {
		m.promoteTimer.Stop()
		m.promoteTimer = nil
	}
	m.searching = false
	m.searchMu.Unlock()

	m.bindMu.Lock()
	bound := m.bound
	m.bound = nil
	m.bindMu.Unlock()
	m.bindWG.Wait()
	if bound != nil {
		if err := bound.Shutdown(); err != nil {
			log.Debug("关闭换端口后的处理器出错", "err", err)
		}
	}

	m.router.UnregisterListener(m)
	log.Info("覆盖网络管理器已停止", "node", m.self().String())
	return nil
}

// ============================================================================
//                              目录服务器
// ============================================================================

// Register 向目录服务器注册，结果由 REGOK 异步处理
func (m *Manager) Register() error {
	if m.cfg.BootstrapIP == "" || m.cfg.BootstrapPort == 0 {
		return ErrNoBootstrap
	}
	self := m.self()
	msg := protocol.New(protocol.TypeReg, self.IP, strconv.Itoa(self.Port), m.cfg.Username)
	log.Info("向目录服务器注册", "bootstrap", types.NodeKey(m.cfg.BootstrapIP, m.cfg.BootstrapPort), "username", m.cfg.Username)
	return m.router.SendMessageTo(m.cfg.BootstrapIP, m.cfg.BootstrapPort, msg)
}

// Unregister 从目录服务器注销
func (m *Manager) Unregister() error {
	if m.cfg.BootstrapIP == "" || m.cfg.BootstrapPort == 0 {
		return ErrNoBootstrap
	}
	self := m.self()
	msg := protocol.New(protocol.TypeUnreg, self.IP, strconv.Itoa(self.Port), m.cfg.Username)
	log.Info("从目录服务器注销", "bootstrap", types.NodeKey(m.cfg.BootstrapIP, m.cfg.BootstrapPort))
	return m.router.SendMessageTo(m.cfg.BootstrapIP, m.cfg.BootstrapPort, msg)
}

// rebind 在后台换用下一个端口并重新注册
//
// REGOK 在旧处理器的投递协程中处理，而关闭旧处理器要等投递结束，所以不能同步执行。
func (m *Manager) rebind() {
	if m.cfg.NewHandler == nil {
		log.Error("无法换用端口：未配置处理器工厂", "node", m.self().String())
		return
	}
	m.bindMu.Lock()
	defer m.bindMu.Unlock()
	if m.stopped.Load() {
		return
	}
	m.bindWG.Add(1)
	go func() {
		defer m.bindWG.Done()
		m.rebindAndRegister()
	}()
}

func (m *Manager) rebindAndRegister() {
	port := m.self().Port
	for {
		if int(m.registerRetry.Add(1)) > m.cfg.MaxRegisterRetries {
			log.Error("重新注册次数已用完", "retries", m.cfg.MaxRegisterRetries)
			return
		}
		port++
		err := m.bindPort(port)
		if err == nil {
			break
		}
		if errors.Is(err, ErrManagerStopped) {
			return
		}
		log.Warn("换用端口失败", "port", port, "err", err)
	}
	if err := m.Register(); err != nil {
		log.Warn("重新注册失败", "err", err)
	}
}

// bindPort 在 port 上启动新处理器并替换路由器的处理器与本节点地址
func (m *Manager) bindPort(port int) error {
	h, err := m.cfg.NewHandler(port)
	if err != nil {
		return err
	}
	if err := h.Start(context.Background()); err != nil {
		return err
	}

	m.bindMu.Lock()
	if m.stopped.Load() {
		m.bindMu.Unlock()
		_ = h.Shutdown()
		return ErrManagerStopped
	}
	old := m.router.NetworkHandler()
	self := m.self()
	m.router.ChangeNetworkHandler(h)
	m.router.SetSelf(types.NewNode(self.IP, port))
	m.bound = h
	m.bindMu.Unlock()

	if old != nil {
		if err := old.Shutdown(); err != nil {
			log.Debug("关闭旧处理器出错", "err", err)
		}
	}
	log.Info("已换用端口", "from", self.Port, "to", port)
	return nil
}

// Registered 是否已在目录服务器注册成功
func (m *Manager) Registered() bool {
	return m.registered.Load()
}

// ============================================================================
//                              邻居关系
// ============================================================================

// Leave 通知路由表中的所有节点本节点离开
func (m *Manager) Leave() error {
	msg := m.addressMessage(protocol.TypeLeave)
	var errs error
	for _, n := range m.router.RoutingTable().GetAll() {
		errs = multierr.Append(errs, m.router.SendMessage(n, msg.Clone()))
	}
	log.Info("已通知邻居离开", "node", m.self().String())
	return errs
}

// join 向给定节点发送 JOIN
func (m *Manager) join(nodes []*types.Node) {
	msg := m.addressMessage(protocol.TypeJoin)
	for _, n := range nodes {
		if err := m.router.SendMessage(n, msg.Clone()); err != nil {
			log.Warn("发送 JOIN 失败", "to", n.String(), "err", err)
		}
	}
}

// ============================================================================
//                              超级节点
// ============================================================================

// searchForSuperPeer 普通节点在没有存活的超级节点时发起搜索
func (m *Manager) searchForSuperPeer() {
	tbl, ok := m.router.RoutingTable().(*table.OrdinaryTable)
	if !ok {
		return
	}
	if sp := tbl.AssignedSuperPeer(); sp != nil && sp.IsActive() {
		return
	}

	m.searchMu.Lock()
	if m.searching || m.stopped.Load() {
		m.searchMu.Unlock()
		return
	}
	m.searching = true
	m.armPromotionLocked()
	m.searchMu.Unlock()

	self := m.self()
	msg := protocol.New(protocol.TypeSerSuperPeer,
		self.IP, strconv.Itoa(self.Port),
		strconv.FormatUint(m.searchSequence.Add(1), 10),
		strconv.Itoa(protocol.InitialHopCount))
	log.Debug("搜索超级节点", "node", self.String())
	if err := m.router.Route(msg); err != nil {
		log.Warn("超级节点搜索路由失败", "err", err)
		m.resolveSearch()
	}
}

// resolveSearch 结束搜索，返回搜索之前是否仍在进行
func (m *Manager) resolveSearch() bool {
	m.searchMu.Lock()
	defer m.searchMu.Unlock()
	was := m.searching
	m.searching = false
	if m.promoteTimer != nil {
		m.promoteTimer.Stop()
		m.promoteTimer = nil
	}
	return was
}

// armPromotionLocked 搜索开始时计时，窗口内没有任何回复则自我提升
//
// 泛洪不会把消息发回来源，小网络中的搜索可能收不到未找到回复。
func (m *Manager) armPromotionLocked() {
	if m.promoteTimer != nil {
		m.promoteTimer.Stop()
	}
	m.promoteTimer = m.clock.AfterFunc(m.cfg.SuperPeerSearchWindow, func() {
		m.searchMu.Lock()
		pending := m.searching
		m.searching = false
		m.promoteTimer = nil
		m.searchMu.Unlock()

		if pending && !m.stopped.Load() {
			log.Info("搜索窗口内未找到超级节点，自我提升", "node", m.self().String())
			m.PromoteToSuperPeer()
		}
	})
}

// SearchingForSuperPeer 是否有进行中的超级节点搜索
func (m *Manager) SearchingForSuperPeer() bool {
	m.searchMu.Lock()
	defer m.searchMu.Unlock()
	return m.searching
}

// PromoteToSuperPeer 提升为超级节点
func (m *Manager) PromoteToSuperPeer() bool {
	m.resolveSearch()
	ok := m.router.PromoteToSuperPeer()
	if ok {
		m.recordTableSizes()
	}
	return ok
}

// DemoteToOrdinaryPeer 降级为普通节点，并重新寻找超级节点
func (m *Manager) DemoteToOrdinaryPeer() bool {
	ok := m.router.DemoteToOrdinaryPeer()
	if ok {
		m.recordTableSizes()
		if len(m.router.RoutingTable().GetAllUnstructured()) > 0 {
			m.searchForSuperPeer()
		}
	}
	return ok
}

// ============================================================================
//                              辅助
// ============================================================================

func (m *Manager) self() *types.Node {
	return m.router.Self()
}

// addressMessage 以本节点 ip port 为字段的消息
func (m *Manager) addressMessage(t protocol.MessageType) *protocol.Message {
	self := m.self()
	return protocol.New(t, self.IP, strconv.Itoa(self.Port))
}

// replyMessage value ip port 形式的回复
func (m *Manager) replyMessage(t protocol.MessageType, value string) *protocol.Message {
	self := m.self()
	return protocol.New(t, value, self.IP, strconv.Itoa(self.Port))
}

func (m *Manager) send(ip string, port int, msg *protocol.Message) {
	if err := m.router.SendMessageTo(ip, port, msg); err != nil {
		log.Debug("发送失败", "to", types.NodeKey(ip, port), "type", msg.Type, "err", err)
	}
}
