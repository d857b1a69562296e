package filesharer

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/fx"

	"github.com/dep2p/go-filesharer/config"
	"github.com/dep2p/go-filesharer/internal/core/metrics"
	"github.com/dep2p/go-filesharer/internal/core/overlay"
	"github.com/dep2p/go-filesharer/internal/core/query"
	"github.com/dep2p/go-filesharer/internal/core/routing"
	"github.com/dep2p/go-filesharer/internal/util/logger"
	"github.com/dep2p/go-filesharer/pkg/interfaces"
	"github.com/dep2p/go-filesharer/pkg/types"
)

var log = logger.Logger("filesharer")

// ════════════════════════════════════════════════════════════════════════════
//                              节点状态
// ════════════════════════════════════════════════════════════════════════════

// NodeState 节点状态
type NodeState int

const (
	// StateIdle 空闲状态（已创建，未启动）
	StateIdle NodeState = iota

	// StateStarting 启动中（Fx App 启动中）
	StateStarting

	// StateRunning 运行中
	StateRunning

	// StateStopping 停止中
	StateStopping

	// StateStopped 已停止，不可再启动
	StateStopped
)

// String 返回状态的字符串表示
func (s NodeState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Node 文件共享节点
//
// Node 是用户与覆盖网络交互的主入口，聚合了网络处理器、路由器、
// 覆盖网络管理器与查询管理器。
//
// 使用示例：
//
//	node, err := filesharer.New(
//	    filesharer.WithPort(7101),
//	    filesharer.WithBootstrap("127.0.0.1", 55555),
//	    filesharer.WithResources("Cars", "Iron Man"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := node.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Stop()
//
//	_ = node.Register()
//	_ = node.Query("Iron")
//	results := node.QueryResults("Iron")
type Node struct {
	id  uuid.UUID
	cfg *config.Config
	app *fx.App

	// 由 Fx 注入
	router        *routing.Router
	overlay       *overlay.Manager
	queries       *query.Manager
	metricsServer *metrics.Server

	mu    sync.RWMutex
	state NodeState
}

// New 创建节点，组件在 Start 时启动
func New(opts ...Option) (*Node, error) {
	o := newOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	cfg, err := o.toConfig()
	if err != nil {
		return nil, err
	}

	n := &Node{id: uuid.New()}
	if cfg.Node.Username == "" {
		cfg.Node.Username = "peer-" + n.id.String()[:8]
	}
	n.cfg = cfg

	app, err := buildFxApp(o, n)
	if err != nil {
		return nil, err
	}
	n.app = app

	log.Debug("节点已创建",
		"id", n.id.String(),
		"addr", n.Address(),
		"handler", cfg.Transport.Handler,
		"strategy", cfg.Routing.Strategy)
	return n, nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              基本信息
// ════════════════════════════════════════════════════════════════════════════

// ID 节点实例 ID
func (n *Node) ID() string {
	return n.id.String()
}

// Username 在目录服务器注册的用户名
func (n *Node) Username() string {
	return n.cfg.Node.Username
}

// Address 本节点 ip:port，注册时换用端口后随之变化
func (n *Node) Address() string {
	return n.router.Self().Key()
}

// Self 本节点
func (n *Node) Self() *types.Node {
	return n.router.Self()
}

// Config 节点配置的副本
func (n *Node) Config() *config.Config {
	return config.CloneConfig(n.cfg)
}

// State 当前状态
func (n *Node) State() NodeState {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

// Router 路由器
func (n *Node) Router() *routing.Router {
	return n.router
}

// Overlay 覆盖网络管理器
func (n *Node) Overlay() *overlay.Manager {
	return n.overlay
}

// NetworkHandler 当前网络处理器
func (n *Node) NetworkHandler() interfaces.NetworkHandler {
	return n.router.NetworkHandler()
}

// MetricsServer 指标服务，未启用时为 nil
func (n *Node) MetricsServer() *metrics.Server {
	return n.metricsServer
}

// checkRunning 节点必须处于运行状态
func (n *Node) checkRunning() error {
	switch n.State() {
	case StateRunning:
		return nil
	case StateStopping, StateStopped:
		return ErrNodeClosed
	default:
		return ErrNotStarted
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              覆盖网络
// ════════════════════════════════════════════════════════════════════════════

// Register 向目录服务器注册，邻居关系随 REGOK 异步建立
func (n *Node) Register() error {
	if err := n.checkRunning(); err != nil {
		return err
	}
	return n.overlay.Register()
}

// Unregister 从目录服务器注销
func (n *Node) Unregister() error {
	if err := n.checkRunning(); err != nil {
		return err
	}
	return n.overlay.Unregister()
}

// Registered 是否已注册成功
func (n *Node) Registered() bool {
	return n.overlay != nil && n.overlay.Registered()
}

// Leave 通知所有邻居本节点离开
func (n *Node) Leave() error {
	if err := n.checkRunning(); err != nil {
		return err
	}
	return n.overlay.Leave()
}

// PromoteToSuperPeer 提升为超级节点，已是超级节点时返回 false
func (n *Node) PromoteToSuperPeer() (bool, error) {
	if err := n.checkRunning(); err != nil {
		return false, err
	}
	return n.overlay.PromoteToSuperPeer(), nil
}

// DemoteToOrdinaryPeer 降级为普通节点，已是普通节点时返回 false
func (n *Node) DemoteToOrdinaryPeer() (bool, error) {
	if err := n.checkRunning(); err != nil {
		return false, err
	}
	return n.overlay.DemoteToOrdinaryPeer(), nil
}

// Role 当前角色
func (n *Node) Role() types.PeerRole {
	return n.router.Role()
}

// ════════════════════════════════════════════════════════════════════════════
//                              周期任务
// ════════════════════════════════════════════════════════════════════════════

// EnableHeartBeat 开启心跳与 GC
func (n *Node) EnableHeartBeat() {
	n.overlay.EnableHeartBeat()
}

// DisableHeartBeat 关闭心跳与 GC
func (n *Node) DisableHeartBeat() {
	n.overlay.DisableHeartBeat()
}

// EnableGossiping 开启 Gossip
func (n *Node) EnableGossiping() {
	n.overlay.EnableGossiping()
}

// DisableGossiping 关闭 Gossip
func (n *Node) DisableGossiping() {
	n.overlay.DisableGossiping()
}

// ════════════════════════════════════════════════════════════════════════════
//                              搜索
// ════════════════════════════════════════════════════════════════════════════

// Query 发起搜索，结果通过 QueryResults 读取
func (n *Node) Query(name string) error {
	if err := n.checkRunning(); err != nil {
		return err
	}
	return n.queries.Query(name)
}

// QueryResults 按资源名排序的聚合结果，未发起过的查询返回 nil
func (n *Node) QueryResults(name string) []types.AggregatedResource {
	return n.queries.QueryResults(name)
}

// RunningQueries 已发起的查询字符串
func (n *Node) RunningQueries() []string {
	return n.queries.RunningQueryStrings()
}

// ClearQueryResults 丢弃所有查询与结果
func (n *Node) ClearQueryResults() {
	n.queries.ClearQueryResults()
}

// ════════════════════════════════════════════════════════════════════════════
//                              资源
// ════════════════════════════════════════════════════════════════════════════

// AddResource 添加本节点拥有的资源
func (n *Node) AddResource(name string) error {
	if name == "" {
		return ErrEmptyResource
	}
	n.router.ResourceIndex().AddOwnedResource(name)
	return nil
}

// RemoveResource 移除本节点拥有的资源
func (n *Node) RemoveResource(name string) bool {
	return n.router.ResourceIndex().RemoveOwnedResource(name)
}

// Resources 本节点拥有的资源
func (n *Node) Resources() []string {
	return n.router.ResourceIndex().OwnedResources()
}

// ════════════════════════════════════════════════════════════════════════════
//                              路由
// ════════════════════════════════════════════════════════════════════════════

// ChangeRoutingStrategy 切换路由策略
func (n *Node) ChangeRoutingStrategy(kind types.RoutingStrategyType) error {
	return n.router.ChangeRoutingStrategy(kind)
}

// RoutingStrategy 当前路由策略
func (n *Node) RoutingStrategy() types.RoutingStrategyType {
	return n.router.RoutingStrategy().Name()
}

// SetTimeToLive 设置搜索的最大跳数
func (n *Node) SetTimeToLive(ttl int) {
	n.router.SetTimeToLive(ttl)
}

// TimeToLive 搜索的最大跳数
func (n *Node) TimeToLive() int {
	return n.router.TimeToLive()
}
