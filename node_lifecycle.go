package filesharer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// ════════════════════════════════════════════════════════════════════════════
//                              生命周期常量
// ════════════════════════════════════════════════════════════════════════════

const (
	// initializeTimeout 初始化超时（Fx App Start）
	initializeTimeout = 30 * time.Second

	// stopTimeout 停止超时（Fx App Stop）
	stopTimeout = 10 * time.Second
)

// ════════════════════════════════════════════════════════════════════════════
//                              生命周期管理
// ════════════════════════════════════════════════════════════════════════════

// Start 启动节点
//
// 依次启动网络处理器、路由器、覆盖网络管理器与查询管理器，
// 并按配置开启心跳与 Gossip。Start 不会自动注册，调用方需显式调用 Register。
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch n.state {
	case StateRunning, StateStarting:
		return ErrAlreadyStarted
	case StateStopping, StateStopped:
		return ErrNodeClosed
	}

	n.state = StateStarting
	log.Info("正在启动节点", "addr", n.Address(), "username", n.cfg.Node.Username)

	initCtx, cancel := context.WithTimeout(ctx, initializeTimeout)
	defer cancel()

	if err := n.app.Start(initCtx); err != nil {
		// 已启动的模块由 Fx 回滚
		n.state = StateStopped
		log.Error("节点启动失败", "err", err)
		return fmt.Errorf("start fx app: %w", err)
	}

	n.state = StateRunning
	log.Info("节点已启动",
		"addr", n.Address(),
		"handler", n.NetworkHandler().Name(),
		"strategy", n.RoutingStrategy(),
		"role", n.Role().String())
	return nil
}

// Stop 同步停止节点
//
// 停止周期任务、关闭网络处理器（端口可立即重新绑定）并等待进行中的转发。
// 节点停止后不可再次启动。
func (n *Node) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch n.state {
	case StateStopped:
		return nil
	case StateIdle:
		n.state = StateStopped
		return nil
	}

	n.state = StateStopping
	log.Info("正在停止节点", "addr", n.Address())

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	err := n.app.Stop(ctx)
	n.state = StateStopped
	if err != nil {
		log.Error("停止节点失败", "err", err)
		return fmt.Errorf("stop fx app: %w", err)
	}
	log.Info("节点已停止", "addr", n.Address())
	return nil
}

// Close 优雅关闭
//
// 通知邻居离开、从目录服务器注销，然后停止节点。
// 离开与注销的失败只会合并进返回的错误，不会阻止停止。
func (n *Node) Close() error {
	var errs error
	if n.State() == StateRunning {
		errs = multierr.Append(errs, n.Leave())
		if n.Registered() {
			errs = multierr.Append(errs, n.Unregister())
		}
	}
	return multierr.Append(errs, n.Stop())
}
