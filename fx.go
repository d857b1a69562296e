package filesharer

import (
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-filesharer/internal/core/metrics"
	"github.com/dep2p/go-filesharer/internal/core/overlay"
	"github.com/dep2p/go-filesharer/internal/core/query"
	"github.com/dep2p/go-filesharer/internal/core/routing"
	"github.com/dep2p/go-filesharer/internal/core/scheduler"
	"github.com/dep2p/go-filesharer/internal/core/transport"
	"github.com/dep2p/go-filesharer/internal/util/logger"
)

var fxLogger = logger.Logger("filesharer/fx")

// buildFxApp 构建 Fx 应用
//
// 加载顺序（按依赖）：
//  1. Transport: 按配置选择 tcp / udp / memory 处理器
//  2. Routing: 路由表、资源索引与路由策略
//  3. Overlay: 目录服务器交互、邻居关系与周期任务
//  4. Query: 本节点发起的搜索
//  5. Metrics: 按配置加载 /metrics 服务
func buildFxApp(opts *options, node *Node) (*fx.App, error) {
	cfg := node.cfg

	// ════════════════════════════════════════════════════════════════════════
	// 1. 配置注入
	// ════════════════════════════════════════════════════════════════════════
	modules := []fx.Option{
		fx.Supply(cfg),
		fx.Supply(scheduler.New(opts.clock)),
	}
	if opts.network != nil {
		modules = append(modules, fx.Supply(opts.network))
	}

	// ════════════════════════════════════════════════════════════════════════
	// 2. 核心模块（必须加载）
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules,
		transport.Module(),
		routing.Module(),
		overlay.Module(),
		query.Module(),
	)

	// ════════════════════════════════════════════════════════════════════════
	// 3. 指标（条件加载）
	// ════════════════════════════════════════════════════════════════════════
	if cfg.Metrics.Enabled {
		modules = append(modules, metrics.Module())
		fxLogger.Debug("已加载指标模块", "addr", cfg.Metrics.ListenAddr)
	}

	// ════════════════════════════════════════════════════════════════════════
	// 4. 用户扩展（Fx Options）
	// ════════════════════════════════════════════════════════════════════════
	if len(opts.userFxOptions) > 0 {
		modules = append(modules, opts.userFxOptions...)
	}

	// ════════════════════════════════════════════════════════════════════════
	// 5. Node 组件注入
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules, fx.Invoke(injectNodeComponents(node)))

	// ════════════════════════════════════════════════════════════════════════
	// 6. Fx 配置
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules,
		// 禁用 Fx 日志输出（避免干扰用户日志）
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
	)

	app := fx.New(modules...)
	if err := app.Err(); err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}
	return app, nil
}

// ════════════════════════════════════════════════════════════════════════════
// 组件注入辅助函数
// ════════════════════════════════════════════════════════════════════════════

// nodeInjectParams Node 组件注入参数
type nodeInjectParams struct {
	fx.In

	Router  *routing.Router
	Overlay *overlay.Manager
	Queries *query.Manager

	// 可选组件
	MetricsServer *metrics.Server `optional:"true"`
}

// injectNodeComponents 创建 Node 组件注入函数
func injectNodeComponents(node *Node) interface{} {
	return func(params nodeInjectParams) {
		node.router = params.Router
		node.overlay = params.Overlay
		node.queries = params.Queries
		node.metricsServer = params.MetricsServer
	}
}
