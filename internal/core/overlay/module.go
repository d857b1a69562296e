package overlay

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-filesharer/config"
	"github.com/dep2p/go-filesharer/internal/core/routing"
	"github.com/dep2p/go-filesharer/internal/core/scheduler"
	"github.com/dep2p/go-filesharer/internal/core/transport"
	"github.com/dep2p/go-filesharer/pkg/interfaces"
	"github.com/dep2p/go-filesharer/pkg/types"
)

// ============================================================================
//                              模块输入依赖
// ============================================================================

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	// Config 统一配置（可选）
	Config *config.Config `optional:"true"`

	Router *routing.Router

	// Scheduler 周期任务调度器（可选，测试时注入模拟时钟）
	Scheduler *scheduler.Scheduler `optional:"true"`

	// Network 进程内网络（memory 处理器换端口时需要）
	Network *transport.Network `optional:"true"`
}

// ============================================================================
//                              模块输出服务
// ============================================================================

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	Manager *Manager
}

// ProvideServices 提供覆盖网络管理器
func ProvideServices(input ModuleInput) ModuleOutput {
	cfg := ConfigFromUnified(input.Config)
	cfg.NewHandler = handlerFactory(input.Config, input.Network)
	return ModuleOutput{
		Manager: NewManager(input.Router, cfg, input.Scheduler),
	}
}

// handlerFactory 按统一配置中的处理器类型在新端口上创建处理器
func handlerFactory(cfg *config.Config, network *transport.Network) HandlerFactory {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	kind := types.NetworkHandlerType(cfg.Transport.Handler)
	base := transport.ConfigFromUnified(cfg)
	return func(port int) (interfaces.NetworkHandler, error) {
		tcfg := base
		tcfg.Port = port
		return transport.NewHandler(kind, tcfg, network)
	}
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("overlay",
		fx.Provide(ProvideServices),
		fx.Invoke(registerLifecycle),
	)
}

type lifecycleInput struct {
	fx.In
	LC      fx.Lifecycle
	Manager *Manager
}

// registerLifecycle 注册生命周期
func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return input.Manager.Start(ctx)
		},
		OnStop: func(_ context.Context) error {
			return input.Manager.Stop()
		},
	})
}
