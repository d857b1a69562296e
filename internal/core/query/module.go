package query

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-filesharer/internal/core/routing"
	"github.com/dep2p/go-filesharer/internal/core/scheduler"
)

// ============================================================================
//                              模块输入依赖
// ============================================================================

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	Router *routing.Router

	// Scheduler 提供时钟（可选）
	Scheduler *scheduler.Scheduler `optional:"true"`
}

// ============================================================================
//                              模块输出服务
// ============================================================================

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	Manager *Manager
}

// ProvideServices 提供查询管理器
func ProvideServices(input ModuleInput) ModuleOutput {
	m := NewManager(input.Router)
	if input.Scheduler != nil {
		m.clock = input.Scheduler.Clock()
	}
	return ModuleOutput{Manager: m}
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("query",
		fx.Provide(ProvideServices),
		fx.Invoke(registerLifecycle),
	)
}

type lifecycleInput struct {
	fx.In
	LC      fx.Lifecycle
	Manager *Manager
}

func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return input.Manager.Close()
		},
	})
}
