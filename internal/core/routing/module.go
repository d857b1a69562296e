package routing

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-filesharer/config"
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

	// Handler 网络处理器
	Handler interfaces.NetworkHandler `name:"network_handler"`
}

// ============================================================================
//                              模块输出服务
// ============================================================================

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	Router *Router
}

// ProvideServices 提供路由器
func ProvideServices(input ModuleInput) (ModuleOutput, error) {
	cfg := input.Config
	if cfg == nil {
		cfg = config.NewConfig()
	}

	self := types.NewNode(cfg.Node.IP, cfg.Node.Port)
	router, err := NewRouter(self, input.Handler, ConfigFromUnified(cfg))
	if err != nil {
		return ModuleOutput{}, err
	}
	return ModuleOutput{Router: router}, nil
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("routing",
		fx.Provide(ProvideServices),
		fx.Invoke(registerLifecycle),
	)
}

type lifecycleInput struct {
	fx.In
	LC     fx.Lifecycle
	Router *Router
}

// registerLifecycle 路由器没有启动动作，停止时等待进行中的转发
func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			log.Info("路由器停止")
			return input.Router.Close()
		},
	})
}
