package bootstrap

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-filesharer/config"
	"github.com/dep2p/go-filesharer/internal/core/storage"
	"github.com/dep2p/go-filesharer/internal/core/storage/engine"
	"github.com/dep2p/go-filesharer/pkg/interfaces"
)

// ============================================================================
//                              模块输入依赖
// ============================================================================

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	// Config 统一配置（可选）
	Config *config.Config `optional:"true"`

	// Engine 注册表使用的存储引擎
	Engine engine.Engine

	// Handler 网络处理器
	Handler interfaces.NetworkHandler `name:"network_handler"`

	// Clock 注册时间使用的时钟（可选）
	Clock clock.Clock `optional:"true"`
}

// ============================================================================
//                              模块输出服务
// ============================================================================

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	Server *Server
}

// ProvideServices 提供目录服务器
func ProvideServices(input ModuleInput) ModuleOutput {
	cfg := ConfigFromUnified(input.Config)
	registry := NewRegistry(storage.NewKVStore(input.Engine, RegistryPrefix), cfg.MaxNodes, input.Clock)
	return ModuleOutput{Server: NewServer(input.Handler, registry, cfg)}
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块配置
//
// 需要与 storage.Module 和 transport.Module 一起使用。
func Module() fx.Option {
	return fx.Module("bootstrap",
		fx.Provide(ProvideServices),
		fx.Invoke(registerLifecycle),
	)
}

type lifecycleInput struct {
	fx.In
	LC     fx.Lifecycle
	Server *Server
}

func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			n, err := input.Server.Registry().Len()
			if err != nil {
				return err
			}
			log.Info("目录服务器已启动", "registered", n)
			return nil
		},
		OnStop: func(_ context.Context) error {
			log.Info("目录服务器停止")
			return input.Server.Close()
		},
	})
}
