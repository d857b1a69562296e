package transport

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"github.com/dep2p/go-filesharer/config"
	"github.com/dep2p/go-filesharer/pkg/interfaces"
	"github.com/dep2p/go-filesharer/pkg/types"
)

// NewHandler 按类型创建网络处理器，memory 类型需要 network
func NewHandler(kind types.NetworkHandlerType, cfg Config, network *Network) (interfaces.NetworkHandler, error) {
	switch kind {
	case types.HandlerTCP:
		return NewTCPHandler(cfg), nil
	case types.HandlerUDP:
		return NewUDPHandler(cfg)
	case types.HandlerMemory:
		if network == nil {
			return nil, fmt.Errorf("%w: memory handler requires a network", ErrUnknownHandler)
		}
		return NewMemoryHandler(network, cfg.IP, cfg.Port), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownHandler, kind)
}

// ============================================================================
//                              模块输入依赖
// ============================================================================

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	// Config 统一配置（可选）
	Config *config.Config `optional:"true"`

	// Network 进程内网络（memory 处理器需要）
	Network *Network `optional:"true"`
}

// ============================================================================
//                              模块输出服务
// ============================================================================

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	Handler interfaces.NetworkHandler `name:"network_handler"`
}

// ProvideServices 按配置提供网络处理器
func ProvideServices(input ModuleInput) (ModuleOutput, error) {
	cfg := input.Config
	if cfg == nil {
		cfg = config.NewConfig()
	}

	h, err := NewHandler(types.NetworkHandlerType(cfg.Transport.Handler), ConfigFromUnified(cfg), input.Network)
	if err != nil {
		return ModuleOutput{}, err
	}
	return ModuleOutput{Handler: h}, nil
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("transport",
		fx.Provide(ProvideServices),
		fx.Invoke(registerLifecycle),
	)
}

type lifecycleInput struct {
	fx.In
	LC      fx.Lifecycle
	Handler interfaces.NetworkHandler `name:"network_handler"`
}

// registerLifecycle 注册生命周期
func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("网络处理器启动", "handler", input.Handler.Name())
			return input.Handler.Start(ctx)
		},
		OnStop: func(_ context.Context) error {
			log.Info("网络处理器停止", "handler", input.Handler.Name())
			return input.Handler.Shutdown()
		},
	})
}
