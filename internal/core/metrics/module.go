package metrics

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-filesharer/config"
)

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	Config *config.Config `optional:"true"`
}

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	Server *Server
}

// ProvideServices 提供指标服务
func ProvideServices(input ModuleInput) ModuleOutput {
	cfg := input.Config
	if cfg == nil {
		cfg = config.NewConfig()
	}
	return ModuleOutput{Server: NewServer(cfg.Metrics.ListenAddr)}
}

// Module 返回 fx 模块配置，仅在 Metrics.Enabled 时加载
func Module() fx.Option {
	return fx.Module("metrics",
		fx.Provide(ProvideServices),
		fx.Invoke(registerLifecycle),
	)
}

func registerLifecycle(lc fx.Lifecycle, s *Server) {
	lc.Append(fx.Hook{
		OnStart: s.Start,
		OnStop: func(_ context.Context) error {
			return s.Stop()
		},
	})
}
