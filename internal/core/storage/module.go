package storage

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-filesharer/config"
	"github.com/dep2p/go-filesharer/internal/core/storage/engine"
	"github.com/dep2p/go-filesharer/internal/core/storage/engine/badger"
	"github.com/dep2p/go-filesharer/internal/core/storage/kv"
	"github.com/dep2p/go-filesharer/internal/util/logger"
)

var log = logger.Logger("storage")

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	Config *config.Config `optional:"true"`
}

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	Engine engine.Engine
}

// Module 返回 Storage Fx 模块
//
// 生命周期：OnStart 启动值日志 GC，OnStop 关闭引擎。
func Module() fx.Option {
	return fx.Module("storage",
		fx.Provide(ProvideServices),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideServices 按统一配置打开存储引擎
func ProvideServices(input ModuleInput) (ModuleOutput, error) {
	eng, err := NewEngine(ConfigFromUnified(input.Config))
	if err != nil {
		return ModuleOutput{}, err
	}
	return ModuleOutput{Engine: eng}, nil
}

func registerLifecycle(lc fx.Lifecycle, eng engine.Engine) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if err := eng.Start(); err != nil {
				log.Error("存储引擎启动失败", "err", err)
				return err
			}
			return nil
		},
		OnStop: func(_ context.Context) error {
			log.Info("正在关闭存储引擎")
			return eng.Close()
		},
	})
}

// NewEngine 根据配置创建存储引擎
func NewEngine(cfg Config) (engine.Engine, error) {
	log.Debug("创建存储引擎", "path", cfg.Path, "in_memory", cfg.InMemory)
	eng, err := badger.New(cfg.ToEngineConfig())
	if err != nil {
		log.Error("创建存储引擎失败", "err", err)
		return nil, err
	}
	return eng, nil
}

// NewKVStore 创建带前缀的 KVStore
func NewKVStore(eng engine.Engine, prefix []byte) *kv.Store {
	return kv.New(eng, prefix)
}

// KVStore 是 kv.Store 的类型别名
type KVStore = kv.Store
