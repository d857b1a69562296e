package routing

import (
	"github.com/dep2p/go-filesharer/config"
	"github.com/dep2p/go-filesharer/internal/core/routing/table"
	"github.com/dep2p/go-filesharer/pkg/types"
)

// Config 路由器配置
type Config struct {
	// Strategy 初始路由策略
	Strategy types.RoutingStrategyType

	// TimeToLive 搜索的最大跳数
	TimeToLive int

	// Limits 路由表容量
	Limits table.Limits

	// Resources 初始的本地资源
	Resources []string

	// ForwardCacheSize 已转发消息缓存，0 表示不去重
	ForwardCacheSize int

	// SendRateLimit 每秒转发上限，0 表示不限
	SendRateLimit float64
	SendBurst     int

	// MaxParallelForwards 单条消息的并发转发数，0 表示不限
	MaxParallelForwards int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return ConfigFromUnified(config.NewConfig())
}

// ConfigFromUnified 从统一配置创建路由器配置
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		return DefaultConfig()
	}
	rc := cfg.Routing
	return Config{
		Strategy:   rc.StrategyType(),
		TimeToLive: rc.TimeToLive,
		Limits: table.Limits{
			MaxUnstructuredPeers:     rc.MaxUnstructuredPeers,
			MaxSuperPeers:            rc.MaxSuperPeers,
			MaxAssignedOrdinaryPeers: rc.MaxAssignedOrdinaryPeers,
		},
		Resources:           append([]string(nil), cfg.Node.Resources...),
		ForwardCacheSize:    rc.ForwardCacheSize,
		SendRateLimit:       rc.SendRateLimit,
		SendBurst:           rc.SendBurst,
		MaxParallelForwards: rc.MaxParallelForwards,
	}
}
