package config

import (
	"fmt"

	"github.com/dep2p/go-filesharer/pkg/types"
)

// RoutingConfig 路由配置
type RoutingConfig struct {
	// Strategy 路由策略: flooding / random-walk / super-peer-flooding
	Strategy string `json:"strategy"`

	// TimeToLive 搜索的最大跳数
	TimeToLive int `json:"time_to_live"`

	// MaxUnstructuredPeers 非结构化邻居上限，0 表示不限
	MaxUnstructuredPeers int `json:"max_unstructured_peers"`

	// MaxSuperPeers 超级节点之间的连接上限
	MaxSuperPeers int `json:"max_super_peers"`

	// MaxAssignedOrdinaryPeers 每个超级节点可接纳的普通节点上限
	MaxAssignedOrdinaryPeers int `json:"max_assigned_ordinary_peers"`

	// ForwardCacheSize 已转发消息缓存大小，0 表示不去重
	ForwardCacheSize int `json:"forward_cache_size"`

	// SendRateLimit 每秒最多发出的转发消息数，0 表示不限
	SendRateLimit float64 `json:"send_rate_limit"`

	// SendBurst 限速器的突发容量
	SendBurst int `json:"send_burst"`

	// MaxParallelForwards 同一条消息的并发转发数
	MaxParallelForwards int `json:"max_parallel_forwards"`
}

// DefaultRoutingConfig 返回默认的路由配置
func DefaultRoutingConfig() RoutingConfig {
	return RoutingConfig{
		Strategy:                 string(types.StrategySuperPeerFlooding),
		TimeToLive:               5,
		MaxUnstructuredPeers:     10,
		MaxSuperPeers:            10,
		MaxAssignedOrdinaryPeers: 10,
		ForwardCacheSize:         4096,
		SendRateLimit:            0,
		SendBurst:                64,
		MaxParallelForwards:      16,
	}
}

// Validate 验证路由配置
func (c *RoutingConfig) Validate() error {
	if _, err := types.ParseRoutingStrategyType(c.Strategy); err != nil {
		return fmt.Errorf("routing: %w", err)
	}
	if c.TimeToLive < 0 {
		return fmt.Errorf("routing: time_to_live must not be negative")
	}
	if c.MaxUnstructuredPeers < 0 || c.MaxSuperPeers < 0 || c.MaxAssignedOrdinaryPeers < 0 {
		return fmt.Errorf("routing: capacities must not be negative")
	}
	if c.ForwardCacheSize < 0 {
		return fmt.Errorf("routing: forward_cache_size must not be negative")
	}
	if c.SendRateLimit < 0 {
		return fmt.Errorf("routing: send_rate_limit must not be negative")
	}
	if c.SendRateLimit > 0 && c.SendBurst <= 0 {
		return fmt.Errorf("routing: send_burst must be positive when send_rate_limit is set")
	}
	if c.MaxParallelForwards <= 0 {
		return fmt.Errorf("routing: max_parallel_forwards must be positive")
	}
	return nil
}

// StrategyType 解析后的策略类型
func (c *RoutingConfig) StrategyType() types.RoutingStrategyType {
	kind, err := types.ParseRoutingStrategyType(c.Strategy)
	if err != nil {
		return types.StrategyFlooding
	}
	return kind
}
