package config

import (
	"fmt"
	"time"
)

// TasksConfig 周期任务配置
type TasksConfig struct {
	// HeartbeatEnabled 启动时是否开启心跳与 GC
	HeartbeatEnabled bool `json:"heartbeat_enabled"`

	// HeartbeatInterval 心跳周期
	HeartbeatInterval Duration `json:"heartbeat_interval"`

	// GCInterval 清理 INACTIVE 节点的周期
	GCInterval Duration `json:"gc_interval"`

	// GossipEnabled 启动时是否开启 Gossip
	GossipEnabled bool `json:"gossip_enabled"`

	// GossipInterval Gossip 周期
	GossipInterval Duration `json:"gossip_interval"`

	// SuperPeerSearchWindow 超级节点搜索等待回复的时间，到期仍未找到则自我提升
	SuperPeerSearchWindow Duration `json:"super_peer_search_window"`
}

// DefaultTasksConfig 返回默认的周期任务配置
func DefaultTasksConfig() TasksConfig {
	return TasksConfig{
		HeartbeatEnabled:      true,
		HeartbeatInterval:     Duration(30 * time.Second),
		GCInterval:            Duration(60 * time.Second),
		GossipEnabled:         true,
		GossipInterval:        Duration(60 * time.Second),
		SuperPeerSearchWindow: Duration(5 * time.Second),
	}
}

// Validate 验证周期任务配置
func (c *TasksConfig) Validate() error {
	if c.HeartbeatInterval <= 0 || c.GCInterval <= 0 || c.GossipInterval <= 0 {
		return fmt.Errorf("tasks: intervals must be positive")
	}
	if c.SuperPeerSearchWindow <= 0 {
		return fmt.Errorf("tasks: super_peer_search_window must be positive")
	}
	return nil
}
