// Package config 提供文件共享节点的统一配置
//
// Config 嵌入所有子配置，每个子配置在独立文件中定义，
// 各自提供 DefaultXConfig() 与 Validate()。
//
// 使用示例：
//
//	cfg := config.NewConfig()
//	cfg.Node.Port = 7101
//	cfg.Routing.Strategy = "random-walk"
//
//	// 从 JSON 加载（未出现的字段保留默认值）
//	cfg, err := config.FromJSON(data)
package config

import (
	"encoding/json"
	"fmt"
)

// Config 文件共享节点的完整配置
//
//   - Node: 本节点地址、用户名与初始资源
//   - Routing: 路由策略、TTL 与路由表容量
//   - Transport: 网络处理器
//   - Bootstrap: 目录服务器
//   - Tasks: 心跳、Gossip 与 GC 周期
//   - Metrics: Prometheus 导出
//   - Storage: 目录服务器的注册表存储
type Config struct {
	Node      NodeConfig      `json:"node"`
	Routing   RoutingConfig   `json:"routing"`
	Transport TransportConfig `json:"transport"`
	Bootstrap BootstrapConfig `json:"bootstrap"`
	Tasks     TasksConfig     `json:"tasks"`
	Metrics   MetricsConfig   `json:"metrics"`
	Storage   StorageConfig   `json:"storage"`
}

// NewConfig 返回默认配置
func NewConfig() *Config {
	return &Config{
		Node:      DefaultNodeConfig(),
		Routing:   DefaultRoutingConfig(),
		Transport: DefaultTransportConfig(),
		Bootstrap: DefaultBootstrapConfig(),
		Tasks:     DefaultTasksConfig(),
		Metrics:   DefaultMetricsConfig(),
		Storage:   DefaultStorageConfig(),
	}
}

// Validate 依次校验所有子配置
func (c *Config) Validate() error {
	validators := []interface{ Validate() error }{
		&c.Node, &c.Routing, &c.Transport, &c.Bootstrap, &c.Tasks, &c.Metrics, &c.Storage,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// FromJSON 在默认配置之上解析 JSON
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// ToJSON 序列化为缩进的 JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// CloneConfig 深拷贝配置
func CloneConfig(cfg *Config) *Config {
	if cfg == nil {
		return nil
	}
	clone := *cfg
	clone.Node.Resources = append([]string(nil), cfg.Node.Resources...)
	return &clone
}
