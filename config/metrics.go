package config

import "fmt"

// MetricsConfig Prometheus 导出配置
type MetricsConfig struct {
	// Enabled 是否暴露 /metrics
	Enabled bool `json:"enabled"`

	// ListenAddr HTTP 监听地址
	// 默认值: ":9100"
	ListenAddr string `json:"listen_addr"`
}

// DefaultMetricsConfig 返回默认的指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:    false,
		ListenAddr: ":9100",
	}
}

// Validate 验证指标配置
func (c *MetricsConfig) Validate() error {
	if c.Enabled && c.ListenAddr == "" {
		return fmt.Errorf("metrics: listen_addr cannot be empty when enabled")
	}
	return nil
}
