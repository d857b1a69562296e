package bootstrap

import (
	"github.com/dep2p/go-filesharer/config"
)

// Config 目录服务器配置
type Config struct {
	// MaxNodes 注册表容量
	MaxNodes int

	// MaxReturned 每次 REGOK 返回的节点数
	MaxReturned int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return ConfigFromUnified(config.NewConfig())
}

// ConfigFromUnified 从统一配置创建目录服务器配置
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	return Config{
		MaxNodes:    cfg.Bootstrap.MaxNodes,
		MaxReturned: cfg.Bootstrap.MaxReturned,
	}
}
