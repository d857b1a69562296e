package transport

import (
	"time"

	"github.com/dep2p/go-filesharer/config"
)

// Config 网络处理器配置
type Config struct {
	// IP/Port 监听地址，也是封装中的源地址；Port 为 0 时由系统分配
	IP   string
	Port int

	DialTimeout time.Duration
	ReadTimeout time.Duration

	// MaxRetries UDP 重传次数
	MaxRetries int
	// AckTimeout UDP 每次等待 ACK 的时间
	AckTimeout time.Duration
	// DuplicateCacheSize UDP 重复投递过滤缓存大小
	DuplicateCacheSize int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return ConfigFromUnified(config.NewConfig())
}

// ConfigFromUnified 从统一配置创建网络处理器配置
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		return DefaultConfig()
	}
	return Config{
		IP:                 cfg.Node.IP,
		Port:               cfg.Node.Port,
		DialTimeout:        cfg.Transport.DialTimeout.Duration(),
		ReadTimeout:        cfg.Transport.ReadTimeout.Duration(),
		MaxRetries:         cfg.Transport.UDPMaxRetries,
		AckTimeout:         cfg.Transport.UDPAckTimeout.Duration(),
		DuplicateCacheSize: cfg.Transport.UDPDuplicateCacheSize,
	}
}
