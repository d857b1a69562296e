package config

import (
	"fmt"
	"time"

	"github.com/dep2p/go-filesharer/pkg/types"
)

// TransportConfig 网络处理器配置
type TransportConfig struct {
	// Handler 网络处理器: tcp / udp / memory
	Handler string `json:"handler"`

	// DialTimeout TCP 建连超时
	DialTimeout Duration `json:"dial_timeout"`

	// ReadTimeout 读取一行消息的超时
	ReadTimeout Duration `json:"read_timeout"`

	// UDPMaxRetries UDP 未收到 ACK 时的最大重传次数
	UDPMaxRetries int `json:"udp_max_retries"`

	// UDPAckTimeout 每次发送等待 ACK 的时间
	UDPAckTimeout Duration `json:"udp_ack_timeout"`

	// UDPDuplicateCacheSize UDP 重复投递过滤缓存大小
	UDPDuplicateCacheSize int `json:"udp_duplicate_cache_size"`
}

// DefaultTransportConfig 返回默认的网络处理器配置
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		Handler:               string(types.HandlerTCP),
		DialTimeout:           Duration(5 * time.Second),
		ReadTimeout:           Duration(5 * time.Second),
		UDPMaxRetries:         3,
		UDPAckTimeout:         Duration(500 * time.Millisecond),
		UDPDuplicateCacheSize: 1024,
	}
}

// Validate 验证网络处理器配置
func (c *TransportConfig) Validate() error {
	if !types.NetworkHandlerType(c.Handler).Valid() {
		return fmt.Errorf("transport: unknown handler %q", c.Handler)
	}
	if c.DialTimeout <= 0 || c.ReadTimeout <= 0 {
		return fmt.Errorf("transport: timeouts must be positive")
	}
	if c.UDPMaxRetries < 0 {
		return fmt.Errorf("transport: udp_max_retries must not be negative")
	}
	if c.UDPAckTimeout <= 0 {
		return fmt.Errorf("transport: udp_ack_timeout must be positive")
	}
	if c.UDPDuplicateCacheSize <= 0 {
		return fmt.Errorf("transport: udp_duplicate_cache_size must be positive")
	}
	return nil
}
