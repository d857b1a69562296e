package config

import (
	"fmt"
	"net"
)

// BootstrapConfig 目录服务器配置
//
// 节点用 IP/Port 定位目录服务器；cmd/bootstrap-server 用同一组字段监听，
// 并使用 MaxNodes 与 MaxReturned 控制注册表。
type BootstrapConfig struct {
	// IP 目录服务器地址
	IP string `json:"ip"`

	// Port 目录服务器端口
	// 默认值: 55555
	Port int `json:"port"`

	// JoinFanout 注册成功后最多加入的节点数
	JoinFanout int `json:"join_fanout"`

	// MaxRegisterRetries 地址已被注册时换用下一个端口重新注册的次数上限
	MaxRegisterRetries int `json:"max_register_retries"`

	// MaxNodes 注册表容量（服务端）
	MaxNodes int `json:"max_nodes"`

	// MaxReturned 每次 REGOK 返回的节点数（服务端）
	MaxReturned int `json:"max_returned"`
}

// DefaultBootstrapConfig 返回默认的目录服务器配置
func DefaultBootstrapConfig() BootstrapConfig {
	return BootstrapConfig{
		IP:                 "127.0.0.1",
		Port:               55555,
		JoinFanout:         2,
		MaxRegisterRetries: 10,
		MaxNodes:           1000,
		MaxReturned:        2,
	}
}

// Validate 验证目录服务器配置
func (c *BootstrapConfig) Validate() error {
	if net.ParseIP(c.IP) == nil {
		return fmt.Errorf("bootstrap: invalid ip %q", c.IP)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("bootstrap: port %d out of range", c.Port)
	}
	if c.JoinFanout <= 0 {
		return fmt.Errorf("bootstrap: join_fanout must be positive")
	}
	if c.MaxRegisterRetries < 0 {
		return fmt.Errorf("bootstrap: max_register_retries must not be negative")
	}
	if c.MaxNodes <= 0 || c.MaxReturned <= 0 {
		return fmt.Errorf("bootstrap: max_nodes and max_returned must be positive")
	}
	return nil
}

// Address 目录服务器的 ip:port
func (c *BootstrapConfig) Address() string {
	return net.JoinHostPort(c.IP, fmt.Sprint(c.Port))
}
