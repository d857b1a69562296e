package config

import (
	"fmt"
	"net"
)

// NodeConfig 本节点配置
type NodeConfig struct {
	// IP 对外公布的地址，也是监听地址
	// 默认值: "127.0.0.1"
	IP string `json:"ip"`

	// Port 监听端口
	// 默认值: 7100
	Port int `json:"port"`

	// Username 在目录服务器注册时使用的用户名，为空时自动生成
	Username string `json:"username,omitempty"`

	// Resources 启动时拥有的资源名
	Resources []string `json:"resources,omitempty"`
}

// DefaultNodeConfig 返回默认的节点配置
func DefaultNodeConfig() NodeConfig {
	return NodeConfig{
		IP:   "127.0.0.1",
		Port: 7100,
	}
}

// Validate 验证节点配置
func (c *NodeConfig) Validate() error {
	if net.ParseIP(c.IP) == nil {
		return fmt.Errorf("node: invalid ip %q", c.IP)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("node: port %d out of range", c.Port)
	}
	return nil
}
