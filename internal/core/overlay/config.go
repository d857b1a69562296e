package overlay

import (
	"time"

	"github.com/dep2p/go-filesharer/config"
	"github.com/dep2p/go-filesharer/pkg/interfaces"
)

// HandlerFactory 在给定端口上创建（尚未启动的）网络处理器
type HandlerFactory func(port int) (interfaces.NetworkHandler, error)

// Config 覆盖网络管理器配置
type Config struct {
	// Username 在目录服务器注册的用户名
	Username string

	// BootstrapIP / BootstrapPort 目录服务器地址
	BootstrapIP   string
	BootstrapPort int

	// JoinFanout 注册成功后最多加入的节点数
	JoinFanout int

	// MaxRegisterRetries 地址已被注册时换用下一个端口重新注册的次数上限
	MaxRegisterRetries int

	// NewHandler 换端口时创建新的网络处理器，为 nil 时不换端口
	NewHandler HandlerFactory

	// HeartbeatEnabled Start 时开启心跳与 GC
	HeartbeatEnabled  bool
	HeartbeatInterval time.Duration
	GCInterval        time.Duration

	// GossipEnabled Start 时开启 Gossip
	GossipEnabled  bool
	GossipInterval time.Duration

	// SuperPeerSearchWindow 搜索开始后等待超级节点回复的时间，到期仍未找到则自我提升
	SuperPeerSearchWindow time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return ConfigFromUnified(config.NewConfig())
}

// ConfigFromUnified 从统一配置创建覆盖网络配置
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	return Config{
		Username:              cfg.Node.Username,
		BootstrapIP:           cfg.Bootstrap.IP,
		BootstrapPort:         cfg.Bootstrap.Port,
		JoinFanout:            cfg.Bootstrap.JoinFanout,
		MaxRegisterRetries:    cfg.Bootstrap.MaxRegisterRetries,
		HeartbeatEnabled:      cfg.Tasks.HeartbeatEnabled,
		HeartbeatInterval:     cfg.Tasks.HeartbeatInterval.Duration(),
		GCInterval:            cfg.Tasks.GCInterval.Duration(),
		GossipEnabled:         cfg.Tasks.GossipEnabled,
		GossipInterval:        cfg.Tasks.GossipInterval.Duration(),
		SuperPeerSearchWindow: cfg.Tasks.SuperPeerSearchWindow.Duration(),
	}
}
