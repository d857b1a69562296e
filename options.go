package filesharer

import (
	"fmt"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-filesharer/config"
	"github.com/dep2p/go-filesharer/internal/core/transport"
	"github.com/dep2p/go-filesharer/pkg/types"
)

// Option 用户配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	// 基础配置，nil 时使用默认配置
	base *config.Config

	// 预设配置
	preset *Preset

	// 地址
	ip   string
	port int

	username  string
	resources []string

	// 路由
	strategy *types.RoutingStrategyType
	ttl      *int

	// 网络处理器
	handler types.NetworkHandlerType
	network *transport.Network

	// 目录服务器
	bootstrap struct {
		ip   string
		port int
	}

	// 周期任务
	heartbeat *bool
	gossip    *bool

	// 指标
	metricsAddr string

	// 测试时注入模拟时钟
	clock clock.Clock

	// 用户扩展 fx 选项
	userFxOptions []fx.Option
}

func newOptions() *options {
	return &options{}
}

// toConfig 在基础配置之上依次应用预设与各选项
func (o *options) toConfig() (*config.Config, error) {
	var cfg *config.Config
	if o.base != nil {
		cfg = config.CloneConfig(o.base)
	} else {
		cfg = config.NewConfig()
	}

	if o.preset != nil {
		o.preset.Apply(cfg)
	}

	if o.ip != "" {
		cfg.Node.IP = o.ip
	}
	if o.port != 0 {
		cfg.Node.Port = o.port
	}
	if o.username != "" {
		cfg.Node.Username = o.username
	}
	if len(o.resources) > 0 {
		cfg.Node.Resources = append(cfg.Node.Resources, o.resources...)
	}
	if o.strategy != nil {
		cfg.Routing.Strategy = string(*o.strategy)
	}
	if o.ttl != nil {
		cfg.Routing.TimeToLive = *o.ttl
	}
	if o.handler != "" {
		cfg.Transport.Handler = string(o.handler)
	}
	if o.network != nil {
		cfg.Transport.Handler = string(types.HandlerMemory)
	}
	if o.bootstrap.ip != "" {
		cfg.Bootstrap.IP = o.bootstrap.ip
		cfg.Bootstrap.Port = o.bootstrap.port
	}
	if o.heartbeat != nil {
		cfg.Tasks.HeartbeatEnabled = *o.heartbeat
	}
	if o.gossip != nil {
		cfg.Tasks.GossipEnabled = *o.gossip
	}
	if o.metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.ListenAddr = o.metricsAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              配置选项
// ════════════════════════════════════════════════════════════════════════════

// WithConfig 以完整配置为基础，之后的选项覆盖其中的字段
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return fmt.Errorf("config cannot be nil")
		}
		o.base = cfg
		return nil
	}
}

// WithPreset 使用预设配置
func WithPreset(p *Preset) Option {
	return func(o *options) error {
		if p == nil {
			return fmt.Errorf("preset cannot be nil")
		}
		o.preset = p
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              地址与资源
// ════════════════════════════════════════════════════════════════════════════

// WithAddress 设置对外地址与端口
func WithAddress(ip string, port int) Option {
	return func(o *options) error {
		if ip == "" {
			return fmt.Errorf("ip cannot be empty")
		}
		o.ip = ip
		return WithPort(port)(o)
	}
}

// WithPort 设置监听端口
func WithPort(port int) Option {
	return func(o *options) error {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("port %d out of range", port)
		}
		o.port = port
		return nil
	}
}

// WithUsername 设置在目录服务器注册的用户名
func WithUsername(name string) Option {
	return func(o *options) error {
		o.username = name
		return nil
	}
}

// WithResources 设置启动时拥有的资源
func WithResources(names ...string) Option {
	return func(o *options) error {
		for _, n := range names {
			if n == "" {
				return ErrEmptyResource
			}
		}
		o.resources = append(o.resources, names...)
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              路由
// ════════════════════════════════════════════════════════════════════════════

// WithRoutingStrategy 设置初始路由策略
func WithRoutingStrategy(kind types.RoutingStrategyType) Option {
	return func(o *options) error {
		if _, err := types.ParseRoutingStrategyType(string(kind)); err != nil {
			return err
		}
		o.strategy = &kind
		return nil
	}
}

// WithTimeToLive 设置搜索的最大跳数
func WithTimeToLive(ttl int) Option {
	return func(o *options) error {
		if ttl < 0 {
			return fmt.Errorf("time to live must not be negative")
		}
		o.ttl = &ttl
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              网络
// ════════════════════════════════════════════════════════════════════════════

// WithNetworkHandler 选择网络处理器: tcp / udp / memory
func WithNetworkHandler(kind types.NetworkHandlerType) Option {
	return func(o *options) error {
		if !kind.Valid() {
			return fmt.Errorf("unknown network handler %q", kind)
		}
		o.handler = kind
		return nil
	}
}

// WithMemoryNetwork 接入进程内网络，同时选择 memory 处理器
func WithMemoryNetwork(network *transport.Network) Option {
	return func(o *options) error {
		if network == nil {
			return fmt.Errorf("network cannot be nil")
		}
		o.network = network
		return nil
	}
}

// WithBootstrap 设置目录服务器地址
func WithBootstrap(ip string, port int) Option {
	return func(o *options) error {
		if ip == "" || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid bootstrap address %s:%d", ip, port)
		}
		o.bootstrap.ip = ip
		o.bootstrap.port = port
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              周期任务与观测
// ════════════════════════════════════════════════════════════════════════════

// WithHeartbeat 启动时是否开启心跳与 GC
func WithHeartbeat(enable bool) Option {
	return func(o *options) error {
		o.heartbeat = &enable
		return nil
	}
}

// WithGossip 启动时是否开启 Gossip
func WithGossip(enable bool) Option {
	return func(o *options) error {
		o.gossip = &enable
		return nil
	}
}

// WithMetrics 在 addr 上暴露 /metrics
func WithMetrics(addr string) Option {
	return func(o *options) error {
		if addr == "" {
			return fmt.Errorf("metrics address cannot be empty")
		}
		o.metricsAddr = addr
		return nil
	}
}

// WithClock 使用指定时钟驱动周期任务与超级节点搜索窗口
func WithClock(clk clock.Clock) Option {
	return func(o *options) error {
		o.clock = clk
		return nil
	}
}

// WithFxOption 追加自定义 fx 选项
func WithFxOption(opts ...fx.Option) Option {
	return func(o *options) error {
		o.userFxOptions = append(o.userFxOptions, opts...)
		return nil
	}
}
