package filesharer

import (
	"fmt"

	"github.com/dep2p/go-filesharer/config"
	"github.com/dep2p/go-filesharer/pkg/types"
)

// ════════════════════════════════════════════════════════════════════════════
//                              预设配置常量
// ════════════════════════════════════════════════════════════════════════════

// 预设名称常量
const (
	// PresetNameDefault 默认预设名称
	PresetNameDefault = "default"

	// PresetNameSimulation 进程内仿真预设名称
	PresetNameSimulation = "simulation"

	// PresetNameUDP UDP 部署预设名称
	PresetNameUDP = "udp"
)

// Preset 在统一配置上应用的一组修改
type Preset struct {
	Name        string
	Description string
	apply       func(cfg *config.Config)
}

// Apply 把预设应用到 cfg
func (p *Preset) Apply(cfg *config.Config) {
	if p.apply != nil {
		p.apply(cfg)
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              预设定义
// ════════════════════════════════════════════════════════════════════════════

// PresetDefault 默认预设：TCP、超级节点泛洪、开启心跳与 Gossip
var PresetDefault = &Preset{
	Name:        PresetNameDefault,
	Description: "TCP 传输，开启心跳与 Gossip",
	apply:       func(*config.Config) {},
}

// PresetSimulation 进程内仿真预设
//
// 适用场景：测试、演示拓扑
// 特点：
//   - memory 网络处理器
//   - 关闭心跳与 Gossip，拓扑由调用方手工搭建
//   - 注册表只在内存中保存
var PresetSimulation = &Preset{
	Name:        PresetNameSimulation,
	Description: "进程内网络，关闭周期任务",
	apply: func(cfg *config.Config) {
		cfg.Transport.Handler = string(types.HandlerMemory)
		cfg.Tasks.HeartbeatEnabled = false
		cfg.Tasks.GossipEnabled = false
		cfg.Storage.InMemory = true
	},
}

// PresetUDP UDP 部署预设：确认重传的 UDP 处理器
var PresetUDP = &Preset{
	Name:        PresetNameUDP,
	Description: "UDP 传输，带确认与重传",
	apply: func(cfg *config.Config) {
		cfg.Transport.Handler = string(types.HandlerUDP)
	},
}

// ════════════════════════════════════════════════════════════════════════════
//                              预设获取
// ════════════════════════════════════════════════════════════════════════════

// GetPreset 按名称获取预设
func GetPreset(name string) (*Preset, error) {
	switch name {
	case PresetNameDefault, "":
		return PresetDefault, nil
	case PresetNameSimulation:
		return PresetSimulation, nil
	case PresetNameUDP:
		return PresetUDP, nil
	}
	return nil, fmt.Errorf("unknown preset %q", name)
}

// ListPresets 返回所有预设名称
func ListPresets() []string {
	return []string{PresetNameDefault, PresetNameSimulation, PresetNameUDP}
}
