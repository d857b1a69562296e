// Package main 提供文件共享节点的命令行入口
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/multierr"

	filesharer "github.com/dep2p/go-filesharer"
	"github.com/dep2p/go-filesharer/config"
	"github.com/dep2p/go-filesharer/internal/util/logger"
	"github.com/dep2p/go-filesharer/pkg/types"
)

var log = logger.Logger("filesharer/cmd")

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
//
//	命令行参数：运行时覆盖（「这次运行」想怎么跑）
//	JSON 配置文件：持久化配置（「这个节点」的固定配置）
//
// ═══════════════════════════════════════════════════════════════════════════
var (
	ip            = flag.String("ip", "", "对外地址（默认: 127.0.0.1）")
	port          = flag.Int("port", 0, "监听端口（默认: 7100）")
	username      = flag.String("username", "", "注册用户名（默认自动生成）")
	configFile    = flag.String("config", "", "JSON 配置文件路径")
	preset        = flag.String("preset", filesharer.PresetNameDefault, "预设配置 (default/udp)")
	bootstrapAddr = flag.String("bootstrap", "", "目录服务器地址 ip:port")
	strategy      = flag.String("strategy", "", "路由策略 (flooding/random-walk/super-peer-flooding)")
	ttl           = flag.Int("ttl", -1, "搜索的最大跳数")
	resourcesFile = flag.String("resources", "", "资源列表文件，每行一个资源名")
	metricsAddr   = flag.String("metrics", "", "Prometheus 指标地址，例如 :9100")
	noRegister    = flag.Bool("no-register", false, "启动后不向目录服务器注册")
	interactive   = flag.Bool("interactive", true, "从标准输入读取命令")

	showVersion = flag.Bool("version", false, "显示版本信息")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if *showVersion {
		fmt.Println(filesharer.VersionInfo())
		return nil
	}

	opts, err := buildOptions()
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}

	node, err := filesharer.New(opts...)
	if err != nil {
		return fmt.Errorf("创建节点失败: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fmt.Printf("📦 %s\n", filesharer.VersionInfo())
	if err := node.Start(ctx); err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}
	printNodeInfo(node)

	if !*noRegister {
		if err := node.Register(); err != nil {
			log.Warn("注册失败", "err", err)
		}
	}

	if *interactive {
		go runCommands(ctx, cancel, node)
		fmt.Println("输入 help 查看命令，按 Ctrl+C 退出")
	} else {
		fmt.Println("节点已启动，按 Ctrl+C 退出")
	}
	<-ctx.Done()

	fmt.Println("\n正在关闭节点...")
	if err := node.Close(); err != nil {
		// 邻居或目录服务器不可达不影响退出
		for _, e := range multierr.Errors(err) {
			log.Warn("关闭时出错", "err", e)
		}
	}
	return nil
}

// buildOptions 构建选项
//
// 配置优先级（从高到低）：
//  1. 命令行参数
//  2. 配置文件
//  3. 预设默认值
func buildOptions() ([]filesharer.Option, error) {
	cfg := config.NewConfig()
	if *configFile != "" {
		loaded, err := loadConfigFile(*configFile)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败: %w", err)
		}
		cfg = loaded
	}

	opts := []filesharer.Option{filesharer.WithConfig(cfg)}

	if isFlagSet("preset") || *configFile == "" {
		p, err := filesharer.GetPreset(*preset)
		if err != nil {
			return nil, err
		}
		opts = append(opts, filesharer.WithPreset(p))
	}

	if *ip != "" {
		p := *port
		if p == 0 {
			p = cfg.Node.Port
		}
		opts = append(opts, filesharer.WithAddress(*ip, p))
	} else if *port != 0 {
		opts = append(opts, filesharer.WithPort(*port))
	}
	if *username != "" {
		opts = append(opts, filesharer.WithUsername(*username))
	}

	if *bootstrapAddr != "" {
		bs, err := types.ParseNode(*bootstrapAddr)
		if err != nil {
			return nil, fmt.Errorf("目录服务器地址无效: %w", err)
		}
		opts = append(opts, filesharer.WithBootstrap(bs.IP, bs.Port))
	}

	if *strategy != "" {
		kind, err := types.ParseRoutingStrategyType(*strategy)
		if err != nil {
			return nil, err
		}
		opts = append(opts, filesharer.WithRoutingStrategy(kind))
	}
	if *ttl >= 0 {
		opts = append(opts, filesharer.WithTimeToLive(*ttl))
	}

	if *resourcesFile != "" {
		names, err := loadResourcesFile(*resourcesFile)
		if err != nil {
			return nil, fmt.Errorf("加载资源文件失败: %w", err)
		}
		opts = append(opts, filesharer.WithResources(names...))
	}

	if *metricsAddr != "" {
		opts = append(opts, filesharer.WithMetrics(*metricsAddr))
	}
	return opts, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 交互命令
// ═══════════════════════════════════════════════════════════════════════════

var errQuit = errors.New("quit")

func runCommands(ctx context.Context, cancel context.CancelFunc, node *filesharer.Node) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if err := execute(node, scanner.Text()); err != nil {
			if errors.Is(err, errQuit) {
				cancel()
				return
			}
			fmt.Printf("错误: %v\n", err)
		}
	}
}

// execute 执行一条命令
func execute(node *filesharer.Node, line string) error {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "":
		return nil
	case "help":
		printCommands()
	case "search":
		return node.Query(arg)
	case "results":
		queries := node.RunningQueries()
		if arg != "" {
			queries = []string{arg}
		}
		for _, q := range queries {
			fmt.Printf("%q:\n", q)
			for _, r := range node.QueryResults(q) {
				fmt.Printf("  %s @ %v\n", r.Name, r.Nodes())
			}
		}
	case "clear":
		node.ClearQueryResults()
	case "add":
		return node.AddResource(arg)
	case "remove":
		if !node.RemoveResource(arg) {
			return fmt.Errorf("资源不存在: %s", arg)
		}
	case "resources":
		for _, name := range node.Resources() {
			fmt.Println("  " + name)
		}
	case "peers":
		fmt.Printf("角色: %s\n", node.Role())
		for _, n := range node.Router().RoutingTable().GetAll() {
			fmt.Printf("  %s\n", n)
		}
	case "strategy":
		kind, err := types.ParseRoutingStrategyType(arg)
		if err != nil {
			return err
		}
		return node.ChangeRoutingStrategy(kind)
	case "promote":
		_, err := node.PromoteToSuperPeer()
		return err
	case "demote":
		_, err := node.DemoteToOrdinaryPeer()
		return err
	case "quit", "exit":
		return errQuit
	default:
		return fmt.Errorf("未知命令: %s", cmd)
	}
	return nil
}

func printCommands() {
	fmt.Println("命令:")
	fmt.Println("  search <名称>     发起搜索")
	fmt.Println("  results [名称]    查看搜索结果")
	fmt.Println("  clear             清除所有搜索")
	fmt.Println("  add <名称>        添加资源")
	fmt.Println("  remove <名称>     移除资源")
	fmt.Println("  resources         列出本节点资源")
	fmt.Println("  peers             列出路由表")
	fmt.Println("  strategy <策略>   切换路由策略")
	fmt.Println("  promote / demote  切换角色")
	fmt.Println("  quit              退出")
}

// printNodeInfo 打印节点信息
func printNodeInfo(node *filesharer.Node) {
	cfg := node.Config()
	fmt.Println("═══════════════════════════════════════════════")
	fmt.Printf("  地址:       %s\n", node.Address())
	fmt.Printf("  用户名:     %s\n", node.Username())
	fmt.Printf("  传输:       %s\n", node.NetworkHandler().Name())
	fmt.Printf("  路由策略:   %s (TTL %d)\n", node.RoutingStrategy(), node.TimeToLive())
	fmt.Printf("  目录服务器: %s\n", cfg.Bootstrap.Address())
	fmt.Printf("  资源数:     %d\n", len(node.Resources()))
	if s := node.MetricsServer(); s != nil {
		fmt.Printf("  指标:       http://%s/metrics\n", s.Addr())
	}
	fmt.Println("═══════════════════════════════════════════════")
}

// isFlagSet 检查参数是否被显式设置
func isFlagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
