// Package main 提供独立的目录服务器
//
// 目录服务器记录已注册的节点，并在节点注册时返回若干随机的已有节点，
// 新节点据此加入覆盖网络。
//
// 使用方法:
//
//	go run ./cmd/bootstrap-server -port 55555 -data-dir ./data
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	filesharer "github.com/dep2p/go-filesharer"
	"github.com/dep2p/go-filesharer/config"
	"github.com/dep2p/go-filesharer/internal/bootstrap"
	"github.com/dep2p/go-filesharer/internal/core/metrics"
	"github.com/dep2p/go-filesharer/internal/core/storage"
	"github.com/dep2p/go-filesharer/internal/core/transport"
	"github.com/dep2p/go-filesharer/pkg/types"
)

// statsInterval 统计报告间隔
const statsInterval = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Printf("❌ 错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ip := flag.String("ip", "127.0.0.1", "监听地址")
	port := flag.Int("port", config.DefaultBootstrapConfig().Port, "监听端口")
	handler := flag.String("handler", string(types.HandlerTCP), "网络处理器 (tcp/udp)")
	dataDir := flag.String("data-dir", "./data", "注册表数据目录")
	inMemory := flag.Bool("in-memory", false, "注册表只保存在内存中")
	maxNodes := flag.Int("max-nodes", config.DefaultBootstrapConfig().MaxNodes, "最大注册节点数")
	metricsAddr := flag.String("metrics", "", "Prometheus 指标地址，例如 :9101")
	showVersion := flag.Bool("version", false, "显示版本信息")
	flag.Parse()

	if *showVersion {
		fmt.Println(filesharer.VersionInfo())
		return nil
	}

	cfg := config.NewConfig()
	cfg.Node.IP = *ip
	cfg.Node.Port = *port
	cfg.Transport.Handler = *handler
	cfg.Storage.DataDir = *dataDir
	cfg.Storage.InMemory = *inMemory
	cfg.Bootstrap.MaxNodes = *maxNodes
	if *metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.ListenAddr = *metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}

	fmt.Println("╔══════════════════════════════════════════════════════╗")
	fmt.Println("║            File Sharer Bootstrap Server              ║")
	fmt.Println("╚══════════════════════════════════════════════════════╝")
	fmt.Println()

	var server *bootstrap.Server
	app := fx.New(buildModules(cfg, &server)...)
	if err := app.Err(); err != nil {
		return fmt.Errorf("构建目录服务器失败: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	startCtx, startCancel := context.WithTimeout(ctx, 30*time.Second)
	defer startCancel()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("启动目录服务器失败: %w", err)
	}

	printServerInfo(cfg)
	go reportStats(ctx, server)

	<-ctx.Done()

	fmt.Println("\n正在关闭目录服务器...")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	return app.Stop(stopCtx)
}

// buildModules 组装存储、网络处理器与目录服务器模块
func buildModules(cfg *config.Config, server **bootstrap.Server) []fx.Option {
	modules := []fx.Option{
		fx.Supply(cfg),
		storage.Module(),
		transport.Module(),
		bootstrap.Module(),
		fx.Populate(server),
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
	}
	if cfg.Metrics.Enabled {
		modules = append(modules, metrics.Module())
	}
	return modules
}

// printServerInfo 打印服务器信息
func printServerInfo(cfg *config.Config) {
	fmt.Printf("  监听地址:   %s (%s)\n", types.NodeKey(cfg.Node.IP, cfg.Node.Port), cfg.Transport.Handler)
	if cfg.Storage.InMemory {
		fmt.Println("  注册表:     内存")
	} else {
		fmt.Printf("  注册表:     %s\n", cfg.Storage.DBPath())
	}
	fmt.Printf("  容量:       %d\n", cfg.Bootstrap.MaxNodes)
	if cfg.Metrics.Enabled {
		fmt.Printf("  指标:       http://%s/metrics\n", cfg.Metrics.ListenAddr)
	}
	fmt.Println()
	fmt.Println("目录服务器已启动，按 Ctrl+C 停止")
}

// reportStats 定期报告已注册节点数
func reportStats(ctx context.Context, server *bootstrap.Server) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := server.Registry().Len()
			if err != nil {
				fmt.Printf("[Stats] 读取注册表失败: %v\n", err)
				continue
			}
			fmt.Printf("[Stats] 已注册节点: %d\n", n)
		}
	}
}
