// Package logger 提供 filesharer 的统一日志系统
//
// 基于标准库 log/slog，每个子系统持有自己的 Logger，级别可以单独配置。
//
// 使用示例:
//
//	package routing
//
//	import "github.com/dep2p/go-filesharer/internal/util/logger"
//
//	var log = logger.Logger("routing")
//
//	func foo() {
//	    log.Debug("转发查询", "target", node.String(), "hops", hops)
//	}
//
// 环境变量配置:
//
//	# routing 子系统 debug，其余 info
//	FILESHARER_LOG_LEVEL=routing=debug,info
//
//	# JSON 输出
//	FILESHARER_LOG_FORMAT=json
package logger

import (
	"io"
	"log/slog"
	"sync"
)

var (
	// loggers 子系统 -> *slog.Logger
	loggers sync.Map

	// handlers 子系统 -> *subsystemHandler，用于运行时调整级别
	handlers sync.Map
)

// Logger 获取指定子系统的 Logger
//
// 同一子系统多次调用返回同一实例。
func Logger(subsystem string) *slog.Logger {
	if l, ok := loggers.Load(subsystem); ok {
		return l.(*slog.Logger)
	}

	cfg := ConfigFromEnv()
	h := newHandler(subsystem, cfg.LevelForSubsystem(subsystem), cfg)

	actual, loaded := loggers.LoadOrStore(subsystem, slog.New(h))
	if !loaded {
		handlers.Store(subsystem, h)
	}
	return actual.(*slog.Logger)
}

// SetLevel 运行时调整子系统日志级别
func SetLevel(subsystem string, level slog.Level) {
	if h, ok := handlers.Load(subsystem); ok {
		h.(*subsystemHandler).SetLevel(level)
	}
}

// SetGlobalLevel 调整所有已创建子系统的日志级别
func SetGlobalLevel(level slog.Level) {
	handlers.Range(func(_, value any) bool {
		value.(*subsystemHandler).SetLevel(level)
		return true
	})
}

// SetOutput 设置全局日志输出
//
// 已创建的 Logger 同样生效。
func SetOutput(w io.Writer) {
	outputMu.Lock()
	output = w
	outputMu.Unlock()
}

// Discard 返回丢弃所有日志的 Logger，测试使用
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}
