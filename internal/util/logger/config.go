package logger

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

// 环境变量
const (
	// EnvLevel 级别配置，格式: 子系统=级别,...,默认级别
	EnvLevel = "FILESHARER_LOG_LEVEL"
	// EnvFormat text 或 json
	EnvFormat = "FILESHARER_LOG_FORMAT"
	// EnvAddSource 是否输出源码位置
	EnvAddSource = "FILESHARER_LOG_ADD_SOURCE"
)

// Config 日志配置
type Config struct {
	DefaultLevel    slog.Level
	SubsystemLevels map[string]slog.Level
	JSON            bool
	AddSource       bool
}

// LevelForSubsystem 返回子系统的级别，未单独配置时使用默认级别
func (c *Config) LevelForSubsystem(subsystem string) slog.Level {
	if level, ok := c.SubsystemLevels[subsystem]; ok {
		return level
	}
	return c.DefaultLevel
}

var (
	envConfig     *Config
	envConfigOnce sync.Once
)

// ConfigFromEnv 解析环境变量，结果缓存
func ConfigFromEnv() *Config {
	envConfigOnce.Do(func() {
		envConfig = parseEnv(os.Getenv)
	})
	return envConfig
}

func parseEnv(getenv func(string) string) *Config {
	cfg := &Config{
		DefaultLevel:    slog.LevelInfo,
		SubsystemLevels: make(map[string]slog.Level),
	}

	for _, part := range strings.Split(getenv(EnvLevel), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, levelName, scoped := strings.Cut(part, "=")
		if !scoped {
			if level, ok := parseLevel(part); ok {
				cfg.DefaultLevel = level
			}
			continue
		}
		if level, ok := parseLevel(strings.TrimSpace(levelName)); ok {
			cfg.SubsystemLevels[strings.TrimSpace(name)] = level
		}
	}

	cfg.JSON = strings.EqualFold(getenv(EnvFormat), "json")

	switch getenv(EnvAddSource) {
	case "true", "1":
		cfg.AddSource = true
	}

	return cfg
}

func parseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}
