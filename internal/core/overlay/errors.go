package overlay

import "errors"

var (
	// ErrManagerStopped 管理器已停止
	ErrManagerStopped = errors.New("overlay manager stopped")

	// ErrNoBootstrap 未配置目录服务器
	ErrNoBootstrap = errors.New("bootstrap server not configured")
)
