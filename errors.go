package filesharer

import (
	"errors"

	"github.com/dep2p/go-filesharer/internal/core/query"
)

// 公共错误定义
var (
	// ────────────────────────────────────────────────────────────────────────
	// 节点生命周期错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrNotStarted 节点未启动
	ErrNotStarted = errors.New("node not started")

	// ErrAlreadyStarted 节点已启动
	ErrAlreadyStarted = errors.New("node already started")

	// ErrNodeClosed 节点已关闭
	ErrNodeClosed = errors.New("node closed")

	// ────────────────────────────────────────────────────────────────────────
	// 搜索相关错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrEmptyQuery 查询字符串为空
	ErrEmptyQuery = query.ErrEmptyQuery

	// ErrEmptyResource 资源名为空
	ErrEmptyResource = errors.New("empty resource name")
)
