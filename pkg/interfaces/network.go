package interfaces

import (
	"context"

	"github.com/dep2p/go-filesharer/pkg/protocol"
	"github.com/dep2p/go-filesharer/pkg/types"
)

// ════════════════════════════════════════════════════════════════════════════
//                              NetworkHandler
// ════════════════════════════════════════════════════════════════════════════

// NetworkHandler 网络处理器
//
// 路由器只依赖此接口，不关心具体传输（TCP / UDP / 进程内）。
type NetworkHandler interface {
	// Name 返回处理器类型
	Name() types.NetworkHandlerType

	// Start 开始监听
	Start(ctx context.Context) error

	// Shutdown 停止监听并等待后台任务退出，返回后端口可立即重新绑定
	Shutdown() error

	// Restart 先 Shutdown 再 Start
	Restart(ctx context.Context) error

	// SendMessage 发送消息
	//
	// 发送失败时除返回错误外，还会回调 OnMessageSendFailed。
	// waitForReply 为 true 时在同一连接上等待一条回复并作为入站消息派发（仅请求/响应型传输支持）。
	SendMessage(ip string, port int, msg *protocol.Message, waitForReply bool) error

	// RegisterListener 注册监听器
	RegisterListener(l NetworkHandlerListener)

	// UnregisterListener 注销监听器
	UnregisterListener(l NetworkHandlerListener)
}

// NetworkHandlerListener 网络事件监听器
type NetworkHandlerListener interface {
	// OnMessageReceived 收到消息，fromIP/fromPort 是对端的监听地址
	OnMessageReceived(fromIP string, fromPort int, msg *protocol.Message)

	// OnMessageSendFailed 消息发送失败
	OnMessageSendFailed(toIP string, toPort int, msg *protocol.Message)
}

// ════════════════════════════════════════════════════════════════════════════
//                              RouterListener
// ════════════════════════════════════════════════════════════════════════════

// RouterListener 路由器监听器
//
// 路由器对非搜索类消息并发派发给所有监听器，顺序不保证。
type RouterListener interface {
	OnMessageReceived(from *types.Node, msg *protocol.Message)
}
