package routing

import "errors"

var (
	// ErrRouterClosed 路由器已关闭
	ErrRouterClosed = errors.New("router closed")

	// ErrNotRoutable 只有 SER 与 SERSUPERPEER 可以路由
	ErrNotRoutable = errors.New("message type is not routable")

	// ErrNoNetworkHandler 未设置网络处理器
	ErrNoNetworkHandler = errors.New("no network handler")
)
