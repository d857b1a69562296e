// Package transport 实现网络处理器
//
// 三种实现共享 interfaces.NetworkHandler 契约：
//   - TCPHandler: 每条消息一个连接，一行 DATA 封装，可选地在同一连接上等待一行回复
//   - UDPHandler: DATA 封装加 ACK/重传，LRU 过滤重复投递，无法解析的载荷回复 ERROR
//   - MemoryHandler: 进程内 Network 注册表，经过完整的编解码，异步投递
//
// 封装中携带发送方的监听地址，接收方据此得知对端身份，而不是连接的临时端口。
// 发送失败时除返回 ErrPeerUnreachable 外，还会回调 OnMessageSendFailed。
package transport
