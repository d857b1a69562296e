// Package interfaces 定义 filesharer 核心依赖的协作方接口
//
//   - network.go  - NetworkHandler / NetworkHandlerListener（传输协作方）
//   - network.go  - RouterListener（路由器之上的监听者：覆盖网络管理器、查询管理器）
//
// 核心只依赖这些契约，不依赖具体传输实现。
package interfaces
