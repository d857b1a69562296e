// Package filesharer 提供混合式非结构化 P2P 文件搜索网络的节点
//
// 网络由普通节点与超级节点组成：所有节点通过非结构化邻居相连，
// 超级节点额外维护彼此之间的连接，并聚合分配给它的普通节点的资源列表。
// 搜索按 TTL 受限的策略（泛洪、随机游走、超级节点泛洪）在覆盖网络中转发，
// 命中的节点直接回复发起者。
//
// # 快速开始
//
//	node, err := filesharer.New(
//	    filesharer.WithPort(7101),
//	    filesharer.WithBootstrap("127.0.0.1", 55555),
//	    filesharer.WithResources("Lord of the Rings", "Iron Man 2"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := node.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Stop()
//
//	_ = node.Register()
//	_ = node.Query("Iron Man")
//	// 稍后
//	for _, r := range node.QueryResults("Iron Man") {
//	    fmt.Println(r.Name, r.Nodes())
//	}
//
// # 组件
//
//	┌──────────────────────────────────────────────────────────┐
//	│  Node（本包）                                             │
//	├──────────────────────────────────────────────────────────┤
//	│  overlay.Manager   注册 / 加入 / 超级节点 / 心跳 / Gossip  │
//	│  query.Manager     发起搜索并汇总 SEROK                   │
//	├──────────────────────────────────────────────────────────┤
//	│  routing.Router    路由表 + 资源索引 + 路由策略            │
//	├──────────────────────────────────────────────────────────┤
//	│  transport         tcp / udp / memory                    │
//	└──────────────────────────────────────────────────────────┘
//
// 目录服务器见 internal/bootstrap 与 cmd/bootstrap-server。
package filesharer
