// Package storage 提供目录服务器注册表的持久化存储
//
// 结构：
//
//	storage/
//	├── engine/         引擎接口与配置
//	│   └── badger/     BadgerDB 实现（磁盘或内存模式）
//	└── kv/             按前缀隔离的键空间
//
// 使用示例：
//
//	eng, err := storage.NewEngine(storage.Config{InMemory: true})
//	if err != nil {
//	    return err
//	}
//	defer eng.Close()
//	registry := storage.NewKVStore(eng, []byte("reg/"))
package storage
