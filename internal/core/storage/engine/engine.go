package engine

// ============================================================================
//                              Engine 接口
// ============================================================================

// Engine 键值存储引擎
//
// 目录服务器的注册表是唯一使用者，接口只保留它需要的操作。
type Engine interface {
	// Get 获取值，不存在时返回 ErrNotFound
	Get(key []byte) ([]byte, error)

	// Put 写入键值对
	Put(key, value []byte) error

	// Delete 删除键，键不存在不报错
	Delete(key []byte) error

	// Has 检查键是否存在
	Has(key []byte) (bool, error)

	// NewBatch 创建批量写入
	NewBatch() Batch

	// NewPrefixIterator 创建前缀迭代器，调用方负责 Close
	NewPrefixIterator(prefix []byte) Iterator

	// Start 启动后台任务（值日志 GC）
	Start() error

	// Close 关闭引擎，重复调用无副作用
	Close() error
}

// Batch 批量写入，Write 之前的操作不可见
type Batch interface {
	Put(key, value []byte)
	Delete(key []byte)
	Write() error
	Size() int
}

// Iterator 有序迭代器
//
//	for it.First(); it.Valid(); it.Next() { ... }
type Iterator interface {
	First() bool
	Next() bool
	Valid() bool
	Key() []byte
	Value() []byte
	Error() error
	Close()
}
