package badger

import (
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

	"github.com/dep2p/go-filesharer/internal/core/storage/engine"
)

// WriteBatch BadgerDB 批量写入
//
// Set/Delete 的错误会在 Flush 时返回，这里只计数。
type WriteBatch struct {
	db     *Engine
	batch  *badger.WriteBatch
	count  atomic.Int32
	closed atomic.Bool
}

// Put 添加写入
func (b *WriteBatch) Put(key, value []byte) {
	if b.closed.Load() || len(key) == 0 {
		return
	}
	_ = b.batch.Set(key, value)
	b.count.Add(1)
}

// Delete 添加删除
func (b *WriteBatch) Delete(key []byte) {
	if b.closed.Load() || len(key) == 0 {
		return
	}
	_ = b.batch.Delete(key)
	b.count.Add(1)
}

// Write 提交，之后批量不可再用
func (b *WriteBatch) Write() error {
	if !b.closed.CompareAndSwap(false, true) {
		return engine.ErrBatchClosed
	}
	if b.db.closed.Load() {
		b.batch.Cancel()
		return engine.ErrClosed
	}
	return convertError(b.batch.Flush())
}

// Size 已添加的操作数
func (b *WriteBatch) Size() int {
	return int(b.count.Load())
}
