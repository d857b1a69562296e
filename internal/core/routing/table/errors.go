package table

import "errors"

// ErrCapacityExceeded 有上限的池已满
//
// 插入接口以 false 表示拒绝，此错误仅用于日志与上层包装。
var ErrCapacityExceeded = errors.New("routing table pool capacity exceeded")
