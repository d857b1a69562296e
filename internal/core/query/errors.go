package query

import "errors"

var (
	// ErrEmptyQuery 查询字符串为空
	ErrEmptyQuery = errors.New("empty query")

	// ErrManagerClosed 查询管理器已关闭
	ErrManagerClosed = errors.New("query manager closed")
)
