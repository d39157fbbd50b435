package forwarder

import "errors"

// 预定义错误.
var (
	// ErrNilConfig 配置为空.
	ErrNilConfig = errors.New("forwarder: 配置为空")

	// ErrMissingPayload 日志记录为空，不会发送.
	ErrMissingPayload = errors.New("forwarder: 缺少日志内容")

	// ErrSerialization 序列化失败，不会发送.
	ErrSerialization = errors.New("forwarder: 序列化失败")
)
