package broker

import "errors"

// 预定义错误.
//
// 所有错误均可通过 errors.Is 进行判断:
//
//	if errors.Is(err, broker.ErrBufferFull) {
//	    // 缓冲区已满，消息被丢弃
//	}
var (
	// ErrNilConfig 配置为空.
	ErrNilConfig = errors.New("broker: 配置为空")

	// ErrNilEnvelope 信封为空.
	ErrNilEnvelope = errors.New("broker: 信封为空")

	// ErrUnsupportedDriver 不支持的客户端类型.
	ErrUnsupportedDriver = errors.New("broker: 不支持的客户端类型")

	// ErrNoBrokers 未配置服务器地址.
	ErrNoBrokers = errors.New("broker: 未配置服务器地址")

	// ErrConnect 建立连接失败.
	ErrConnect = errors.New("broker: 建立连接失败")

	// ErrProducer 生产者级别错误.
	ErrProducer = errors.New("broker: 生产者错误")

	// ErrSend 消息发送失败.
	ErrSend = errors.New("broker: 消息发送失败")

	// ErrNotConnected 客户端尚未连接.
	ErrNotConnected = errors.New("broker: 客户端尚未连接")

	// ErrBufferFull 延迟缓冲区已满，消息被丢弃.
	ErrBufferFull = errors.New("broker: 延迟缓冲区已满")

	// ErrManagerClosed 连接管理器已关闭.
	ErrManagerClosed = errors.New("broker: 连接管理器已关闭")
)
