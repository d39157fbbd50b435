// Package broker 管理与消息中间件的连接生命周期.
//
// Manager 维护 Disconnected / Connecting / Ready 三种连接状态，
// Ready 时立即发送，否则将信封暂存到有界缓冲区，等待下一次就绪信号后按序补发.
// 具体的客户端（sarama、franz-go、RabbitMQ、内存存储）通过 Client 接口接入，
// 在 New 时根据配置选定一次，之后不再分支.
//
// 示例:
//
//	m, err := broker.New(&broker.Config{
//	    Kafka: broker.KafkaConfig{Brokers: []string{"localhost:9092"}},
//	}, broker.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	defer m.Shutdown(context.Background())
//
//	m.Dispatch(ctx, &broker.Envelope{
//	    Topic:    "app-logs",
//	    Messages: [][]byte{[]byte(`{"msg":"hello"}`)},
//	}, func(err error) {
//	    if err != nil {
//	        log.Warnf("发送失败: %v", err)
//	    }
//	})
package broker

import (
	"context"
	"sync"
)

// State 连接状态.
type State int32

const (
	// StateDisconnected 未连接：尚未开始、连接失败或已关闭.
	StateDisconnected State = iota
	// StateConnecting 正在建立连接.
	StateConnecting
	// StateReady 连接可用，发送不再延迟.
	StateReady
)

// String 返回状态名称.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Envelope 一次发送的消息信封.
//
// 每次发送新建，构建后不再修改；同一信封中的所有消息发往同一个 Topic.
type Envelope struct {
	// Topic 目标主题（RabbitMQ 下作为 routing key）.
	Topic string

	// Messages 已序列化的消息体.
	Messages [][]byte

	// Timestamp 毫秒时间戳.
	Timestamp int64

	// Headers 附加消息头，用于传递追踪上下文.
	Headers map[string]string
}

// Hooks 客户端向 Manager 上报连接事件的回调.
//
// 每个回调在客户端生命周期内都可能被触发多次.
type Hooks struct {
	// Connecting 开始（重新）建立连接.
	Connecting func()
	// Ready 连接可用.
	Ready func()
	// Disconnected 已建立的连接断开，客户端随后自行重连.
	Disconnected func()
	// Error 生产者级别错误，例如初始连接重试耗尽.
	Error func(error)
}

// Client 底层消息客户端.
type Client interface {
	// Connect 开始建立连接，立即返回；连接结果通过 hooks 异步上报.
	Connect(hooks Hooks)
	// Send 发送信封，done 在全部消息完成后恰好调用一次.
	Send(ctx context.Context, env *Envelope, done func(error))
	// Close 关闭客户端并释放资源.
	Close() error
}

// completion 汇总一个信封内多条消息的发送结果.
type completion struct {
	mu        sync.Mutex
	remaining int
	err       error
	done      func(error)
}

// newCompletion 创建结果汇总器，n 条消息全部完成后调用 done，携带第一个错误.
func newCompletion(n int, done func(error)) *completion {
	return &completion{remaining: n, done: done}
}

func (c *completion) complete(err error) {
	c.mu.Lock()
	if err != nil && c.err == nil {
		c.err = err
	}
	c.remaining--
	finished := c.remaining == 0
	first := c.err
	c.mu.Unlock()

	if finished {
		c.done(first)
	}
}
