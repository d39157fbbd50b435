package forwarder

import (
	"github.com/Tsukikage7/kafkalog/broker"
	"github.com/Tsukikage7/kafkalog/logger"
	"github.com/Tsukikage7/kafkalog/metrics"
)

// Option 转发器配置选项.
type Option func(*Forwarder)

// WithTimestamp 设置时间戳来源，默认为当前毫秒时间戳.
func WithTimestamp(now func() int64) Option {
	return func(f *Forwarder) {
		if now != nil {
			f.now = now
		}
	}
}

// WithSerializer 替换默认的 JSON 序列化器.
func WithSerializer(s Serializer) Option {
	return func(f *Forwarder) {
		if s != nil {
			f.serializer = s
		}
	}
}

// WithLocalStore 启用内存模式，日志写入 store 而不访问网络.
func WithLocalStore(store *broker.LocalStore) Option {
	return func(f *Forwarder) {
		f.cfg.Broker.LocalStore = store
	}
}

// WithProducerError 设置生产者错误处理函数.
//
// 未设置时生产者错误是致命的.
func WithProducerError(fn func(error)) Option {
	return func(f *Forwarder) {
		f.cfg.Broker.OnProducerError = fn
	}
}

// WithLogger 设置日志记录器，同时用于连接管理器.
func WithLogger(log logger.Logger) Option {
	return func(f *Forwarder) {
		if log != nil {
			f.log = log
		}
	}
}

// WithMetrics 启用指标监控.
//
// 示例:
//
//	collector := metrics.MustNew(&metrics.Config{Namespace: "myapp"})
//	f, _ := forwarder.New(cfg, forwarder.WithMetrics(collector))
func WithMetrics(collector *metrics.PrometheusCollector) Option {
	return func(f *Forwarder) {
		f.collector = collector
	}
}

// WithTracing 启用链路追踪.
//
// 使用全局 TracerProvider，追踪上下文通过信封消息头传递.
func WithTracing(serviceName string) Option {
	return func(f *Forwarder) {
		f.tracer = newForwarderTracer(serviceName)
	}
}

// WithBrokerOptions 透传连接管理器选项.
func WithBrokerOptions(opts ...broker.Option) Option {
	return func(f *Forwarder) {
		f.brokerOpts = append(f.brokerOpts, opts...)
	}
}
