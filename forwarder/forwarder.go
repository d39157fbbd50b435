// Package forwarder 将结构化日志记录转发到消息中间件.
//
// 每条记录被写入时间戳、序列化为 JSON（容忍循环引用），封装成信封后交给
// broker.Manager 发送. 前置条件失败（空记录、序列化失败）同步回调错误；
// 发送结果默认只记录日志，调用方在记录被接受时即收到成功回调.
//
// 示例:
//
//	f, err := forwarder.New(&forwarder.Config{
//	    Topic: "app-logs",
//	    Broker: broker.Config{
//	        Kafka: broker.KafkaConfig{Brokers: []string{"localhost:9092"}},
//	    },
//	}, forwarder.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	defer f.Close(context.Background())
//
//	f.Submit(ctx, forwarder.Record{"level": "info", "msg": "hello"}, func(err error, ok bool) {
//	    if err != nil {
//	        log.Warnf("日志被拒绝: %v", err)
//	    }
//	})
package forwarder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Tsukikage7/kafkalog/broker"
	"github.com/Tsukikage7/kafkalog/logger"
	"github.com/Tsukikage7/kafkalog/metrics"
)

// Record 一条日志记录.
type Record map[string]any

// Callback 提交结果回调，恰好调用一次.
type Callback func(err error, ok bool)

// Forwarder 日志转发器.
type Forwarder struct {
	cfg        *Config
	manager    *broker.Manager
	serializer Serializer
	now        func() int64
	log        logger.Logger

	collector  *metrics.PrometheusCollector
	metrics    *forwarderMetrics
	tracer     *forwarderTracer
	brokerOpts []broker.Option

	mu        sync.RWMutex
	listeners []submitListener
	nextID    uint64
}

type submitListener struct {
	id uint64
	fn func(*broker.Envelope)
}

// New 创建转发器并开始连接.
//
// cfg 被复制，之后对其修改不影响转发器.
func New(cfg *Config, opts ...Option) (*Forwarder, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	c := *cfg

	f := &Forwarder{
		cfg:        &c,
		serializer: NewJSONSerializer(),
		now:        func() int64 { return time.Now().UnixMilli() },
		log:        logger.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}

	f.cfg.ApplyDefaults()
	if err := f.cfg.Validate(); err != nil {
		return nil, err
	}

	if f.collector == nil && f.cfg.Metrics != nil {
		collector, err := metrics.New(f.cfg.Metrics)
		if err != nil {
			return nil, err
		}
		f.collector = collector
	}
	f.metrics = newForwarderMetrics(f.collector)

	brokerOpts := append([]broker.Option{
		broker.WithLogger(f.log),
		broker.WithStateListener(f.metrics.recordState),
	}, f.brokerOpts...)

	manager, err := broker.New(&f.cfg.Broker, brokerOpts...)
	if err != nil {
		return nil, err
	}
	f.manager = manager

	f.log.Debugf("[Forwarder] 转发器已创建: topic=%s driver=%s delivery=%s",
		f.cfg.Topic, f.cfg.Broker.Driver, f.cfg.Delivery)
	return f, nil
}

// Submit 提交一条日志记录.
//
// 流程:
//  1. 记录为空时回调 ErrMissingPayload，不发送
//  2. 写入时间戳字段
//  3. 序列化，失败（包括 panic）时回调 ErrSerialization，不发送
//  4. 构建信封并通知 OnSubmitted 订阅者
//  5. 交给连接管理器发送，发送失败只记录日志
//  6. accepted 模式下立即回调成功；confirmed 模式下等待发送结果
func (f *Forwarder) Submit(ctx context.Context, rec Record, done Callback) {
	if done == nil {
		done = func(error, bool) {}
	}

	if len(rec) == 0 {
		f.metrics.recordRejected(reasonMissingPayload)
		done(ErrMissingPayload, false)
		return
	}

	stamp := f.now()
	rec[f.cfg.TimestampField] = stamp

	payload, err := f.serialize(rec)
	if err != nil {
		f.log.Warnf("[Forwarder] 日志序列化失败: %v", err)
		f.metrics.recordRejected(reasonSerialization)
		done(err, false)
		return
	}

	env := &broker.Envelope{
		Topic:     f.cfg.Topic,
		Messages:  [][]byte{payload},
		Timestamp: stamp,
	}

	finish := func(error) {}
	if f.tracer != nil {
		spanCtx, span := f.tracer.startProducerSpan(ctx, f.cfg.Topic)
		ctx = spanCtx
		env.Headers = f.tracer.injectHeaders(ctx)
		finish = func(err error) { f.tracer.finish(span, err) }
	}

	f.notifySubmitted(env)
	f.metrics.recordSubmitted(f.cfg.Topic)

	confirmed := f.cfg.Delivery == DeliveryConfirmed
	start := time.Now()
	f.manager.Dispatch(ctx, env, func(err error) {
		if err != nil {
			f.log.Warnf("[Forwarder] 日志发送失败: topic=%s err=%v", env.Topic, err)
		}
		f.metrics.recordOutcome(env.Topic, time.Since(start), err)
		finish(err)

		if confirmed {
			done(err, err == nil)
		}
	})
	f.metrics.recordDeferred(f.manager.Pending())

	if !confirmed {
		done(nil, true)
	}
}

// SubmitSync 提交日志并等待回调，ctx 结束时提前返回.
func (f *Forwarder) SubmitSync(ctx context.Context, rec Record) error {
	errCh := make(chan error, 1)
	f.Submit(ctx, rec, func(err error, _ bool) {
		errCh <- err
	})

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// serialize 调用序列化器，将错误和 panic 统一包装为 ErrSerialization.
func (f *Forwarder) serialize(rec Record) (payload []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			payload = nil
			err = fmt.Errorf("%w: panic: %v", ErrSerialization, r)
		}
	}()

	payload, err = f.serializer.Serialize(rec)
	if err != nil {
		return nil, errors.Join(ErrSerialization, err)
	}
	return payload, nil
}

// OnSubmitted 订阅信封提交通知.
//
// fn 在信封交给连接管理器之前同步调用，不应阻塞. 返回的 cancel 用于取消订阅.
func (f *Forwarder) OnSubmitted(fn func(*broker.Envelope)) (cancel func()) {
	if fn == nil {
		return func() {}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	f.listeners = append(f.listeners, submitListener{id: id, fn: fn})

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		for i, l := range f.listeners {
			if l.id == id {
				f.listeners = append(f.listeners[:i:i], f.listeners[i+1:]...)
				return
			}
		}
	}
}

func (f *Forwarder) notifySubmitted(env *broker.Envelope) {
	f.mu.RLock()
	listeners := f.listeners
	f.mu.RUnlock()

	for _, l := range listeners {
		l.fn(env)
	}
}

// Close 关闭转发器，延迟中的日志以 broker.ErrManagerClosed 结束.
func (f *Forwarder) Close(ctx context.Context) error {
	return f.manager.Shutdown(ctx)
}

// State 返回连接状态.
func (f *Forwarder) State() broker.State {
	return f.manager.State()
}

// Store 返回内存模式下的存储，非内存模式返回 nil.
func (f *Forwarder) Store() *broker.LocalStore {
	return f.cfg.Broker.LocalStore
}

// Collector 返回指标收集器，未启用指标时返回 nil.
func (f *Forwarder) Collector() *metrics.PrometheusCollector {
	return f.collector
}

// Topic 返回目标主题.
func (f *Forwarder) Topic() string {
	return f.cfg.Topic
}
