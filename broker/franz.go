package broker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/Tsukikage7/kafkalog/logger"
)

// kgoClient franz-go 客户端中用到的方法，测试时可替换为 mock.
type kgoClient interface {
	Ping(ctx context.Context) error
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Flush(ctx context.Context) error
	Close()
}

var _ kgoClient = (*kgo.Client)(nil)

// franzClient 基于 franz-go 的 Kafka 客户端.
//
// kgo.Client 创建时不建立连接，就绪以 Ping 成功为准.
type franzClient struct {
	opts         []kgo.Opt
	retry        RetryConfig
	flushTimeout time.Duration
	logger       logger.Logger

	// factory 创建底层客户端，测试时替换.
	factory func(opts ...kgo.Opt) (kgoClient, error)

	mu     sync.RWMutex
	client kgoClient
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newFranzClient(cfg *Config, log logger.Logger) *franzClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &franzClient{
		opts:         franzOptions(cfg),
		retry:        cfg.Retry,
		flushTimeout: cfg.Kafka.RequestTimeout,
		logger:       log,
		factory: func(opts ...kgo.Opt) (kgoClient, error) {
			return kgo.NewClient(opts...)
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// franzOptions 将连接配置映射为 kgo 选项.
func franzOptions(cfg *Config) []kgo.Opt {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Kafka.Brokers...),
		kgo.ClientID(cfg.Kafka.ClientID),
		kgo.DialTimeout(cfg.Kafka.ConnectTimeout),
		kgo.RequestTimeoutOverhead(cfg.Kafka.RequestTimeout),
		kgo.ConnIdleTimeout(cfg.Kafka.IdleTimeout),
		kgo.ProduceRequestTimeout(cfg.Producer.AckTimeout),
	}

	switch cfg.Producer.Acks {
	case AcksAll:
		opts = append(opts, kgo.RequiredAcks(kgo.AllISRAcks()))
	case AcksNone:
		opts = append(opts, kgo.RequiredAcks(kgo.NoAck()), kgo.DisableIdempotentWrite())
	default:
		opts = append(opts, kgo.RequiredAcks(kgo.LeaderAck()), kgo.DisableIdempotentWrite())
	}

	switch cfg.Producer.Partitioner {
	case PartitionerRandom:
		opts = append(opts, kgo.RecordPartitioner(kgo.StickyPartitioner()))
	case PartitionerCyclic:
		opts = append(opts, kgo.RecordPartitioner(kgo.RoundRobinPartitioner()))
	case PartitionerKeyed:
		opts = append(opts, kgo.RecordPartitioner(kgo.StickyKeyPartitioner(nil)))
	default:
		opts = append(opts, kgo.RecordPartitioner(kgo.ManualPartitioner()))
	}

	switch cfg.Producer.Compression {
	case CompressionGzip:
		opts = append(opts, kgo.ProducerBatchCompression(kgo.GzipCompression()))
	case CompressionSnappy:
		opts = append(opts, kgo.ProducerBatchCompression(kgo.SnappyCompression()))
	case CompressionLz4:
		opts = append(opts, kgo.ProducerBatchCompression(kgo.Lz4Compression()))
	case CompressionZstd:
		opts = append(opts, kgo.ProducerBatchCompression(kgo.ZstdCompression()))
	default:
		opts = append(opts, kgo.ProducerBatchCompression(kgo.NoCompression()))
	}

	return opts
}

// Connect 创建客户端并 Ping 到成功为止，重试耗尽后上报 Error.
func (c *franzClient) Connect(hooks Hooks) {
	if hooks.Connecting != nil {
		hooks.Connecting()
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		client, err := c.factory(c.opts...)
		if err != nil {
			if hooks.Error != nil {
				hooks.Error(errors.Join(ErrConnect, err))
			}
			return
		}

		_, err = retry(c.ctx, c.retry, func() (struct{}, error) {
			return struct{}{}, client.Ping(c.ctx)
		}, func(err error, next time.Duration) {
			c.logger.Warnf("[Broker] Kafka 连接失败，%v 后重试: %v", next, err)
		})
		if err != nil {
			client.Close()
			if c.ctx.Err() == nil && hooks.Error != nil {
				hooks.Error(errors.Join(ErrConnect, err))
			}
			return
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			client.Close()
			return
		}
		c.client = client
		c.mu.Unlock()

		c.logger.Debug("[Broker] franz-go 客户端已就绪")
		if hooks.Ready != nil {
			hooks.Ready()
		}
	}()
}

// Send 异步写入每条消息，全部 promise 返回后调用 done.
func (c *franzClient) Send(ctx context.Context, env *Envelope, done func(error)) {
	if len(env.Messages) == 0 {
		done(nil)
		return
	}

	c.mu.RLock()
	client, closed := c.client, c.closed
	c.mu.RUnlock()

	if closed {
		done(ErrManagerClosed)
		return
	}
	if client == nil {
		done(ErrNotConnected)
		return
	}

	comp := newCompletion(len(env.Messages), done)
	for _, msg := range env.Messages {
		client.Produce(ctx, buildRecord(env, msg), func(r *kgo.Record, err error) {
			if err != nil {
				c.logger.Warnf("[Broker] Kafka 消息发送失败: topic=%s err=%v", r.Topic, err)
				comp.complete(errors.Join(ErrSend, err))
				return
			}
			comp.complete(nil)
		})
	}
}

// buildRecord 构建 kgo 记录.
func buildRecord(env *Envelope, value []byte) *kgo.Record {
	r := &kgo.Record{
		Topic:     env.Topic,
		Value:     value,
		Timestamp: time.UnixMilli(env.Timestamp),
	}
	for k, v := range env.Headers {
		r.Headers = append(r.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}
	return r
}

// Close 停止连接重试，刷新缓冲区后关闭客户端.
func (c *franzClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	client := c.client
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	if client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.flushTimeout)
	defer cancel()
	err := client.Flush(ctx)
	client.Close()
	return err
}
