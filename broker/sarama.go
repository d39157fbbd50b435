package broker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/Tsukikage7/kafkalog/logger"
)

// saramaClient 基于 sarama AsyncProducer 的 Kafka 客户端.
//
// 连接在后台 goroutine 中按重试策略建立，单条消息的结果通过
// Successes/Errors 通道回到对应信封的 completion.
type saramaClient struct {
	brokers []string
	config  *sarama.Config
	retry   RetryConfig
	logger  logger.Logger

	// newProducer 创建生产者，测试时替换为 mocks.
	newProducer func([]string, *sarama.Config) (sarama.AsyncProducer, error)

	mu       sync.RWMutex
	producer sarama.AsyncProducer
	closed   bool

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	sending sync.WaitGroup
}

func newSaramaClient(cfg *Config, log logger.Logger) (*saramaClient, error) {
	config, err := newSaramaConfig(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &saramaClient{
		brokers:     cfg.Kafka.Brokers,
		config:      config,
		retry:       cfg.Retry,
		logger:      log,
		newProducer: sarama.NewAsyncProducer,
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// newSaramaConfig 将连接配置映射为 sarama 配置.
func newSaramaConfig(cfg *Config) (*sarama.Config, error) {
	config := sarama.NewConfig()
	config.ClientID = cfg.Kafka.ClientID
	config.Net.DialTimeout = cfg.Kafka.ConnectTimeout
	config.Net.ReadTimeout = cfg.Kafka.RequestTimeout
	config.Net.WriteTimeout = cfg.Kafka.RequestTimeout
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.Timeout = cfg.Producer.AckTimeout

	if cfg.Kafka.Version != "" {
		version, err := sarama.ParseKafkaVersion(cfg.Kafka.Version)
		if err != nil {
			return nil, &ConfigError{Field: "kafka.version", Message: err.Error()}
		}
		config.Version = version
	}

	switch cfg.Producer.Acks {
	case AcksNone:
		config.Producer.RequiredAcks = sarama.NoResponse
	case AcksAll:
		config.Producer.RequiredAcks = sarama.WaitForAll
	default:
		config.Producer.RequiredAcks = sarama.WaitForLocal
	}

	switch cfg.Producer.Partitioner {
	case PartitionerRandom:
		config.Producer.Partitioner = sarama.NewRandomPartitioner
	case PartitionerCyclic:
		config.Producer.Partitioner = sarama.NewRoundRobinPartitioner
	case PartitionerKeyed:
		config.Producer.Partitioner = sarama.NewHashPartitioner
	default:
		config.Producer.Partitioner = sarama.NewManualPartitioner
	}

	switch cfg.Producer.Compression {
	case CompressionGzip:
		config.Producer.Compression = sarama.CompressionGZIP
	case CompressionSnappy:
		config.Producer.Compression = sarama.CompressionSnappy
	case CompressionLz4:
		config.Producer.Compression = sarama.CompressionLZ4
	case CompressionZstd:
		config.Producer.Compression = sarama.CompressionZSTD
	default:
		config.Producer.Compression = sarama.CompressionNone
	}

	if err := config.Validate(); err != nil {
		return nil, &ConfigError{Field: "kafka", Message: err.Error()}
	}
	return config, nil
}

// Connect 在后台建立连接，重试耗尽后上报 Error.
func (c *saramaClient) Connect(hooks Hooks) {
	if hooks.Connecting != nil {
		hooks.Connecting()
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		producer, err := retry(c.ctx, c.retry, func() (sarama.AsyncProducer, error) {
			return c.newProducer(c.brokers, c.config)
		}, func(err error, next time.Duration) {
			c.logger.Warnf("[Broker] Kafka 连接失败，%v 后重试: %v", next, err)
		})
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			if hooks.Error != nil {
				hooks.Error(errors.Join(ErrConnect, err))
			}
			return
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = producer.Close()
			return
		}
		c.producer = producer
		c.mu.Unlock()

		c.wg.Add(2)
		go c.drainSuccesses(producer)
		go c.drainErrors(producer)

		c.logger.Debugf("[Broker] Kafka 生产者已就绪: brokers=%v", c.brokers)
		if hooks.Ready != nil {
			hooks.Ready()
		}
	}()
}

// Send 将信封中的每条消息写入生产者，全部确认后调用 done.
func (c *saramaClient) Send(ctx context.Context, env *Envelope, done func(error)) {
	if len(env.Messages) == 0 {
		done(nil)
		return
	}

	c.mu.RLock()
	producer, closed := c.producer, c.closed
	if !closed && producer != nil {
		c.sending.Add(1)
	}
	c.mu.RUnlock()

	if closed {
		done(ErrManagerClosed)
		return
	}
	if producer == nil {
		done(ErrNotConnected)
		return
	}
	defer c.sending.Done()

	comp := newCompletion(len(env.Messages), done)
	for _, msg := range env.Messages {
		pm := buildSaramaMessage(env, msg)
		pm.Metadata = comp

		select {
		case producer.Input() <- pm:
		case <-ctx.Done():
			comp.complete(errors.Join(ErrSend, ctx.Err()))
		case <-c.ctx.Done():
			comp.complete(errors.Join(ErrSend, ErrManagerClosed))
		}
	}
}

// buildSaramaMessage 构建 sarama 消息.
func buildSaramaMessage(env *Envelope, value []byte) *sarama.ProducerMessage {
	pm := &sarama.ProducerMessage{
		Topic:     env.Topic,
		Value:     sarama.ByteEncoder(value),
		Timestamp: time.UnixMilli(env.Timestamp),
	}
	for k, v := range env.Headers {
		pm.Headers = append(pm.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	return pm
}

func (c *saramaClient) drainSuccesses(p sarama.AsyncProducer) {
	defer c.wg.Done()
	for msg := range p.Successes() {
		if comp, ok := msg.Metadata.(*completion); ok {
			comp.complete(nil)
		}
	}
}

func (c *saramaClient) drainErrors(p sarama.AsyncProducer) {
	defer c.wg.Done()
	for perr := range p.Errors() {
		c.logger.Warnf("[Broker] Kafka 消息发送失败: topic=%s err=%v", perr.Msg.Topic, perr.Err)
		if comp, ok := perr.Msg.Metadata.(*completion); ok {
			comp.complete(errors.Join(ErrSend, perr.Err))
		}
	}
}

// Close 停止连接重试，刷新并关闭生产者.
func (c *saramaClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	producer := c.producer
	c.mu.Unlock()

	c.cancel()
	// 输入通道在 AsyncClose 后关闭，需等待进行中的 Send 退出.
	c.sending.Wait()
	if producer != nil {
		producer.AsyncClose()
	}
	c.wg.Wait()
	return nil
}
