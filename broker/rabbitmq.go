package broker

import (
	"context"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Tsukikage7/kafkalog/logger"
)

// rabbitClient 基于 amqp091-go 的 RabbitMQ 客户端.
//
// Topic 作为 routing key 发布到配置的交换机.
// 连接断开后上报 Disconnected，等待 ReconnectDelay 后重新进入 Connecting 并按重试策略重连.
type rabbitClient struct {
	url            string
	exchange       string
	reconnectDelay time.Duration
	retry          RetryConfig
	logger         logger.Logger

	// dial 建立连接，测试时替换.
	dial func(url string) (*amqp.Connection, error)

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newRabbitClient(cfg *Config, log logger.Logger) *rabbitClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &rabbitClient{
		url:            cfg.RabbitMQ.URL,
		exchange:       cfg.RabbitMQ.Exchange,
		reconnectDelay: cfg.RabbitMQ.ReconnectDelay,
		retry:          cfg.Retry,
		logger:         log,
		dial:           amqp.Dial,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Connect 在后台建立连接并维护重连.
func (c *rabbitClient) Connect(hooks Hooks) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(hooks)
	}()
}

func (c *rabbitClient) run(hooks Hooks) {
	for {
		if hooks.Connecting != nil {
			hooks.Connecting()
		}

		notifyClose, err := c.connect()
		if err != nil {
			if c.ctx.Err() == nil && hooks.Error != nil {
				hooks.Error(errors.Join(ErrConnect, err))
			}
			return
		}

		c.logger.Info("[Broker] RabbitMQ 连接已建立")
		if hooks.Ready != nil {
			hooks.Ready()
		}

		select {
		case <-c.ctx.Done():
			return
		case amqpErr, ok := <-notifyClose:
			if !ok || c.ctx.Err() != nil {
				return
			}
			c.lost(hooks, amqpErr)
		}

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.reconnectDelay):
		}
	}
}

// lost 清理断开的连接并上报 Disconnected.
func (c *rabbitClient) lost(hooks Hooks, cause *amqp.Error) {
	c.logger.Warnf("[Broker] RabbitMQ 连接断开: %v, 开始重连...", cause)

	c.mu.Lock()
	c.conn, c.channel = nil, nil
	c.mu.Unlock()

	if hooks.Disconnected != nil {
		hooks.Disconnected()
	}
}

// connect 按重试策略建立连接和通道.
func (c *rabbitClient) connect() (chan *amqp.Error, error) {
	conn, err := retry(c.ctx, c.retry, func() (*amqp.Connection, error) {
		return c.dial(c.url)
	}, func(err error, next time.Duration) {
		c.logger.Warnf("[Broker] RabbitMQ 连接失败，%v 后重试: %v", next, err)
	})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	notifyClose := conn.NotifyClose(make(chan *amqp.Error, 1))

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		_ = ch.Close()
		_ = conn.Close()
		return nil, ErrManagerClosed
	}
	c.conn, c.channel = conn, ch
	return notifyClose, nil
}

// Send 逐条发布消息.
func (c *rabbitClient) Send(ctx context.Context, env *Envelope, done func(error)) {
	c.mu.RLock()
	ch, closed := c.channel, c.closed
	c.mu.RUnlock()

	if closed {
		done(ErrManagerClosed)
		return
	}
	if ch == nil {
		done(ErrNotConnected)
		return
	}

	headers := make(amqp.Table, len(env.Headers))
	for k, v := range env.Headers {
		headers[k] = v
	}

	var first error
	for _, msg := range env.Messages {
		err := ch.PublishWithContext(ctx, c.exchange, env.Topic, false, false, amqp.Publishing{
			ContentType: "application/json",
			Body:        msg,
			Timestamp:   time.UnixMilli(env.Timestamp),
			Headers:     headers,
		})
		if err != nil && first == nil {
			c.logger.Warnf("[Broker] RabbitMQ 消息发布失败: routing_key=%s err=%v", env.Topic, err)
			first = errors.Join(ErrSend, err)
		}
	}
	done(first)
}

// Close 停止重连并关闭通道和连接.
func (c *rabbitClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn, ch := c.conn, c.channel
	c.conn, c.channel = nil, nil
	c.mu.Unlock()

	c.cancel()

	var errs []error
	if ch != nil {
		if err := ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}

	c.wg.Wait()
	return errors.Join(errs...)
}
