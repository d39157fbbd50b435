package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Tsukikage7/kafkalog/logger"
)

// Manager 连接管理器.
//
// 持有唯一的底层客户端及其连接状态:
//   - Ready 时 Dispatch 立即交给客户端发送
//   - 非 Ready 时信封进入有界缓冲区，下一次就绪信号到达后按入队顺序补发
//   - 生产者错误交给 OnProducerError，未配置时视为致命错误
//
// Manager 可被多个 goroutine 并发使用，调用客户端和回调时不持有锁.
type Manager struct {
	cfg    *Config
	log    logger.Logger
	client Client
	fatal  func(error)
	listen func(State)

	mu        sync.Mutex
	state     State
	closed    bool
	queue     *fifo
	observers []readyObserver
	nextID    uint64
	space     chan struct{}
}

type readyObserver struct {
	id uint64
	fn func()
}

// Option 管理器配置选项.
type Option func(*Manager)

// WithLogger 设置日志记录器.
func WithLogger(log logger.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithClient 使用指定的客户端，忽略 Driver 配置.
func WithClient(client Client) Option {
	return func(m *Manager) {
		m.client = client
	}
}

// WithFatalHandler 设置未配置 OnProducerError 时的致命错误处理函数.
//
// 默认调用 logger.Fatalf 退出进程.
func WithFatalHandler(fn func(error)) Option {
	return func(m *Manager) {
		m.fatal = fn
	}
}

// WithStateListener 订阅状态变化，每次状态切换调用一次.
func WithStateListener(fn func(State)) Option {
	return func(m *Manager) {
		m.listen = fn
	}
}

// New 创建连接管理器并开始建立连接.
//
// 配置了 LocalStore 时使用内存客户端，返回前状态已是 Ready.
func New(cfg *Config, opts ...Option) (*Manager, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:   cfg,
		log:   logger.NewNop(),
		queue: newFIFO(),
		space: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.fatal == nil {
		m.fatal = func(err error) {
			m.log.Fatalf("[Broker] 生产者错误且未配置处理函数: %v", err)
		}
	}

	if m.client == nil {
		client, err := newClient(cfg, m.log)
		if err != nil {
			return nil, err
		}
		m.client = client
	}

	m.client.Connect(Hooks{
		Connecting:   m.onConnecting,
		Ready:        m.onReady,
		Disconnected: m.onDisconnected,
		Error:        m.onError,
	})

	return m, nil
}

// newClient 根据配置选择客户端，只在创建时分支一次.
func newClient(cfg *Config, log logger.Logger) (Client, error) {
	if cfg.LocalStore != nil {
		return newMemoryClient(cfg.LocalStore), nil
	}

	switch cfg.Driver {
	case DriverKafka:
		client, err := newSaramaClient(cfg, log)
		if err != nil {
			return nil, err
		}
		return client, nil
	case DriverFranz:
		return newFranzClient(cfg, log), nil
	case DriverRabbitMQ:
		return newRabbitClient(cfg, log), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, cfg.Driver)
	}
}

// State 返回当前连接状态.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Pending 返回缓冲区中等待就绪的信封数量.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue.len()
}

// NotifyReady 注册一次性回调，在下一次进入 Ready 时调用.
//
// 返回的 cancel 用于取消尚未触发的回调.
func (m *Manager) NotifyReady(fn func()) (cancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || fn == nil {
		return func() {}
	}

	m.nextID++
	id := m.nextID
	m.observers = append(m.observers, readyObserver{id: id, fn: fn})

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, o := range m.observers {
			if o.id == id {
				m.observers = append(m.observers[:i], m.observers[i+1:]...)
				return
			}
		}
	}
}

// Dispatch 发送信封.
//
// Ready 时在当前 goroutine 内立即交给客户端；否则暂存，等待下一次就绪.
// 除 block 策略外不会阻塞调用方. done 恰好被调用一次.
func (m *Manager) Dispatch(ctx context.Context, env *Envelope, done func(error)) {
	if done == nil {
		done = func(error) {}
	}
	if env == nil {
		done(ErrNilEnvelope)
		return
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	m.mu.Lock()
	for {
		if m.closed {
			m.mu.Unlock()
			done(ErrManagerClosed)
			return
		}

		if m.state == StateReady {
			m.mu.Unlock()
			m.client.Send(ctx, env, done)
			return
		}

		capacity := m.cfg.Buffer.Capacity
		if capacity < 0 || m.queue.len() < capacity {
			m.queue.push(pending{ctx: context.WithoutCancel(ctx), env: env, done: done})
			m.mu.Unlock()
			return
		}

		switch m.cfg.Buffer.Policy {
		case PolicyDropNewest:
			m.mu.Unlock()
			m.log.Warnf("[Broker] 延迟缓冲区已满，丢弃新消息 topic=%s", env.Topic)
			done(ErrBufferFull)
			return

		case PolicyBlock:
			if timer == nil {
				timer = time.NewTimer(m.cfg.Buffer.BlockTimeout)
			}
			space := m.space
			m.mu.Unlock()

			select {
			case <-space:
			case <-timer.C:
				m.log.Warnf("[Broker] 等待缓冲区空间超时，丢弃消息 topic=%s", env.Topic)
				done(ErrBufferFull)
				return
			case <-ctx.Done():
				done(ctx.Err())
				return
			}
			m.mu.Lock()

		default:
			evicted, _ := m.queue.pop()
			m.queue.push(pending{ctx: context.WithoutCancel(ctx), env: env, done: done})
			m.mu.Unlock()
			m.log.Warnf("[Broker] 延迟缓冲区已满，丢弃最早的消息 topic=%s", evicted.env.Topic)
			evicted.done(ErrBufferFull)
			return
		}
	}
}

// Shutdown 关闭管理器.
//
// 状态置为 Disconnected，缓冲区中的信封以 ErrManagerClosed 完成，
// 然后关闭客户端并返回关闭结果. 重复调用直接返回 nil.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	changed := m.setStateLocked(StateDisconnected)
	queued := m.queue.drain()
	m.observers = nil
	m.wakeLocked()
	m.mu.Unlock()

	m.notifyState(changed, StateDisconnected)
	for _, p := range queued {
		p.done(ErrManagerClosed)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- m.client.Close()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.Join(ErrProducer, err)
		}
		m.log.Info("[Broker] 连接管理器已关闭")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) onConnecting() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	changed := m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	m.notifyState(changed, StateConnecting)
}

func (m *Manager) onReady() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	changed := m.setStateLocked(StateReady)
	queued := m.queue.drain()
	observers := m.observers
	m.observers = nil
	m.wakeLocked()
	m.mu.Unlock()

	m.notifyState(changed, StateReady)
	if len(queued) > 0 {
		m.log.Infof("[Broker] 连接就绪，补发 %d 条延迟消息", len(queued))
	}
	for _, p := range queued {
		m.client.Send(p.ctx, p.env, p.done)
	}
	for _, o := range observers {
		o.fn()
	}
}

// onDisconnected 连接断开但仍在重连，不作为生产者错误处理.
func (m *Manager) onDisconnected() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	changed := m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	m.notifyState(changed, StateDisconnected)
}

func (m *Manager) onError(err error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	changed := m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	m.notifyState(changed, StateDisconnected)

	err = errors.Join(ErrProducer, err)
	m.log.Errorf("[Broker] %v", err)
	if m.cfg.OnProducerError != nil {
		m.cfg.OnProducerError(err)
		return
	}
	m.fatal(err)
}

// setStateLocked 切换状态，返回是否发生变化. 调用方需持有锁.
func (m *Manager) setStateLocked(s State) bool {
	if m.state == s {
		return false
	}
	m.state = s
	return true
}

// wakeLocked 唤醒等待缓冲区空间的调用方. 调用方需持有锁.
func (m *Manager) wakeLocked() {
	close(m.space)
	m.space = make(chan struct{})
}

func (m *Manager) notifyState(changed bool, s State) {
	if !changed {
		return
	}
	m.log.Debugf("[Broker] 连接状态: %s", s)
	if m.listen != nil {
		m.listen(s)
	}
}
