package broker

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
	"github.com/twmb/franz-go/pkg/kgo"
)

// fakeClient 由测试手动触发连接事件的客户端.
type fakeClient struct {
	mu       sync.Mutex
	hooks    Hooks
	sent     []*Envelope
	sendErr  error
	closeErr error
	closed   bool
	block    chan struct{}
}

func (c *fakeClient) Connect(hooks Hooks) {
	c.mu.Lock()
	c.hooks = hooks
	c.mu.Unlock()
}

func (c *fakeClient) Send(_ context.Context, env *Envelope, done func(error)) {
	c.mu.Lock()
	c.sent = append(c.sent, env)
	err := c.sendErr
	c.mu.Unlock()
	done(err)
}

func (c *fakeClient) Close() error {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.closeErr
}

func (c *fakeClient) connecting()   { c.hooks.Connecting() }
func (c *fakeClient) ready()        { c.hooks.Ready() }
func (c *fakeClient) disconnected() { c.hooks.Disconnected() }
func (c *fakeClient) fail(err error) {
	c.hooks.Error(err)
}

func (c *fakeClient) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func (c *fakeClient) sentEnvelopes() []*Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Envelope(nil), c.sent...)
}

// mockKgoClient kgoClient 的 mock 实现.
type mockKgoClient struct {
	mock.Mock
}

func (m *mockKgoClient) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockKgoClient) Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error)) {
	m.Called(ctx, r, promise)
}

func (m *mockKgoClient) Flush(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockKgoClient) Close() {
	m.Called()
}

// result 收集 done 回调的结果.
type result struct {
	mu   sync.Mutex
	errs []error
}

func (r *result) done(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *result) calls() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func envelope(topic, body string) *Envelope {
	return &Envelope{Topic: topic, Messages: [][]byte{[]byte(body)}, Timestamp: 1700000000000}
}
