package forwarder

import (
	"context"
	"sync"

	"github.com/Tsukikage7/kafkalog/broker"
)

// fakeClient 由测试手动触发连接事件的 broker.Client.
type fakeClient struct {
	mu      sync.Mutex
	hooks   broker.Hooks
	sent    []*broker.Envelope
	sendErr error
}

func (c *fakeClient) Connect(hooks broker.Hooks) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = hooks
}

func (c *fakeClient) Send(_ context.Context, env *broker.Envelope, done func(error)) {
	c.mu.Lock()
	c.sent = append(c.sent, env)
	err := c.sendErr
	c.mu.Unlock()
	done(err)
}

func (c *fakeClient) Close() error { return nil }

func (c *fakeClient) ready()         { c.hooks.Ready() }
func (c *fakeClient) fail(err error) { c.hooks.Error(err) }

func (c *fakeClient) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

// outcome 收集 Callback 的调用.
type outcome struct {
	mu    sync.Mutex
	errs  []error
	oks   []bool
	calls int
}

func (o *outcome) done(err error, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs = append(o.errs, err)
	o.oks = append(o.oks, ok)
	o.calls++
}

func (o *outcome) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

func (o *outcome) last() (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.oks[len(o.oks)-1], o.errs[len(o.errs)-1]
}

func fixedClock(ms int64) func() int64 {
	return func() int64 { return ms }
}
