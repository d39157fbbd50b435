package broker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tsukikage7/kafkalog/logger"
)

func newTestSaramaClient(t *testing.T, retries int) *saramaClient {
	t.Helper()

	cfg := &Config{Retry: fastRetry(retries)}
	cfg.ApplyDefaults()
	c, err := newSaramaClient(cfg, logger.NewNop())
	require.NoError(t, err)
	return c
}

// connectHooks 返回把连接事件写入通道的 Hooks.
func connectHooks() (Hooks, chan struct{}, chan error) {
	ready := make(chan struct{}, 1)
	failed := make(chan error, 1)
	return Hooks{
		Connecting: func() {},
		Ready:      func() { ready <- struct{}{} },
		Error:      func(err error) { failed <- err },
	}, ready, failed
}

func waitDone(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("done was not called")
		return nil
	}
}

func TestNewSaramaConfig_Mapping(t *testing.T) {
	cfg := &Config{
		Kafka: KafkaConfig{ClientID: "svc", ConnectTimeout: 3 * time.Second, RequestTimeout: 7 * time.Second},
		Producer: ProducerConfig{
			Acks:        AcksAll,
			AckTimeout:  250 * time.Millisecond,
			Partitioner: PartitionerKeyed,
			Compression: CompressionGzip,
		},
	}
	cfg.ApplyDefaults()

	config, err := newSaramaConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, "svc", config.ClientID)
	assert.Equal(t, 3*time.Second, config.Net.DialTimeout)
	assert.Equal(t, 7*time.Second, config.Net.ReadTimeout)
	assert.Equal(t, sarama.WaitForAll, config.Producer.RequiredAcks)
	assert.Equal(t, 250*time.Millisecond, config.Producer.Timeout)
	assert.Equal(t, sarama.CompressionGZIP, config.Producer.Compression)
	assert.True(t, config.Producer.Return.Successes)
	assert.True(t, config.Producer.Return.Errors)
	assert.NotNil(t, config.Producer.Partitioner)
}

func TestNewSaramaConfig_DefaultAcks(t *testing.T) {
	config, err := newSaramaConfig(DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, sarama.WaitForLocal, config.Producer.RequiredAcks)
	assert.Equal(t, sarama.CompressionNone, config.Producer.Compression)
}

func TestNewSaramaConfig_InvalidVersion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Kafka.Version = "not-a-version"

	_, err := newSaramaConfig(cfg)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "kafka.version", cfgErr.Field)
}

func TestBuildSaramaMessage(t *testing.T) {
	env := &Envelope{
		Topic:     "t1",
		Timestamp: 1700000000123,
		Headers:   map[string]string{"traceparent": "00-abc"},
	}

	pm := buildSaramaMessage(env, []byte("payload"))

	assert.Equal(t, "t1", pm.Topic)
	assert.Equal(t, sarama.ByteEncoder("payload"), pm.Value)
	assert.Equal(t, int64(1700000000123), pm.Timestamp.UnixMilli())
	require.Len(t, pm.Headers, 1)
	assert.Equal(t, "traceparent", string(pm.Headers[0].Key))
	assert.Equal(t, "00-abc", string(pm.Headers[0].Value))
}

func TestSaramaClient_SendAndClose(t *testing.T) {
	c := newTestSaramaClient(t, 0)
	mp := mocks.NewAsyncProducer(t, c.config)
	mp.ExpectInputAndSucceed()
	mp.ExpectInputAndSucceed()
	mp.ExpectInputAndFail(sarama.ErrOutOfBrokers)
	c.newProducer = func([]string, *sarama.Config) (sarama.AsyncProducer, error) {
		return mp, nil
	}

	hooks, ready, _ := connectHooks()
	c.Connect(hooks)
	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("client did not become ready")
	}

	done := make(chan error, 1)
	c.Send(context.Background(), &Envelope{
		Topic:    "t1",
		Messages: [][]byte{[]byte("a"), []byte("b")},
	}, func(err error) { done <- err })
	assert.NoError(t, waitDone(t, done))

	c.Send(context.Background(), envelope("t1", "c"), func(err error) { done <- err })
	err := waitDone(t, done)
	assert.ErrorIs(t, err, ErrSend)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	c.Send(context.Background(), envelope("t1", "d"), func(err error) { done <- err })
	assert.ErrorIs(t, waitDone(t, done), ErrManagerClosed)
}

// stuckProducer 的输入通道无人读取.
type stuckProducer struct {
	sarama.AsyncProducer
	input     chan *sarama.ProducerMessage
	successes chan *sarama.ProducerMessage
	errs      chan *sarama.ProducerError
}

func newStuckProducer() *stuckProducer {
	return &stuckProducer{
		input:     make(chan *sarama.ProducerMessage),
		successes: make(chan *sarama.ProducerMessage),
		errs:      make(chan *sarama.ProducerError),
	}
}

func (p *stuckProducer) Input() chan<- *sarama.ProducerMessage { return p.input }

func (p *stuckProducer) Successes() <-chan *sarama.ProducerMessage { return p.successes }

func (p *stuckProducer) Errors() <-chan *sarama.ProducerError { return p.errs }

func (p *stuckProducer) AsyncClose() {
	close(p.successes)
	close(p.errs)
}

func (p *stuckProducer) Close() error {
	p.AsyncClose()
	return nil
}

func TestSaramaClient_CloseUnblocksPendingSend(t *testing.T) {
	c := newTestSaramaClient(t, 0)
	c.newProducer = func([]string, *sarama.Config) (sarama.AsyncProducer, error) {
		return newStuckProducer(), nil
	}

	hooks, ready, _ := connectHooks()
	c.Connect(hooks)
	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("client did not become ready")
	}

	done := make(chan error, 1)
	go c.Send(context.Background(), envelope("t1", "a"), func(err error) { done <- err })
	time.Sleep(20 * time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- c.Close() }()

	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked on a pending Send")
	}

	err := waitDone(t, done)
	assert.ErrorIs(t, err, ErrSend)
	assert.ErrorIs(t, err, ErrManagerClosed)
}

func TestSaramaClient_SendBeforeConnect(t *testing.T) {
	c := newTestSaramaClient(t, 0)

	var res result
	c.Send(context.Background(), envelope("t1", "a"), res.done)

	require.Len(t, res.calls(), 1)
	assert.ErrorIs(t, res.calls()[0], ErrNotConnected)
}

func TestSaramaClient_ConnectRetriesExhausted(t *testing.T) {
	c := newTestSaramaClient(t, 2)
	var attempts atomic.Int32
	cause := errors.New("dial tcp: connection refused")
	c.newProducer = func([]string, *sarama.Config) (sarama.AsyncProducer, error) {
		attempts.Add(1)
		return nil, cause
	}

	hooks, _, failed := connectHooks()
	c.Connect(hooks)

	err := waitDone(t, failed)
	assert.ErrorIs(t, err, ErrConnect)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, int32(3), attempts.Load())
	assert.NoError(t, c.Close())
}

func TestSaramaClient_DrivenByManager(t *testing.T) {
	cfg := &Config{Retry: fastRetry(0)}
	cfg.ApplyDefaults()
	c, err := newSaramaClient(cfg, logger.NewNop())
	require.NoError(t, err)

	mp := mocks.NewAsyncProducer(t, c.config)
	mp.ExpectInputAndSucceed()
	release := make(chan struct{})
	c.newProducer = func([]string, *sarama.Config) (sarama.AsyncProducer, error) {
		<-release
		return mp, nil
	}

	m, err := New(cfg, WithClient(c))
	require.NoError(t, err)
	assert.Equal(t, StateConnecting, m.State())

	done := make(chan error, 1)
	m.Dispatch(context.Background(), envelope("t1", "a"), func(err error) { done <- err })
	assert.Equal(t, 1, m.Pending())

	close(release)
	assert.NoError(t, waitDone(t, done))
	assert.Equal(t, StateReady, m.State())
	assert.NoError(t, m.Shutdown(context.Background()))
}
