package forwarder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tsukikage7/kafkalog/broker"
	"github.com/Tsukikage7/kafkalog/config"
)

const sampleYAML = `
topic: app-logs
delivery: confirmed
broker:
  driver: franz
  kafka:
    brokers: ["kafka-1:9092", "kafka-2:9092"]
    client_id: orders
    connect_timeout: 3s
  producer:
    acks: all
    ack_timeout: 250ms
    partitioner: 2
    compression: zstd
  retry:
    retries: 3
    min_timeout: 500ms
  buffer:
    capacity: 10
    policy: block
    block_timeout: 2s
metrics:
  namespace: orders
`

func TestConfig_LoadFromYAML(t *testing.T) {
	cfg, err := config.LoadFromBytes[Config]([]byte(sampleYAML), "yaml", config.WithoutEnv())
	require.NoError(t, err)

	assert.Equal(t, "app-logs", cfg.Topic)
	assert.Equal(t, DeliveryConfirmed, cfg.Delivery)
	assert.Equal(t, DefaultTimestampField, cfg.TimestampField)

	b := cfg.Broker
	assert.Equal(t, broker.DriverFranz, b.Driver)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, b.Kafka.Brokers)
	assert.Equal(t, "orders", b.Kafka.ClientID)
	assert.Equal(t, 3*time.Second, b.Kafka.ConnectTimeout)
	assert.Equal(t, 30*time.Second, b.Kafka.RequestTimeout)
	assert.Equal(t, broker.AcksAll, b.Producer.Acks)
	assert.Equal(t, 250*time.Millisecond, b.Producer.AckTimeout)
	assert.Equal(t, broker.PartitionerCyclic, b.Producer.Partitioner)
	assert.Equal(t, broker.CompressionZstd, b.Producer.Compression)
	assert.Equal(t, 3, b.Retry.Retries)
	assert.Equal(t, 500*time.Millisecond, b.Retry.MinTimeout)
	assert.Equal(t, time.Minute, b.Retry.MaxTimeout)
	assert.Equal(t, 10, b.Buffer.Capacity)
	assert.Equal(t, broker.PolicyBlock, b.Buffer.Policy)
	assert.Equal(t, 2*time.Second, b.Buffer.BlockTimeout)

	require.NotNil(t, cfg.Metrics)
	assert.Equal(t, "orders", cfg.Metrics.Namespace)
}

func TestConfig_LoadDefaults(t *testing.T) {
	cfg, err := config.LoadFromBytes[Config]([]byte("{}"), "json", config.WithoutEnv())
	require.NoError(t, err)

	assert.Equal(t, DefaultTopic, cfg.Topic)
	assert.Equal(t, DeliveryAccepted, cfg.Delivery)
	assert.Equal(t, broker.DriverKafka, cfg.Broker.Driver)
	assert.Equal(t, []string{broker.DefaultBroker}, cfg.Broker.Kafka.Brokers)
	assert.Nil(t, cfg.Metrics)
}

func TestConfig_LoadInvalid(t *testing.T) {
	_, err := config.LoadFromBytes[Config]([]byte("delivery: sometimes\n"), "yaml", config.WithoutEnv())

	assert.ErrorIs(t, err, config.ErrValidation)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestConfig_Validate(t *testing.T) {
	var nilCfg *Config
	assert.Error(t, nilCfg.Validate())

	cfg := &Config{}
	var cfgErr *ConfigError
	require.ErrorAs(t, cfg.Validate(), &cfgErr)
	assert.Equal(t, "topic", cfgErr.Field)

	cfg = &Config{Topic: "t", Delivery: DeliveryAccepted}
	require.ErrorAs(t, cfg.Validate(), &cfgErr)
	assert.Equal(t, "timestamp_field", cfgErr.Field)

	cfg.ApplyDefaults()
	assert.NoError(t, cfg.Validate())
}
