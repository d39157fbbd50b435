package forwarder

import (
	"fmt"
	"strings"

	"github.com/Tsukikage7/kafkalog/broker"
	"github.com/Tsukikage7/kafkalog/metrics"
)

// Delivery 回调时机.
type Delivery string

const (
	// DeliveryAccepted 交给连接管理器后立即回调成功，不等待发送结果（默认）.
	DeliveryAccepted Delivery = "accepted"
	// DeliveryConfirmed 等待发送完成，回调真实结果.
	DeliveryConfirmed Delivery = "confirmed"
)

// 默认值.
const (
	DefaultTopic          = "winston-kafka-logs"
	DefaultTimestampField = "timestamp"
)

// Config 转发器配置.
//
// 支持从配置文件加载:
//
//	cfg, err := config.Load[forwarder.Config]("kafkalog.yaml", config.WithEnvPrefix("KAFKALOG"))
//
// 对应的 YAML:
//
//	topic: app-logs
//	delivery: accepted
//	broker:
//	  kafka:
//	    brokers: ["kafka-1:9092", "kafka-2:9092"]
//	  retry:
//	    retries: 5
//	  buffer:
//	    capacity: 100
//	    policy: drop-oldest
//	metrics:
//	  namespace: kafkalog
type Config struct {
	// Topic 所有日志发往的目标主题.
	Topic string `json:"topic" yaml:"topic" mapstructure:"topic"`

	// Delivery 回调时机: accepted（默认）或 confirmed.
	Delivery Delivery `json:"delivery" yaml:"delivery" mapstructure:"delivery"`

	// TimestampField 写入时间戳的字段名.
	TimestampField string `json:"timestamp_field" yaml:"timestamp_field" mapstructure:"timestamp_field"`

	// Broker 连接管理器配置.
	Broker broker.Config `json:"broker" yaml:"broker" mapstructure:"broker"`

	// Metrics 非空时启用 Prometheus 指标（未通过 WithMetrics 指定收集器时生效）.
	Metrics *metrics.Config `json:"metrics" yaml:"metrics" mapstructure:"metrics"`
}

// ConfigError 配置错误.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("forwarder config error [%s]: %s", e.Field, e.Message)
}

// ApplyDefaults 应用默认值.
func (c *Config) ApplyDefaults() {
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}
	if c.Delivery == "" {
		c.Delivery = DeliveryAccepted
	}
	c.Delivery = Delivery(strings.ToLower(string(c.Delivery)))
	if c.TimestampField == "" {
		c.TimestampField = DefaultTimestampField
	}
	c.Broker.ApplyDefaults()
}

// Validate 验证配置.
func (c *Config) Validate() error {
	if c == nil {
		return &ConfigError{Field: "config", Message: "config cannot be nil"}
	}
	if strings.TrimSpace(c.Topic) == "" {
		return &ConfigError{Field: "topic", Message: "topic is required"}
	}
	switch c.Delivery {
	case DeliveryAccepted, DeliveryConfirmed, "":
	default:
		return &ConfigError{Field: "delivery", Message: "invalid delivery: " + string(c.Delivery)}
	}
	if c.TimestampField == "" {
		return &ConfigError{Field: "timestamp_field", Message: "timestamp_field is required"}
	}
	return c.Broker.Validate()
}
