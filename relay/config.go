package relay

import (
	"fmt"
	"time"

	"github.com/Tsukikage7/kafkalog/forwarder"
	"github.com/Tsukikage7/kafkalog/logger"
	"github.com/Tsukikage7/kafkalog/tracing"
)

// 默认值.
const (
	DefaultAddr            = ":8080"
	DefaultMaxBodyBytes    = 1 << 20
	DefaultMaxLineBytes    = 256 << 10
	DefaultGracefulTimeout = 30 * time.Second
	DefaultEnvPrefix       = "KAFKALOG"
)

// Config 转发守护进程配置.
//
// 对应的 YAML:
//
//	forwarder:
//	  topic: app-logs
//	  broker:
//	    kafka:
//	      brokers: ["kafka-1:9092"]
//	  metrics:
//	    namespace: kafkalog
//	log:
//	  level: info
//	http:
//	  addr: ":8080"
//	stdin:
//	  enabled: false
//	tracing:
//	  enabled: true
//	  endpoint: http://otel-collector:4318
type Config struct {
	Forwarder forwarder.Config `json:"forwarder" yaml:"forwarder" mapstructure:"forwarder"`
	Log       logger.Config    `json:"log" yaml:"log" mapstructure:"log"`
	HTTP      HTTPConfig       `json:"http" yaml:"http" mapstructure:"http"`
	Stdin     StdinConfig      `json:"stdin" yaml:"stdin" mapstructure:"stdin"`
	Tracing   tracing.Config   `json:"tracing" yaml:"tracing" mapstructure:"tracing"`

	// GracefulTimeout 关闭时等待服务器停止与转发器清空的最长时间.
	GracefulTimeout time.Duration `json:"graceful_timeout" yaml:"graceful_timeout" mapstructure:"graceful_timeout"`
}

// HTTPConfig HTTP 接入配置.
type HTTPConfig struct {
	// Disabled 关闭 HTTP 接入，仅从标准输入读取.
	Disabled     bool   `json:"disabled" yaml:"disabled" mapstructure:"disabled"`
	Addr         string `json:"addr" yaml:"addr" mapstructure:"addr"`
	MaxBodyBytes int64  `json:"max_body_bytes" yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// StdinConfig 标准输入读取配置.
type StdinConfig struct {
	Enabled      bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	MaxLineBytes int  `json:"max_line_bytes" yaml:"max_line_bytes" mapstructure:"max_line_bytes"`

	// StopOnEOF 读到 EOF 后停止整个进程.
	StopOnEOF bool `json:"stop_on_eof" yaml:"stop_on_eof" mapstructure:"stop_on_eof"`
}

// ConfigError 配置错误.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("relay config error [%s]: %s", e.Field, e.Message)
}

// ApplyDefaults 应用默认值.
func (c *Config) ApplyDefaults() {
	c.Forwarder.ApplyDefaults()
	c.Log.ApplyDefaults()
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = DefaultAddr
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		c.HTTP.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.Stdin.MaxLineBytes <= 0 {
		c.Stdin.MaxLineBytes = DefaultMaxLineBytes
	}
	if c.GracefulTimeout <= 0 {
		c.GracefulTimeout = DefaultGracefulTimeout
	}
}

// Validate 验证配置.
func (c *Config) Validate() error {
	if c == nil {
		return &ConfigError{Field: "config", Message: "config cannot be nil"}
	}
	if c.HTTP.Disabled && !c.Stdin.Enabled {
		return &ConfigError{Field: "http.disabled", Message: "at least one intake (http or stdin) must be enabled"}
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return &ConfigError{Field: "tracing.endpoint", Message: "endpoint is required when tracing is enabled"}
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	return c.Forwarder.Validate()
}
