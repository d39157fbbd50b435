// Package tracing 初始化 OpenTelemetry 链路追踪.
//
// NewProvider 按配置创建 OTLP/HTTP 导出的 TracerProvider，并设置为全局
// provider 与 TraceContext/Baggage 传播器. forwarder.WithTracing 创建的
// 生产者 span 经由全局 provider 导出.
package tracing

// Config 链路追踪配置.
type Config struct {
	// Enabled 是否启用链路追踪
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	// Endpoint OTLP Collector 端点，http:// 前缀使用明文，https:// 前缀或无前缀按 Insecure 决定
	Endpoint string `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`
	// Insecure 无前缀端点是否使用明文 HTTP
	Insecure bool `json:"insecure" yaml:"insecure" mapstructure:"insecure"`
	// Headers 请求头[可选]
	Headers map[string]string `json:"headers" yaml:"headers" mapstructure:"headers"`
	// SamplingRate 采样率 (0.0-1.0]，超出范围按 1.0 处理
	SamplingRate float64 `json:"sampling_rate" yaml:"sampling_rate" mapstructure:"sampling_rate"`
}
