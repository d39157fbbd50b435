package tracing

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// NewProvider 创建 TracerProvider 并注册为全局 provider.
//
// 未启用时返回不导出的 provider，同样需要调用 Shutdown.
func NewProvider(cfg *Config, serviceName, serviceVersion string) (*sdktrace.TracerProvider, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	if !cfg.Enabled {
		return sdktrace.NewTracerProvider(), nil
	}

	if serviceName == "" {
		return nil, ErrEmptyServiceName
	}
	if cfg.Endpoint == "" {
		return nil, ErrEmptyEndpoint
	}

	exp, err := otlptracehttp.New(context.Background(), exporterOptions(cfg)...)
	if err != nil {
		return nil, errors.Join(ErrCreateExporter, err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, errors.Join(ErrCreateResource, err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(samplingRate(cfg.SamplingRate)))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp, nil
}

// exporterOptions 将端点拆分为 host:port 与传输方式.
func exporterOptions(cfg *Config) []otlptracehttp.Option {
	endpoint := cfg.Endpoint
	insecure := cfg.Insecure
	if after, ok := strings.CutPrefix(endpoint, "http://"); ok {
		endpoint, insecure = after, true
	} else if after, ok := strings.CutPrefix(endpoint, "https://"); ok {
		endpoint, insecure = after, false
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(strings.TrimSuffix(endpoint, "/"))}
	if insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}
	return opts
}

func samplingRate(rate float64) float64 {
	if rate <= 0 || rate > 1 {
		return 1.0
	}
	return rate
}
