package forwarder

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// forwarderTracer 转发追踪器.
//
// 使用全局 OpenTelemetry TracerProvider 和 TextMapPropagator.
type forwarderTracer struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

func newForwarderTracer(serviceName string) *forwarderTracer {
	return &forwarderTracer{
		tracer:     otel.Tracer(serviceName),
		propagator: otel.GetTextMapPropagator(),
	}
}

// startProducerSpan 开始一次转发的生产者 span.
func (t *forwarderTracer) startProducerSpan(ctx context.Context, topic string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "kafkalog.forward",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", topic),
			attribute.String("messaging.operation", "publish"),
		),
	)
}

// injectHeaders 将追踪上下文写入信封消息头.
func (t *forwarderTracer) injectHeaders(ctx context.Context) map[string]string {
	headers := make(map[string]string)
	t.propagator.Inject(ctx, &mapCarrier{headers: headers})
	if len(headers) == 0 {
		return nil
	}
	return headers
}

// finish 结束 span，失败时记录错误.
func (t *forwarderTracer) finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// mapCarrier 实现 propagation.TextMapCarrier 接口.
type mapCarrier struct {
	headers map[string]string
}

func (c *mapCarrier) Get(key string) string {
	return c.headers[key]
}

func (c *mapCarrier) Set(key, value string) {
	c.headers[key] = value
}

func (c *mapCarrier) Keys() []string {
	keys := make([]string, 0, len(c.headers))
	for k := range c.headers {
		keys = append(keys, k)
	}
	return keys
}
