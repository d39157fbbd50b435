package forwarder

import (
	"errors"
	"time"

	"github.com/Tsukikage7/kafkalog/broker"
	"github.com/Tsukikage7/kafkalog/metrics"
)

// 拒绝原因.
const (
	reasonMissingPayload = "missing_payload"
	reasonSerialization  = "serialization"
)

// forwarderMetrics 转发器指标记录器.
//
// 封装 metrics.PrometheusCollector；nil 接收者上的调用全部忽略.
type forwarderMetrics struct {
	collector *metrics.PrometheusCollector
}

func newForwarderMetrics(collector *metrics.PrometheusCollector) *forwarderMetrics {
	if collector == nil {
		return nil
	}
	return &forwarderMetrics{collector: collector}
}

// recordSubmitted 记录一条被接受的日志.
func (m *forwarderMetrics) recordSubmitted(topic string) {
	if m == nil {
		return
	}
	m.collector.Counter("records_submitted_total", map[string]string{"topic": topic})
}

// recordRejected 记录一条在发送前被拒绝的日志.
func (m *forwarderMetrics) recordRejected(reason string) {
	if m == nil {
		return
	}
	m.collector.Counter("records_rejected_total", map[string]string{"reason": reason})
}

// recordOutcome 记录发送结果.
func (m *forwarderMetrics) recordOutcome(topic string, latency time.Duration, err error) {
	if m == nil {
		return
	}
	labels := map[string]string{"topic": topic}
	switch {
	case err == nil:
		m.collector.Histogram("send_duration_seconds", latency.Seconds(), labels)
	case errors.Is(err, broker.ErrBufferFull), errors.Is(err, broker.ErrManagerClosed):
		m.collector.Counter("records_dropped_total", labels)
	default:
		m.collector.Counter("send_errors_total", labels)
	}
}

// recordDeferred 记录当前延迟缓冲区中的信封数量.
func (m *forwarderMetrics) recordDeferred(n int) {
	if m == nil {
		return
	}
	m.collector.Gauge("records_deferred", float64(n), nil)
}

// recordState 记录连接状态.
func (m *forwarderMetrics) recordState(s broker.State) {
	if m == nil {
		return
	}
	m.collector.Gauge("broker_state", float64(s), nil)
}
