// Package relay 把外部进程产生的日志接入转发器.
//
// Handler 通过 HTTP 接收 JSON 对象、JSON 数组或 NDJSON 格式的日志记录，
// LineSource 逐行读取标准输入等流. 两者都只依赖 Submitter 接口，
// 由 *forwarder.Forwarder 实现.
package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/goccy/go-json"

	"github.com/Tsukikage7/kafkalog/broker"
	"github.com/Tsukikage7/kafkalog/forwarder"
	"github.com/Tsukikage7/kafkalog/logger"
	"github.com/Tsukikage7/kafkalog/metrics"
)

// 预定义错误.
var (
	ErrEmptyBody     = errors.New("relay: 请求体为空")
	ErrInvalidRecord = errors.New("relay: 日志记录必须是 JSON 对象")
)

// 路由.
const (
	PathLogs    = "/logs"
	PathHealthz = "/healthz"
	PathReadyz  = "/readyz"
)

// Submitter 日志提交接口.
type Submitter interface {
	Submit(ctx context.Context, rec forwarder.Record, done forwarder.Callback)
	State() broker.State
}

var _ Submitter = (*forwarder.Forwarder)(nil)

// Response POST /logs 的响应体.
type Response struct {
	Accepted int      `json:"accepted"`
	Rejected int      `json:"rejected"`
	Errors   []string `json:"errors,omitempty"`
}

// HandlerOption Handler 配置选项.
type HandlerOption func(*Handler)

// WithMaxBodyBytes 设置请求体上限.
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

// WithHandlerLogger 设置日志记录器.
func WithHandlerLogger(log logger.Logger) HandlerOption {
	return func(h *Handler) {
		if log != nil {
			h.log = log
		}
	}
}

// WithMetrics 在收集器的 Path 上暴露 Prometheus 指标.
func WithMetrics(collector *metrics.PrometheusCollector) HandlerOption {
	return func(h *Handler) { h.collector = collector }
}

// Handler HTTP 日志接入处理器.
type Handler struct {
	sub       Submitter
	log       logger.Logger
	maxBody   int64
	collector *metrics.PrometheusCollector
	mux       *http.ServeMux
	root      http.Handler
}

// NewHandler 创建 HTTP 日志接入处理器.
func NewHandler(sub Submitter, opts ...HandlerOption) *Handler {
	h := &Handler{
		sub:     sub,
		log:     logger.NewNop(),
		maxBody: DefaultMaxBodyBytes,
		mux:     http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.mux.HandleFunc(PathLogs, h.handleLogs)
	h.mux.HandleFunc(PathHealthz, h.handleHealthz)
	h.mux.HandleFunc(PathReadyz, h.handleReadyz)
	if h.collector != nil {
		h.mux.Handle(h.collector.Path(), h.collector.Handler())
	}
	h.root = recoverHandler(h.log, h.mux)
	return h
}

// ServeHTTP 实现 http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.root.ServeHTTP(w, r)
}

func (h *Handler) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := decodeRecords(bytes.NewReader(body))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, complete := h.submitAll(r.Context(), records)
	if !complete {
		writeJSON(w, http.StatusGatewayTimeout, resp)
		return
	}

	status := http.StatusAccepted
	if resp.Accepted == 0 {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

// submitAll 提交全部记录并等待回调. ctx 先结束时 complete 为 false.
func (h *Handler) submitAll(ctx context.Context, records []forwarder.Record) (resp Response, complete bool) {
	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		errs = make([]error, len(records))
	)

	wg.Add(len(records))
	for i, rec := range records {
		h.sub.Submit(ctx, rec, func(err error, _ bool) {
			mu.Lock()
			errs[i] = err
			mu.Unlock()
			wg.Done()
		})
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	complete = true
	select {
	case <-done:
	case <-ctx.Done():
		complete = false
	}

	mu.Lock()
	defer mu.Unlock()
	for i, err := range errs {
		if err != nil {
			resp.Rejected++
			resp.Errors = append(resp.Errors, fmt.Sprintf("record %d: %v", i, err))
			continue
		}
		if complete {
			resp.Accepted++
		}
	}
	if resp.Rejected > 0 {
		h.log.Warnf("[Relay] 部分日志被拒绝: accepted=%d rejected=%d", resp.Accepted, resp.Rejected)
	}
	return resp, complete
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz 连接就绪时返回 200，否则 503. 未就绪时记录仍会被缓冲.
func (h *Handler) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	state := h.sub.State()
	status := http.StatusOK
	if state != broker.StateReady {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"state": state.String()})
}

// decodeRecords 解析请求体. 支持单个对象、对象数组以及多个相邻对象（NDJSON）.
func decodeRecords(r io.Reader) ([]forwarder.Record, error) {
	dec := json.NewDecoder(r)

	var records []forwarder.Record
	for {
		var v any
		if err := dec.Decode(&v); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}

		switch val := v.(type) {
		case map[string]any:
			records = append(records, val)
		case []any:
			for _, item := range val {
				m, ok := item.(map[string]any)
				if !ok {
					return nil, ErrInvalidRecord
				}
				records = append(records, m)
			}
		default:
			return nil, ErrInvalidRecord
		}
	}

	if len(records) == 0 {
		return nil, ErrEmptyBody
	}
	return records, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
