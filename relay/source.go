package relay

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/goccy/go-json"

	"github.com/Tsukikage7/kafkalog/forwarder"
	"github.com/Tsukikage7/kafkalog/logger"
)

// LineSource 逐行读取日志流并提交给转发器，实现 server.Server.
//
// JSON 对象行按原样作为记录；其它非空行包装为 {"message": 行内容}.
type LineSource struct {
	name    string
	r       io.Reader
	sub     Submitter
	log     logger.Logger
	maxLine int
	onEOF   func()

	lines    atomic.Int64
	rejected atomic.Int64

	once    sync.Once
	stopped chan struct{}
}

// SourceOption LineSource 配置选项.
type SourceOption func(*LineSource)

// WithSourceName 设置名称.
func WithSourceName(name string) SourceOption {
	return func(s *LineSource) { s.name = name }
}

// WithMaxLineBytes 设置单行上限，超出时读取以错误结束.
func WithMaxLineBytes(n int) SourceOption {
	return func(s *LineSource) {
		if n > 0 {
			s.maxLine = n
		}
	}
}

// WithSourceLogger 设置日志记录器.
func WithSourceLogger(log logger.Logger) SourceOption {
	return func(s *LineSource) {
		if log != nil {
			s.log = log
		}
	}
}

// WithOnEOF 读到流末尾时调用.
func WithOnEOF(fn func()) SourceOption {
	return func(s *LineSource) { s.onEOF = fn }
}

// NewLineSource 创建行读取源.
func NewLineSource(r io.Reader, sub Submitter, opts ...SourceOption) *LineSource {
	s := &LineSource{
		name:    "stdin",
		r:       r,
		sub:     sub,
		log:     logger.NewNop(),
		maxLine: DefaultMaxLineBytes,
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start 开始读取，阻塞直到流结束、ctx 取消或 Stop 被调用.
//
// 阻塞中的 Read 无法被打断，停止后读取协程在下一次 Read 返回时退出.
func (s *LineSource) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.scan(ctx) }()

	select {
	case err := <-errCh:
		if err == nil && s.onEOF != nil {
			s.onEOF()
		}
		return err
	case <-ctx.Done():
		return nil
	case <-s.stopped:
		return nil
	}
}

func (s *LineSource) scan(ctx context.Context) error {
	scanner := bufio.NewScanner(s.r)
	scanner.Buffer(make([]byte, 0, min(4096, s.maxLine)), s.maxLine)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stopped:
			return nil
		default:
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		s.lines.Add(1)
		s.sub.Submit(ctx, parseLine(line), s.onResult)
	}

	if err := scanner.Err(); err != nil {
		s.log.Errorf("[Relay] 读取 %s 失败: %v", s.name, err)
		return err
	}
	s.log.Debugf("[Relay] %s 读取结束: lines=%d", s.name, s.lines.Load())
	return nil
}

func (s *LineSource) onResult(err error, _ bool) {
	if err != nil {
		s.rejected.Add(1)
		s.log.Warnf("[Relay] %s 日志被拒绝: %v", s.name, err)
	}
}

// parseLine 解析一行. 行内容被复制，不引用 Scanner 的缓冲区.
func parseLine(line []byte) forwarder.Record {
	if line[0] == '{' {
		var rec map[string]any
		if err := json.Unmarshal(line, &rec); err == nil {
			return rec
		}
	}
	return forwarder.Record{"message": string(line)}
}

// Stop 停止读取.
func (s *LineSource) Stop(context.Context) error {
	s.once.Do(func() { close(s.stopped) })
	return nil
}

// Name 返回名称.
func (s *LineSource) Name() string {
	return s.name
}

// Addr 返回读取源描述.
func (s *LineSource) Addr() string {
	return s.name
}

// Lines 已提交的行数.
func (s *LineSource) Lines() int64 {
	return s.lines.Load()
}

// Rejected 被拒绝的行数.
func (s *LineSource) Rejected() int64 {
	return s.rejected.Load()
}
