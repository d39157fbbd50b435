package forwarder

import (
	"context"

	"go.uber.org/zap/zapcore"
)

// CoreOption zap core 配置选项.
type CoreOption func(*core)

// WithLevelKey 设置级别字段名，默认 "level".
func WithLevelKey(key string) CoreOption {
	return func(c *core) {
		c.levelKey = key
	}
}

// WithMessageKey 设置消息字段名，默认 "message".
func WithMessageKey(key string) CoreOption {
	return func(c *core) {
		c.messageKey = key
	}
}

// core 将 zap 日志条目转为 Record 提交给 Forwarder.
type core struct {
	zapcore.LevelEnabler
	f          *Forwarder
	fields     []zapcore.Field
	levelKey   string
	messageKey string
}

// NewCore 创建把日志转发到 f 的 zapcore.Core.
//
// 与已有 core 组合使用:
//
//	zl := zap.New(zapcore.NewTee(base, forwarder.NewCore(f, zapcore.InfoLevel)))
//	log := logger.NewZap(zl)
func NewCore(f *Forwarder, enab zapcore.LevelEnabler, opts ...CoreOption) zapcore.Core {
	c := &core{
		LevelEnabler: enab,
		f:            f,
		levelKey:     "level",
		messageKey:   "message",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *core) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = make([]zapcore.Field, 0, len(c.fields)+len(fields))
	clone.fields = append(clone.fields, c.fields...)
	clone.fields = append(clone.fields, fields...)
	return &clone
}

func (c *core) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

// Write 提交日志条目，只返回同步可知的错误（空记录、序列化失败）.
func (c *core) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, field := range c.fields {
		field.AddTo(enc)
	}
	for _, field := range fields {
		field.AddTo(enc)
	}

	rec := Record(enc.Fields)
	rec[c.levelKey] = ent.Level.String()
	rec[c.messageKey] = ent.Message
	if ent.LoggerName != "" {
		rec["logger"] = ent.LoggerName
	}
	if ent.Caller.Defined {
		rec["caller"] = ent.Caller.TrimmedPath()
	}
	if ent.Stack != "" {
		rec["stack"] = ent.Stack
	}

	errCh := make(chan error, 1)
	c.f.Submit(context.Background(), rec, func(err error, _ bool) {
		errCh <- err
	})

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

func (c *core) Sync() error {
	return nil
}
