package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// LoggerTestSuite logger 测试套件.
type LoggerTestSuite struct {
	suite.Suite
}

func TestLoggerSuite(t *testing.T) {
	suite.Run(t, new(LoggerTestSuite))
}

func (s *LoggerTestSuite) TestNewLogger_NilConfig() {
	log, err := NewLogger(nil)
	s.Error(err)
	s.Nil(log)
}

func (s *LoggerTestSuite) TestNewLogger_DefaultConfig() {
	log, err := NewLogger(DefaultConfig())
	s.NoError(err)
	s.NotNil(log)
	defer log.Close()
}

func (s *LoggerTestSuite) TestNewLogger_DevConfig() {
	log, err := NewLogger(NewDevConfig())
	s.NoError(err)
	s.NotNil(log)
	defer log.Close()
}

func (s *LoggerTestSuite) TestNewLogger_InvalidLevel() {
	log, err := NewLogger(&Config{Level: "invalid"})
	s.Error(err)
	s.Nil(log)
}

func (s *LoggerTestSuite) TestNewLogger_UnsupportedType() {
	log, err := NewLogger(&Config{Type: "logrus"})
	s.Error(err)
	s.Nil(log)

	var cfgErr *ConfigError
	s.True(errors.As(err, &cfgErr))
	s.Equal("type", cfgErr.Field)
}

func (s *LoggerTestSuite) TestMustNewLogger_Panics() {
	s.Panics(func() {
		MustNewLogger(&Config{Format: "xml"})
	})
}

func (s *LoggerTestSuite) TestNewZap_WritesThroughCore() {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZap(zap.New(core))

	log.Debugf("connected to %s", "broker-1")
	log.Warn("deferred")
	log.With(String("topic", "t1"), Err(errors.New("boom"))).Error("send failed")

	entries := logs.All()
	s.Require().Len(entries, 3)
	s.Equal("connected to broker-1", entries[0].Message)
	s.Equal(zapcore.WarnLevel, entries[1].Level)

	fields := entries[2].ContextMap()
	s.Equal("t1", fields["topic"])
	s.Equal("boom", fields["error"])
}

func (s *LoggerTestSuite) TestWithContext_TraceID() {
	core, logs := observer.New(zapcore.InfoLevel)
	log := NewZap(zap.New(core))

	ctx := ContextWithTraceID(context.Background(), "abc123")
	log.WithContext(ctx).Info("hello")
	log.WithContext(context.Background()).Info("plain")

	entries := logs.All()
	s.Require().Len(entries, 2)
	s.Equal("abc123", entries[0].ContextMap()["traceId"])
	s.NotContains(entries[1].ContextMap(), "traceId")
}

func TestToZapField(t *testing.T) {
	tests := []struct {
		name  string
		field Field
		want  zapcore.FieldType
	}{
		{"string", String("k", "v"), zapcore.StringType},
		{"int", Any("k", 1), zapcore.Int64Type},
		{"int64", Any("k", int64(1)), zapcore.Int64Type},
		{"bool", Any("k", true), zapcore.BoolType},
		{"duration", Any("k", time.Second), zapcore.DurationType},
		{"error", Err(errors.New("x")), zapcore.ErrorType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, toZapField(tt.field).Type)
		})
	}
}

func TestNopLogger(t *testing.T) {
	log := NewNop()

	assert.NotPanics(t, func() {
		log.Info("ignored")
		log.Errorf("ignored %d", 1)
		log.With(String("k", "v")).WithContext(context.Background()).Debug("ignored")
	})
	assert.NoError(t, log.Sync())
	assert.NoError(t, log.Close())
}
