package logger

import (
	"context"
	"fmt"
	"os"
)

// nopLogger 丢弃所有输出的日志器.
//
// Fatal 系列仍会终止进程，保持与 zap 一致的语义.
type nopLogger struct{}

// NewNop 返回不输出任何内容的 Logger.
func NewNop() Logger {
	return nopLogger{}
}

func (nopLogger) Debug(...any)          {}
func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Info(...any)           {}
func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warn(...any)           {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Error(...any)          {}
func (nopLogger) Errorf(string, ...any) {}

func (nopLogger) Fatal(args ...any) {
	fmt.Fprintln(os.Stderr, args...)
	os.Exit(1)
}

func (nopLogger) Fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func (n nopLogger) With(...Field) Logger               { return n }
func (n nopLogger) WithContext(context.Context) Logger { return n }
func (nopLogger) Sync() error                          { return nil }
func (nopLogger) Close() error                         { return nil }
