package server

import (
	"context"
	"os"
	"time"

	"github.com/Tsukikage7/kafkalog/logger"
)

// CleanupFunc 清理函数.
type CleanupFunc func(ctx context.Context) error

// Cleanup 清理任务，在所有服务器停止后按 Priority 升序执行.
type Cleanup struct {
	Name     string
	Fn       CleanupFunc
	Priority int
}

// AppOption App 配置选项.
type AppOption func(*appOptions)

type appOptions struct {
	name            string
	version         string
	logger          logger.Logger
	gracefulTimeout time.Duration
	signals         []os.Signal
	cleanups        []Cleanup
}

func defaultAppOptions() *appOptions {
	return &appOptions{
		name:            "kafkalog",
		version:         "dev",
		logger:          logger.NewNop(),
		gracefulTimeout: 30 * time.Second,
	}
}

// WithName 设置应用名称.
func WithName(name string) AppOption {
	return func(o *appOptions) { o.name = name }
}

// WithVersion 设置应用版本.
func WithVersion(version string) AppOption {
	return func(o *appOptions) { o.version = version }
}

// WithLogger 设置日志记录器.
func WithLogger(log logger.Logger) AppOption {
	return func(o *appOptions) {
		if log != nil {
			o.logger = log
		}
	}
}

// WithGracefulTimeout 设置优雅关闭超时时间.
//
// 默认: 30 秒. 超时同样作用于清理任务.
func WithGracefulTimeout(d time.Duration) AppOption {
	return func(o *appOptions) { o.gracefulTimeout = d }
}

// WithSignals 设置监听的系统信号.
//
// 默认: SIGINT, SIGTERM.
func WithSignals(signals ...os.Signal) AppOption {
	return func(o *appOptions) { o.signals = signals }
}

// WithCleanup 注册清理任务.
func WithCleanup(name string, fn CleanupFunc, priority int) AppOption {
	return func(o *appOptions) {
		o.cleanups = append(o.cleanups, Cleanup{Name: name, Fn: fn, Priority: priority})
	}
}

// HTTPOption HTTP 服务器配置选项.
type HTTPOption func(*httpOptions)

type httpOptions struct {
	name         string
	addr         string
	readTimeout  time.Duration
	writeTimeout time.Duration
	idleTimeout  time.Duration
	logger       logger.Logger
}

func defaultHTTPOptions() *httpOptions {
	return &httpOptions{
		name:         "http",
		addr:         ":8080",
		readTimeout:  30 * time.Second,
		writeTimeout: 30 * time.Second,
		idleTimeout:  120 * time.Second,
		logger:       logger.NewNop(),
	}
}

// WithHTTPName 设置 HTTP 服务器名称.
func WithHTTPName(name string) HTTPOption {
	return func(o *httpOptions) { o.name = name }
}

// WithHTTPAddr 设置 HTTP 监听地址.
func WithHTTPAddr(addr string) HTTPOption {
	return func(o *httpOptions) { o.addr = addr }
}

// WithHTTPTimeouts 设置读、写与空闲超时.
func WithHTTPTimeouts(read, write, idle time.Duration) HTTPOption {
	return func(o *httpOptions) {
		o.readTimeout = read
		o.writeTimeout = write
		o.idleTimeout = idle
	}
}

// WithHTTPLogger 设置日志记录器.
func WithHTTPLogger(log logger.Logger) HTTPOption {
	return func(o *httpOptions) {
		if log != nil {
			o.logger = log
		}
	}
}
