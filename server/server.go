// Package server 管理转发守护进程的运行时生命周期.
//
// App 统一启动、停止多个 Server（HTTP 接入、标准输入读取等），
// 处理系统信号并在所有服务器停止后执行清理任务（例如关闭转发器、刷新日志）.
//
// 示例:
//
//	app := server.NewApp(
//	    server.WithName("kafkalog"),
//	    server.WithLogger(log),
//	    server.WithCleanup("forwarder", fw.Close, 0),
//	)
//	app.Use(server.NewHTTP(handler, server.WithHTTPAddr(":8080")))
//	if err := app.Run(); err != nil {
//	    log.Fatal(err)
//	}
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
)

// Server 服务器接口.
type Server interface {
	// Start 启动服务器，阻塞直到 ctx 取消或服务器退出.
	Start(ctx context.Context) error

	// Stop 停止服务器.
	Stop(ctx context.Context) error

	// Name 服务器名称.
	Name() string

	// Addr 服务器地址.
	Addr() string
}

// App 应用程序，管理多个服务器的生命周期.
type App struct {
	opts    *appOptions
	servers []Server
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	running bool
}

// NewApp 创建应用程序.
func NewApp(opts ...AppOption) *App {
	o := defaultAppOptions()
	for _, opt := range opts {
		opt(o)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &App{
		opts:   o,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Use 注册服务器，支持链式调用.
func (a *App) Use(servers ...Server) *App {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.servers = append(a.servers, servers...)
	return a
}

// Run 运行应用程序.
//
// 阻塞直到收到关闭信号、调用 Stop 或任一服务器启动失败.
// 服务器启动失败时返回包装了 ErrStart 的错误.
func (a *App) Run() error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return ErrAppRunning
	}
	a.running = true
	servers := append([]Server(nil), a.servers...)
	a.mu.Unlock()

	a.opts.logger.Infof("[App] 应用启动 [name:%s] [version:%s]", a.opts.name, a.opts.version)

	errCh := a.start(servers)
	startErr := a.wait(errCh)

	a.shutdown(servers)

	a.mu.Lock()
	a.running = false
	a.mu.Unlock()

	return startErr
}

// Stop 主动停止应用程序.
func (a *App) Stop() {
	a.cancel()
}

// Context 获取应用上下文，Stop 或收到信号后取消.
func (a *App) Context() context.Context {
	return a.ctx
}

// Name 获取应用名称.
func (a *App) Name() string {
	return a.opts.name
}

// Version 获取应用版本.
func (a *App) Version() string {
	return a.opts.version
}

func (a *App) start(servers []Server) <-chan error {
	errCh := make(chan error, len(servers))
	if len(servers) == 0 {
		a.opts.logger.Warn("[App] 没有注册任何服务器")
		return errCh
	}

	for _, srv := range servers {
		go func(s Server) {
			a.opts.logger.Debugf("[App] 启动服务器: %s [addr:%s]", s.Name(), s.Addr())
			if err := s.Start(a.ctx); err != nil {
				errCh <- fmt.Errorf("%w: %s: %w", ErrStart, s.Name(), err)
			}
		}(srv)
	}
	return errCh
}

func (a *App) wait(errCh <-chan error) error {
	signals := a.opts.signals
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, signals...)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		a.opts.logger.Infof("[App] 收到信号: %s", sig.String())
	case <-a.ctx.Done():
		a.opts.logger.Debug("[App] 上下文已取消")
	case err := <-errCh:
		a.opts.logger.Errorf("[App] %v", err)
		a.cancel()
		return err
	}

	a.cancel()
	return nil
}

// shutdown 优雅关闭: 先并发停止所有服务器，再按优先级执行清理任务.
func (a *App) shutdown(servers []Server) {
	a.opts.logger.Debugf("[App] 开始优雅关闭 [timeout:%v]", a.opts.gracefulTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), a.opts.gracefulTimeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, srv := range servers {
		wg.Add(1)
		go func(s Server) {
			defer wg.Done()
			if err := s.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.opts.logger.Errorf("[App] 服务器停止失败 [name:%s] [error:%v]", s.Name(), err)
			}
		}(srv)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.opts.logger.Debug("[App] 所有服务器已停止")
	case <-ctx.Done():
		a.opts.logger.Warn("[App] 关闭超时")
	}

	a.runCleanups(ctx)
	a.opts.logger.Info("[App] 应用已关闭")
}

func (a *App) runCleanups(ctx context.Context) {
	if len(a.opts.cleanups) == 0 {
		return
	}

	cleanups := make([]Cleanup, len(a.opts.cleanups))
	copy(cleanups, a.opts.cleanups)
	sort.SliceStable(cleanups, func(i, j int) bool {
		return cleanups[i].Priority < cleanups[j].Priority
	})

	for _, c := range cleanups {
		if err := c.Fn(ctx); err != nil {
			a.opts.logger.Errorf("[App] 清理失败 [name:%s] [error:%v]", c.Name, err)
			continue
		}
		a.opts.logger.Debugf("[App] 清理完成 [name:%s]", c.Name)
	}
}
