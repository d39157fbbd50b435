package server

import "errors"

// 预定义错误.
var (
	// ErrAppRunning 应用正在运行.
	ErrAppRunning = errors.New("server: 应用正在运行")

	// ErrServerRunning 服务器已启动.
	ErrServerRunning = errors.New("server: 服务器已启动")

	// ErrNilHandler 处理器为空.
	ErrNilHandler = errors.New("server: handler 不能为空")

	// ErrStart 服务器启动失败.
	ErrStart = errors.New("server: 服务器启动失败")
)
