package dispatch

import "errors"

var (
	// ErrClosed reactor 已关闭
	ErrClosed = errors.New("dispatcher closed")

	// ErrNotRegistered 连接未注册
	ErrNotRegistered = errors.New("connection not registered")

	// ErrAlreadyRegistered 连接已注册
	ErrAlreadyRegistered = errors.New("connection already registered")
)
