package thrill

import "errors"

// 公共错误定义
var (
	// ────────────────────────────────────────────────────────────────────────
	// Worker 生命周期错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrNotStarted worker 未启动
	ErrNotStarted = errors.New("worker not started")

	// ErrAlreadyStarted worker 已启动
	ErrAlreadyStarted = errors.New("worker already started")

	// ErrWorkerClosed worker 已关闭
	ErrWorkerClosed = errors.New("worker closed")
)
