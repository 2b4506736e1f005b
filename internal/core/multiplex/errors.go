package multiplex

import "errors"

var (
	// ErrNotAttached 多路复用器尚未绑定对等组
	ErrNotAttached = errors.New("multiplexer not attached to a group")

	// ErrAlreadyAttached 已绑定对等组且尚未 Close
	ErrAlreadyAttached = errors.New("multiplexer already attached")

	// ErrChannelOpen 通道已打开过（同一 id 只能打开一次）
	ErrChannelOpen = errors.New("channel already opened for writing")

	// ErrShortHeader 块头字节数不足
	ErrShortHeader = errors.New("short block header")

	// ErrFrameTooLarge 块负载长度超过上限
	//
	// 畸形块头会使整条连接的帧流失去同步且无法恢复，
	// 必须判连接失效而不是截断或继续解析。
	ErrFrameTooLarge = errors.New("block payload exceeds max frame size")

	// ErrSinkClosed 投递目标已关闭
	ErrSinkClosed = errors.New("block sink closed")

	// ErrDuplicateSentinel 收到超出组大小的结束哨兵
	ErrDuplicateSentinel = errors.New("duplicate end-of-stream sentinel")
)
