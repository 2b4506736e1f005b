package netgroup

import "errors"

var (
	// ErrClosed 组已关闭
	ErrClosed = errors.New("group closed")

	// ErrBadMagic 握手魔数不匹配
	ErrBadMagic = errors.New("handshake: bad magic")

	// ErrVersionMismatch 协议版本不一致
	ErrVersionMismatch = errors.New("handshake: protocol version mismatch")

	// ErrSessionMismatch 组会话标识不一致（对端属于别的作业）
	ErrSessionMismatch = errors.New("handshake: session id mismatch")

	// ErrRankConflict 对端序号越界或重复
	ErrRankConflict = errors.New("handshake: rank out of range or already connected")
)
