// Package interfaces 定义 Thrill 公共接口
//
// 本文件定义 Group 与 Connection 接口，抽象固定成员的对等组。
package interfaces

import (
	"io"

	"github.com/nejmd/thrill/pkg/types"
)

// Connection 定义对端连接接口
//
// 底层是一条有序字节流（TCP）。Write 内部加锁，允许多个
// 发射器并发写同一连接；Read 只应由 Dispatcher 的读取泵调用。
type Connection interface {
	io.ReadWriteCloser

	// LocalRank 返回本地 worker 序号
	LocalRank() types.Rank

	// RemoteRank 返回对端 worker 序号
	RemoteRank() types.Rank

	// RemoteAddr 返回对端地址的字符串表示，用于日志
	RemoteAddr() string
}

// Group 定义固定成员的对等组接口
//
// 组建立后成员不变：N 个 worker，序号 0..N-1，除自身外
// 每个对端一条持久连接。自身序号没有物理连接（回环路径）。
type Group interface {
	// Size 返回组大小 N（包括自身）
	Size() int

	// MyRank 返回本地 worker 的序号
	MyRank() types.Rank

	// Connection 返回指定序号对端的连接
	//
	// 对自身序号调用会 panic：回环路径没有连接，调用方必须
	// 先排除 MyRank。
	Connection(r types.Rank) Connection

	// Close 关闭组内所有连接
	Close() error
}
