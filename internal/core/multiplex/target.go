package multiplex

import (
	"fmt"
	"sync/atomic"

	"github.com/nejmd/thrill/internal/core/chains"
	"github.com/nejmd/thrill/internal/core/metrics"
	pkgif "github.com/nejmd/thrill/pkg/interfaces"
	"github.com/nejmd/thrill/pkg/types"
)

// 投递目标的两种形态共用 BlockSink 接口：网络目标为每个块
// 加块头后写入连接，回环目标直接追加到本地缓冲链。块生产者
// 不区分二者。

// 确保实现 BlockSink 接口
var (
	_ pkgif.BlockSink = (*SocketTarget)(nil)
	_ pkgif.BlockSink = (*LoopbackTarget)(nil)
)

// ============================================================================
//                              SocketTarget
// ============================================================================

// SocketTarget 网络投递目标
//
// 每次 Append 写出一个完整的帧：块头紧跟负载，拼进同一次
// Write 以保证并发写同一连接时帧不交错。Close 发送零长度的
// 结束哨兵块头。
type SocketTarget struct {
	conn     pkgif.Connection
	id       types.ChannelID
	maxFrame uint32
	reporter metrics.Reporter
	closed   atomic.Bool
}

// NewSocketTarget 创建网络投递目标
func NewSocketTarget(conn pkgif.Connection, id types.ChannelID, maxFrame uint32, reporter metrics.Reporter) *SocketTarget {
	return &SocketTarget{
		conn:     conn,
		id:       id,
		maxFrame: maxFrame,
		reporter: reporter,
	}
}

// Append 投递一个块
//
// 空块直接忽略：零长度的帧在线路上就是结束哨兵，不能用
// Append 发送。
func (t *SocketTarget) Append(block []byte) error {
	if t.closed.Load() {
		return ErrSinkClosed
	}
	if len(block) == 0 {
		return nil
	}
	if uint32(len(block)) > t.maxFrame {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(block), t.maxFrame)
	}

	h := BlockHeader{PayloadLength: uint32(len(block)), Channel: t.id}
	frame := append(h.MarshalBinary(), block...)
	if _, err := t.conn.Write(frame); err != nil {
		return fmt.Errorf("write block: %w", err)
	}

	t.reporter.LogSentBlock(t.conn.RemoteRank(), int64(len(frame)))
	return nil
}

// Close 结束本条流，发送结束哨兵
func (t *SocketTarget) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return ErrSinkClosed
	}

	if _, err := t.conn.Write(sentinelHeader(t.id).MarshalBinary()); err != nil {
		return fmt.Errorf("write sentinel: %w", err)
	}
	t.reporter.LogSentBlock(t.conn.RemoteRank(), HeaderSize)
	return nil
}

// ============================================================================
//                              LoopbackTarget
// ============================================================================

// LoopbackTarget 回环投递目标
//
// worker 给自己发数据的退化路径：没有网络往返也没有块头，
// 块直接追加到本地缓冲链，语义上与远端投递完全一致。回环
// 无法在线路上发结束哨兵（根本没有线路），Close 通过 closer
// 回调触发通道的本地完成转移，与远端哨兵对称记账。
type LoopbackTarget struct {
	chain  *chains.BufferChain
	closer func()
	closed atomic.Bool
}

// NewLoopbackTarget 创建回环投递目标
func NewLoopbackTarget(chain *chains.BufferChain, closer func()) *LoopbackTarget {
	return &LoopbackTarget{chain: chain, closer: closer}
}

// Append 把块直接追加到本地缓冲链
func (t *LoopbackTarget) Append(block []byte) error {
	if t.closed.Load() {
		return ErrSinkClosed
	}
	if len(block) == 0 {
		return nil
	}
	t.chain.Append(block)
	return nil
}

// Close 结束本条流，触发本地完成转移
func (t *LoopbackTarget) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return ErrSinkClosed
	}
	t.closer()
	return nil
}
