package multiplex

import (
	"errors"
	"fmt"
	"sync"

	"github.com/nejmd/thrill/internal/core/chains"
	"github.com/nejmd/thrill/internal/core/dispatch"
	"github.com/nejmd/thrill/internal/core/metrics"
	pkgif "github.com/nejmd/thrill/pkg/interfaces"
	"github.com/nejmd/thrill/pkg/lib/log"
	"github.com/nejmd/thrill/pkg/types"
)

var logger = log.Logger("core/multiplex")

// 确保实现 Multiplexer 接口
var _ pkgif.Multiplexer = (*Multiplexer)(nil)

// Multiplexer 通道多路复用器
//
// 注册表与缓冲链存储同时被 reactor 回调（入站块头创建通道、
// 追加负载）和 worker 线程（AllocateNext、OpenChannel）修改，
// 由一把读写锁串行化；单条缓冲链的追加由链自己的锁保护。
// reactor 保证单连接回调串行，块头与负载的严格交替因此成立。
type Multiplexer struct {
	dispatcher pkgif.Dispatcher
	reporter   metrics.Reporter
	maxFrame   uint32

	mu        sync.RWMutex
	group     pkgif.Group
	groupSize int
	attached  bool
	channels map[types.ChannelID]*Channel
	opened   map[types.ChannelID]bool
	chains   *chains.Manager

	completeEmitter   pkgif.Emitter
	violationEmitter  pkgif.Emitter
	disconnectEmitter pkgif.Emitter
}

// NewMultiplexer 创建多路复用器
//
// maxFrame 是单个块负载的上限；块头声明超过它即为畸形块头，
// 所属连接立即失效。
func NewMultiplexer(d pkgif.Dispatcher, bus pkgif.EventBus, reporter metrics.Reporter, maxFrame uint32) (*Multiplexer, error) {
	m := &Multiplexer{
		dispatcher: d,
		reporter:   reporter,
		maxFrame:   maxFrame,
		channels:   make(map[types.ChannelID]*Channel),
		opened:     make(map[types.ChannelID]bool),
		chains:     chains.NewManager(),
	}

	var err error
	if m.completeEmitter, err = bus.Emitter(new(types.EvtChannelComplete)); err != nil {
		return nil, fmt.Errorf("multiplex: %w", err)
	}
	if m.violationEmitter, err = bus.Emitter(new(types.EvtProtocolViolation)); err != nil {
		return nil, fmt.Errorf("multiplex: %w", err)
	}
	if m.disconnectEmitter, err = bus.Emitter(new(types.EvtPeerDisconnected)); err != nil {
		return nil, fmt.Errorf("multiplex: %w", err)
	}
	return m, nil
}

// Attach 绑定对等组，为每个非自身对端装载一次块头读取
//
// 在 Close 之前最多调用一次。Close 之后可以用新建立的组重新
// Attach，从头装载所有读取。
func (m *Multiplexer) Attach(g pkgif.Group) error {
	m.mu.Lock()
	if m.attached {
		m.mu.Unlock()
		return ErrAlreadyAttached
	}
	m.group = g
	m.groupSize = g.Size()
	m.attached = true
	m.mu.Unlock()

	for r := types.Rank(0); int(r) < g.Size(); r++ {
		if r == g.MyRank() {
			continue
		}
		conn := g.Connection(r)
		if err := m.dispatcher.Register(conn); err != nil {
			return fmt.Errorf("multiplex: register rank %v: %w", r, err)
		}
		m.expectHeader(conn)
	}

	logger.Info("attached to group", "rank", g.MyRank(), "size", g.Size())
	return nil
}

// HasChannel 判断指定 id 的通道对象是否已实例化
//
// 通道在显式回环关闭或首个入站块头时实例化。
func (m *Multiplexer) HasChannel(id types.ChannelID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.channels[id]
	return ok
}

// HasDataOn 判断指定 id 是否存在缓冲链
//
// 缓冲链可以先于通道对象存在（提前分配或先到的数据）。
func (m *Multiplexer) HasDataOn(id types.ChannelID) bool {
	return m.chains.Contains(id)
}

// AccessData 返回指定 id 的缓冲链
func (m *Multiplexer) AccessData(id types.ChannelID) (pkgif.BufferChain, error) {
	c, err := m.chains.Chain(id)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// AllocateNext 分配下一个通道 id 并立即创建其缓冲链
func (m *Multiplexer) AllocateNext() types.ChannelID {
	id, _ := m.chains.AllocateNext()
	return id
}

// Channel 返回指定 id 的通道状态机（只读访问）
//
// 供上层查询完成计数；id 没有通道对象时返回 nil。
func (m *Multiplexer) Channel(id types.ChannelID) *Channel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.channels[id]
}

// OpenChannel 打开通道用于写入
//
// 返回按序号索引的 N 个投递目标：自身序号是绑定本地缓冲链的
// 回环目标，其余是携带块头写入对端连接的网络目标。同一 id
// 只能打开一次，重复打开返回 ErrChannelOpen。
func (m *Multiplexer) OpenChannel(id types.ChannelID) ([]pkgif.BlockSink, error) {
	m.mu.Lock()
	if !m.attached {
		m.mu.Unlock()
		return nil, ErrNotAttached
	}
	if m.opened[id] {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrChannelOpen, id)
	}
	m.opened[id] = true
	g := m.group
	m.mu.Unlock()

	chain := m.chains.Allocate(id)

	sinks := make([]pkgif.BlockSink, g.Size())
	for r := types.Rank(0); int(r) < g.Size(); r++ {
		if r == g.MyRank() {
			sinks[r] = NewLoopbackTarget(chain, func() {
				_ = m.CloseLoopbackStream(id)
			})
		} else {
			sinks[r] = NewSocketTarget(g.Connection(r), id, m.maxFrame, m.reporter)
		}
	}
	return sinks, nil
}

// CloseLoopbackStream 触发指定通道的本地完成转移
//
// 回环目标无法在线路上发结束哨兵，由本方法做对称记账。
func (m *Multiplexer) CloseLoopbackStream(id types.ChannelID) error {
	m.mu.RLock()
	attached := m.attached
	m.mu.RUnlock()
	if !attached {
		return ErrNotAttached
	}

	m.getOrCreateChannel(id).CloseLoopback()
	return nil
}

// Close 关闭组内所有连接
//
// 通道注册表与缓冲链存储保持可查询；恢复接收需要用新的组
// 重新 Attach。
func (m *Multiplexer) Close() error {
	m.mu.Lock()
	if !m.attached {
		m.mu.Unlock()
		return nil
	}
	m.attached = false
	g := m.group
	m.group = nil
	m.mu.Unlock()

	for r := types.Rank(0); int(r) < g.Size(); r++ {
		if r == g.MyRank() {
			continue
		}
		m.dispatcher.Deregister(g.Connection(r))
	}
	return g.Close()
}

// ============================================================================
//                              接收侧协议循环
// ============================================================================

// expectHeader 在连接上装载下一次块头读取
func (m *Multiplexer) expectHeader(conn pkgif.Connection) {
	if err := m.dispatcher.AsyncRead(conn, HeaderSize, m.onHeader); err != nil {
		m.connectionLost(conn, err)
	}
}

// onHeader 块头读取完成：解析、路由、委托给通道
//
// 引用未知 id 的块头会懒创建通道及其缓冲链——这是通道对象的
// 唯一实例化入口，之后幂等。
func (m *Multiplexer) onHeader(conn pkgif.Connection, buf []byte, err error) {
	if err != nil {
		m.connectionLost(conn, err)
		return
	}

	var h BlockHeader
	if perr := h.UnmarshalBinary(buf); perr != nil {
		m.failConnection(conn, h.Channel, perr)
		return
	}
	if h.PayloadLength > m.maxFrame {
		m.failConnection(conn, h.Channel,
			fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, h.PayloadLength, m.maxFrame))
		return
	}

	m.getOrCreateChannel(h.Channel).PickupStream(conn, h)
}

// getOrCreateChannel 通道注册表的幂等实例化入口
func (m *Multiplexer) getOrCreateChannel(id types.ChannelID) *Channel {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.channels[id]
	if !ok {
		chain := m.chains.Allocate(id)
		ch = newChannel(id, m.groupSize, chain, m)
		m.channels[id] = ch
		logger.Debug("channel created", "channel", id)
	}
	return ch
}

// myRank 返回本地序号
func (m *Multiplexer) myRank() types.Rank {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.group == nil {
		return types.InvalidRank
	}
	return m.group.MyRank()
}

// ============================================================================
//                              错误上报
// ============================================================================

// connectionLost 对端流异常终止
//
// 主动关闭导致的读取中断不上报。异常断开不计为正常完成，
// 且不再重新装载——该连接上的解复用循环就此结束。
func (m *Multiplexer) connectionLost(conn pkgif.Connection, err error) {
	m.mu.RLock()
	attached := m.attached
	m.mu.RUnlock()

	if !attached && errors.Is(err, dispatch.ErrClosed) {
		return
	}

	logger.Warn("peer connection lost", "peer", conn.RemoteRank(), "err", err)
	_ = m.disconnectEmitter.Emit(types.EvtPeerDisconnected{Rank: conn.RemoteRank(), Err: err})
}

// failConnection 畸形块头：判连接失效
//
// 自描述帧流没有重新同步机制，解析错位后后续字节全部不可信。
func (m *Multiplexer) failConnection(conn pkgif.Connection, id types.ChannelID, err error) {
	logger.Error("malformed header, failing connection",
		"peer", conn.RemoteRank(), "channel", id, "err", err)

	m.emitViolation(id, conn.RemoteRank(), err.Error())
	m.dispatcher.Deregister(conn)
	_ = conn.Close()
	_ = m.disconnectEmitter.Emit(types.EvtPeerDisconnected{Rank: conn.RemoteRank(), Err: err})
}

// emitComplete 发布通道完成事件
func (m *Multiplexer) emitComplete(id types.ChannelID, blocks int) {
	logger.Debug("channel complete", "channel", id, "blocks", blocks)
	_ = m.completeEmitter.Emit(types.EvtChannelComplete{ID: id, Blocks: blocks})
}

// emitViolation 发布协议违规事件
func (m *Multiplexer) emitViolation(id types.ChannelID, from types.Rank, reason string) {
	logger.Warn("protocol violation", "channel", id, "peer", from, "reason", reason)
	_ = m.violationEmitter.Emit(types.EvtProtocolViolation{ID: id, Rank: from, Reason: reason})
}
