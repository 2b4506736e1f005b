package multiplex

import (
	"sync"

	"github.com/nejmd/thrill/internal/core/chains"
	pkgif "github.com/nejmd/thrill/pkg/interfaces"
	"github.com/nejmd/thrill/pkg/types"
)

// Channel 单个通道的完成状态机
//
// 状态：Open（completions < expectedPeers）→ Complete
// （completions == expectedPeers），没有后续转移。完成信号来自
// 两条对称的路径：远端连接上的零长度哨兵块头，以及回环流的
// CloseLoopback。二者在同一个计数器上记账。
//
// 通道对象创建后永不销毁（进程生命周期）；逻辑完成之后复用
// 同一 id 属于未定义行为，多收到的哨兵以协议违规上报。
type Channel struct {
	id            types.ChannelID
	expectedPeers int
	chain         *chains.BufferChain
	mux           *Multiplexer

	mu          sync.Mutex
	completions int
}

// newChannel 创建通道状态机
func newChannel(id types.ChannelID, expectedPeers int, chain *chains.BufferChain, mux *Multiplexer) *Channel {
	return &Channel{
		id:            id,
		expectedPeers: expectedPeers,
		chain:         chain,
		mux:           mux,
	}
}

// Completions 返回已收到的完成信号数
func (ch *Channel) Completions() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.completions
}

// IsComplete 判断通道是否已完成
func (ch *Channel) IsComplete() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.completions == ch.expectedPeers
}

// PickupStream 消费一条连接上刚到达的块
//
// 块头已解析且通过上限检查。负载块：精确读取声明的字节数，
// 完整追加到缓冲链后在同一连接上重新装载下一次块头读取——
// 单连接上的解复用循环由此无限延续。哨兵：不发负载读取，
// 直接记账并立即重新装载（物理连接还会承载其他通道的块）。
func (ch *Channel) PickupStream(conn pkgif.Connection, h BlockHeader) {
	if h.IsEndOfStream() {
		ch.mux.reporter.LogRecvBlock(conn.RemoteRank(), HeaderSize)
		ch.onCompletion(conn.RemoteRank())
		ch.mux.expectHeader(conn)
		return
	}

	err := ch.mux.dispatcher.AsyncRead(conn, int(h.PayloadLength), ch.onPayload)
	if err != nil {
		ch.mux.connectionLost(conn, err)
	}
}

// CloseLoopback 回环流的完成转移
//
// 等价于收到一枚结束哨兵，但没有连接参数：自身路径没有物理
// 读取循环，无需重新装载。
func (ch *Channel) CloseLoopback() {
	ch.onCompletion(ch.mux.myRank())
}

// onPayload 负载读取完成
//
// 连接在负载读取中途关闭属于对端流的异常终止，不计为完成，
// 也不再重新装载。
func (ch *Channel) onPayload(conn pkgif.Connection, buf []byte, err error) {
	if err != nil {
		ch.mux.connectionLost(conn, err)
		return
	}

	ch.chain.Append(buf)
	ch.mux.reporter.LogRecvBlock(conn.RemoteRank(), HeaderSize+int64(len(buf)))
	ch.mux.expectHeader(conn)
}

// onCompletion 完成信号记账
//
// 超出组大小的信号是协议违规：上报而不是悄悄多计。
func (ch *Channel) onCompletion(from types.Rank) {
	ch.mu.Lock()
	if ch.completions == ch.expectedPeers {
		ch.mu.Unlock()
		ch.mux.emitViolation(ch.id, from, ErrDuplicateSentinel.Error())
		return
	}
	ch.completions++
	complete := ch.completions == ch.expectedPeers
	ch.mu.Unlock()

	if complete {
		ch.mux.emitComplete(ch.id, ch.chain.Len())
	}
}
