// Package metrics 实现网络层的流量统计
//
// 跟踪每个对端方向上发送和接收的字节与块数。
// 使用原子操作实现并发安全的计数器。
package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/nejmd/thrill/pkg/types"
)

// rankCounter 单对端方向的计数器组
type rankCounter struct {
	bytesSent  atomic.Uint64
	bytesRecv  atomic.Uint64
	blocksSent atomic.Uint64
	blocksRecv atomic.Uint64
}

func (c *rankCounter) snapshot() types.BandwidthStat {
	return types.BandwidthStat{
		BytesSent:  c.bytesSent.Load(),
		BytesRecv:  c.bytesRecv.Load(),
		BlocksSent: c.blocksSent.Load(),
		BlocksRecv: c.blocksRecv.Load(),
	}
}

// BandwidthCounter 带宽计数器
type BandwidthCounter struct {
	mu    sync.RWMutex
	ranks map[types.Rank]*rankCounter
}

// 确保实现 Reporter 接口
var _ Reporter = (*BandwidthCounter)(nil)

// NewBandwidthCounter 创建带宽计数器
func NewBandwidthCounter() *BandwidthCounter {
	return &BandwidthCounter{
		ranks: make(map[types.Rank]*rankCounter),
	}
}

// LogSentBlock 记录向指定对端发送的块（size 含块头）
func (b *BandwidthCounter) LogSentBlock(r types.Rank, size int64) {
	c := b.counter(r)
	c.bytesSent.Add(uint64(size))
	c.blocksSent.Add(1)
}

// LogRecvBlock 记录从指定对端接收的块（size 含块头）
func (b *BandwidthCounter) LogRecvBlock(r types.Rank, size int64) {
	c := b.counter(r)
	c.bytesRecv.Add(uint64(size))
	c.blocksRecv.Add(1)
}

// GetBandwidthForRank 获取指定对端的统计快照
func (b *BandwidthCounter) GetBandwidthForRank(r types.Rank) types.BandwidthStat {
	b.mu.RLock()
	c, ok := b.ranks[r]
	b.mu.RUnlock()
	if !ok {
		return types.BandwidthStat{}
	}
	return c.snapshot()
}

// GetBandwidthTotals 获取全部对端的统计之和
func (b *BandwidthCounter) GetBandwidthTotals() types.BandwidthStat {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var total types.BandwidthStat
	for _, c := range b.ranks {
		total = total.Add(c.snapshot())
	}
	return total
}

// GetBandwidthByRank 获取所有对端的统计快照
func (b *BandwidthCounter) GetBandwidthByRank() map[types.Rank]types.BandwidthStat {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[types.Rank]types.BandwidthStat, len(b.ranks))
	for r, c := range b.ranks {
		out[r] = c.snapshot()
	}
	return out
}

// Reset 重置所有统计
func (b *BandwidthCounter) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ranks = make(map[types.Rank]*rankCounter)
}

// counter 获取或创建指定对端的计数器组
func (b *BandwidthCounter) counter(r types.Rank) *rankCounter {
	b.mu.RLock()
	c, ok := b.ranks[r]
	b.mu.RUnlock()
	if ok {
		return c
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok = b.ranks[r]; ok {
		return c
	}
	c = &rankCounter{}
	b.ranks[r] = c
	return c
}
