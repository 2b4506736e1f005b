// Package chains 实现缓冲链存储
//
// 缓冲链是单个通道接收到的字节缓冲的有序累积：打开期间只追加，
// 由恰好一个下游消费者读取。管理器按通道 id 索引全部缓冲链，
// 并持有进程内单调的 id 分配器。
package chains

import (
	"sync"

	pkgif "github.com/nejmd/thrill/pkg/interfaces"
)

// BufferChain 单个通道的接收缓冲链
//
// 追加顺序等于所属连接上的到达顺序；来自不同对端的块在时间上
// 可能交错，但每个对端自己的块保持发送顺序（单连接有序传输）。
//
// 链由本核心创建后永不删除；回收是外部策略。
type BufferChain struct {
	mu     sync.RWMutex
	blocks [][]byte
}

// 确保实现 BufferChain 接口
var _ pkgif.BufferChain = (*BufferChain)(nil)

// NewBufferChain 创建空缓冲链
func NewBufferChain() *BufferChain {
	return &BufferChain{}
}

// Append 追加一个完整的块
//
// 一个块只有完整追加后才对消费者可见，进行中的网络负载读取
// 不会暴露半成品。
func (c *BufferChain) Append(block []byte) {
	c.mu.Lock()
	c.blocks = append(c.blocks, block)
	c.mu.Unlock()
}

// Len 返回链中当前的块数
func (c *BufferChain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

// Blocks 返回链内容的快照
//
// 只复制切片头，不复制字节。返回后发生的追加不影响快照。
func (c *BufferChain) Blocks() [][]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([][]byte, len(c.blocks))
	copy(out, c.blocks)
	return out
}
