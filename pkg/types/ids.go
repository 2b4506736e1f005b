package types

import "fmt"

// ============================================================================
//                              ChannelID - 通道标识
// ============================================================================

// ChannelID 逻辑通道的唯一标识
//
// 在单个 worker 的生命周期内唯一，由本地单调分配器产生，
// 或在收到引用未知 id 的块头时隐式产生。
//
// 注意：组内所有 worker 必须以相同顺序调用分配器，才能保证
// 同一个 id 在所有 worker 上指向同一条逻辑流。多路复用层
// 自身不做任何跨 worker 协商（这是上层调度的职责）。
type ChannelID uint32

// String 返回 ChannelID 的字符串表示，用于日志
func (id ChannelID) String() string {
	return fmt.Sprintf("ch/%d", uint32(id))
}

// ============================================================================
//                              Rank - Worker 序号
// ============================================================================

// Rank worker 在组内的固定序号，取值 0..N-1
type Rank int

// InvalidRank 无效序号，用于未初始化字段
const InvalidRank Rank = -1

// String 返回 Rank 的字符串表示
func (r Rank) String() string {
	return fmt.Sprintf("rank/%d", int(r))
}

// Valid 检查序号是否在组大小范围内
func (r Rank) Valid(groupSize int) bool {
	return r >= 0 && int(r) < groupSize
}
