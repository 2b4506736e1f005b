package types

// ============================================================================
//                              事件类型定义
// ============================================================================
//
// 这些事件由多路复用器通过事件总线发布。协议违规不会跨越
// reactor 边界抛出，只会以事件形式上报给宿主进程。

// EvtChannelComplete 通道完成事件
//
// 当某通道收到的完成信号数达到组大小（包括本地回环路径）时
// 发布一次。核心层不提供阻塞式等待，订阅此事件是观察完成的
// 唯一途径（或轮询 HasChannel 后查询状态）。
type EvtChannelComplete struct {
	// ID 完成的通道
	ID ChannelID

	// Blocks 完成时链中累计的数据块数量
	Blocks int
}

// EvtProtocolViolation 协议违规事件
//
// 重复的结束哨兵、超限的块长度等。违规局限于单个连接或通道，
// 不会导致整个多路复用器崩溃。
type EvtProtocolViolation struct {
	// ID 相关通道（可能是违规头部声明的 id）
	ID ChannelID

	// Rank 违规数据来源的对端序号
	Rank Rank

	// Reason 违规描述
	Reason string
}

// EvtPeerDisconnected 对端异常断开事件
//
// 连接在帧中途关闭属于异常终止，不计为正常完成。
type EvtPeerDisconnected struct {
	// Rank 断开的对端序号
	Rank Rank

	// Err 断开原因
	Err error
}
