// Package interfaces 定义 Thrill 公共接口
//
// 本文件定义 BlockSink 接口，抽象块的投递目标。
package interfaces

// BlockSink 定义块投递目标接口
//
// 块生产者（序列化层）只依赖本接口，不关心数据去向：
//   - 网络目标：为每个块加上块头后写入对端连接，Close 发送
//     零长度结束哨兵；
//   - 回环目标：直接追加到本地缓冲链，没有块头也没有哨兵，
//     Close 触发通道的本地完成转移。
type BlockSink interface {
	// Append 投递一个完整的块
	Append(block []byte) error

	// Close 结束本条流
	//
	// Close 之后再调用 Append 是契约违规。重复 Close 返回错误。
	Close() error
}
