// Package interfaces 定义 Thrill 公共接口
//
// 本文件定义 Multiplexer 接口：网络层的核心组件。
package interfaces

import "github.com/nejmd/thrill/pkg/types"

// BufferChain 定义单个通道的接收缓冲链的只读视图
//
// 追加顺序等于所属连接上的到达顺序；来自不同对端的块可能
// 交错，但每个对端自己的块保持发送顺序。
type BufferChain interface {
	// Len 返回链中当前的块数
	Len() int

	// Blocks 返回链内容的快照
	//
	// 快照只复制切片头，不复制字节；消费者不会观察到进行中的
	// 追加（一个块只有完整追加后才可见）。
	Blocks() [][]byte
}

// Multiplexer 定义通道多路复用器接口
//
// 多路复用器拥有通道注册表与缓冲链存储，在所有对端连接上
// 驱动接收侧的解复用循环，并在通道打开写入时构造发送侧的
// 投递目标扇出（每个对端一个，自身为回环目标）。
type Multiplexer interface {
	// Attach 绑定对等组，为每个非自身对端装载一次块头读取
	//
	// 在 Close 之前最多调用一次；Close 之后需重新 Attach 才能
	// 恢复接收。
	Attach(g Group) error

	// HasChannel 判断指定 id 的通道对象是否已实例化
	HasChannel(id types.ChannelID) bool

	// HasDataOn 判断指定 id 是否存在缓冲链
	//
	// 缓冲链可以先于通道对象存在（例如提前分配的 id）。
	HasDataOn(id types.ChannelID) bool

	// AccessData 返回指定 id 的缓冲链
	//
	// 不创建任何状态；id 不存在时返回错误（fail-fast，调用方
	// 应先用 HasDataOn 检查）。
	AccessData(id types.ChannelID) (BufferChain, error)

	// AllocateNext 从本地单调计数器分配下一个通道 id
	//
	// 立即为其创建缓冲链，但不创建通道对象。
	AllocateNext() types.ChannelID

	// OpenChannel 打开通道用于写入，返回按序号索引的 N 个投递目标
	//
	// 同一 id 只能打开一次，重复打开返回错误。
	OpenChannel(id types.ChannelID) ([]BlockSink, error)

	// CloseLoopbackStream 触发指定通道的本地完成转移
	//
	// 回环路径没有线路，无法发送结束哨兵，由本方法做对称记账。
	CloseLoopbackStream(id types.ChannelID) error

	// Close 关闭组内所有连接
	//
	// 通道注册表与缓冲链存储保持可查询；恢复接收需要重新 Attach。
	Close() error
}
