// Package multiplex 实现通道多路复用器
//
// 每个 worker 与组内每个对端之间只有一条持久连接，多条逻辑
// 数据流（通道）通过自描述块头在这条连接上多路复用。本包拥有
// 通道注册表与缓冲链存储：接收侧在每条对端连接上驱动解复用
// 循环，发送侧在通道打开写入时构造按序号索引的投递目标扇出。
package multiplex

import (
	"encoding/binary"

	"github.com/nejmd/thrill/pkg/types"
)

// 块线路格式（所有 worker 必须一致）：
//
//	[payload_length: uint32 小端][channel_id: uint32 小端]
//
// 随后紧跟恰好 payload_length 字节的原始负载。
// payload_length == 0 是结束哨兵：本通道在本连接上的流结束，
// 不携带任何负载字节。
const HeaderSize = 8

// BlockHeader 块头
//
// 固定长度的自描述前缀，在消费任何负载字节之前解析。
type BlockHeader struct {
	// PayloadLength 负载字节数，0 表示结束哨兵
	PayloadLength uint32

	// Channel 块所属的通道
	Channel types.ChannelID
}

// IsEndOfStream 判断是否为结束哨兵
func (h BlockHeader) IsEndOfStream() bool {
	return h.PayloadLength == 0
}

// MarshalBinary 编码块头
func (h BlockHeader) MarshalBinary() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.PayloadLength)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.Channel))
	return buf
}

// UnmarshalBinary 解码块头
func (h *BlockHeader) UnmarshalBinary(buf []byte) error {
	if len(buf) < HeaderSize {
		return ErrShortHeader
	}
	h.PayloadLength = binary.LittleEndian.Uint32(buf[0:4])
	h.Channel = types.ChannelID(binary.LittleEndian.Uint32(buf[4:8]))
	return nil
}

// sentinelHeader 构造指定通道的结束哨兵块头
func sentinelHeader(id types.ChannelID) BlockHeader {
	return BlockHeader{PayloadLength: 0, Channel: id}
}
