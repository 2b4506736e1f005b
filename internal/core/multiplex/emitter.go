package multiplex

import (
	pkgif "github.com/nejmd/thrill/pkg/interfaces"
	"github.com/nejmd/thrill/pkg/types"
)

// SerializeFunc 把应用值序列化为一个块
type SerializeFunc[T any] func(T) []byte

// BlockEmitter 类型化的块发射器
//
// 在投递目标之上做应用值到块的序列化。目标本身是多态的：
// 网络目标与回环目标对发射器不可见。
type BlockEmitter[T any] struct {
	sink      pkgif.BlockSink
	serialize SerializeFunc[T]
}

// Emit 序列化并投递一个值
func (e BlockEmitter[T]) Emit(v T) error {
	return e.sink.Append(e.serialize(v))
}

// Close 结束本条流
func (e BlockEmitter[T]) Close() error {
	return e.sink.Close()
}

// OpenChannelFor 打开通道并构造类型化的发射器扇出
//
// 与 OpenChannel 相同的语义：返回按序号索引的 N 个发射器，
// 同一 id 只能打开一次。
func OpenChannelFor[T any](m *Multiplexer, id types.ChannelID, fn SerializeFunc[T]) ([]BlockEmitter[T], error) {
	sinks, err := m.OpenChannel(id)
	if err != nil {
		return nil, err
	}

	emitters := make([]BlockEmitter[T], len(sinks))
	for i, s := range sinks {
		emitters[i] = BlockEmitter[T]{sink: s, serialize: fn}
	}
	return emitters, nil
}
