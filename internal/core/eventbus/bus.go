// Package eventbus 实现事件总线
//
// 多路复用器通过它向宿主进程上报通道完成、协议违规与对端断开
// 事件。慢消费者不会阻塞发射方：缓冲区满时事件被丢弃并计数。
package eventbus

import (
	"errors"
	"reflect"
	"sync"
	"sync/atomic"

	pkgif "github.com/nejmd/thrill/pkg/interfaces"
	"github.com/nejmd/thrill/pkg/lib/log"
)

var logger = log.Logger("core/eventbus")

// ============================================================================
//                              错误定义
// ============================================================================

var (
	// ErrClosed 事件总线已关闭
	ErrClosed = errors.New("eventbus closed")
	// ErrInvalidEventType 无效的事件类型
	ErrInvalidEventType = errors.New("invalid event type")
	// ErrNonPointerType 非指针类型
	ErrNonPointerType = errors.New("subscribe called with non-pointer type")
)

// ============================================================================
//                              Bus 实现
// ============================================================================

// Bus 事件总线
type Bus struct {
	mu     sync.RWMutex
	closed bool

	// nodes 事件类型节点映射
	nodes map[reflect.Type]*node
}

// node 事件类型节点
type node struct {
	lk        sync.Mutex
	typ       reflect.Type
	sinks     []*Subscription // 订阅者列表
	nEmitters atomic.Int32    // 发射器引用计数
	dropCount atomic.Int64    // 丢弃事件计数（慢消费者）
}

// 确保实现 EventBus 接口
var _ pkgif.EventBus = (*Bus)(nil)

// NewBus 创建新的事件总线
func NewBus() *Bus {
	return &Bus{
		nodes: make(map[reflect.Type]*node),
	}
}

// Subscribe 订阅事件
//
// eventType 必须是事件结构体的指针原型，如 new(types.EvtChannelComplete)。
func (b *Bus) Subscribe(eventType interface{}, opts ...pkgif.SubscriptionOpt) (pkgif.Subscription, error) {
	elemType, err := b.elemType(eventType)
	if err != nil {
		return nil, err
	}

	settings := &pkgif.SubscriptionSettings{
		Buffer: 16, // 默认缓冲区大小
	}
	for _, opt := range opts {
		opt(settings)
	}

	sub := &Subscription{
		bus: b,
		typ: elemType,
		out: make(chan interface{}, settings.Buffer),
	}

	if err := b.withNode(elemType, func(n *node) {
		n.sinks = append(n.sinks, sub)
	}); err != nil {
		return nil, err
	}

	return sub, nil
}

// Emitter 获取发射器
func (b *Bus) Emitter(eventType interface{}) (pkgif.Emitter, error) {
	elemType, err := b.elemType(eventType)
	if err != nil {
		return nil, err
	}

	var n *node
	if err := b.withNode(elemType, func(node *node) {
		n = node
		n.nEmitters.Add(1)
	}); err != nil {
		return nil, err
	}

	return &Emitter{bus: b, node: n, typ: elemType}, nil
}

// Close 关闭事件总线，结束所有订阅
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, n := range b.nodes {
		n.lk.Lock()
		for _, sub := range n.sinks {
			close(sub.out)
		}
		n.sinks = nil
		n.lk.Unlock()
	}
	b.nodes = make(map[reflect.Type]*node)
	return nil
}

// ============================================================================
//                              内部方法
// ============================================================================

// elemType 从指针原型提取事件类型
func (b *Bus) elemType(eventType interface{}) (reflect.Type, error) {
	if eventType == nil {
		return nil, ErrInvalidEventType
	}
	typ := reflect.TypeOf(eventType)
	if typ.Kind() != reflect.Ptr {
		return nil, ErrNonPointerType
	}
	return typ.Elem(), nil
}

// withNode 在节点上执行操作，节点不存在则创建
func (b *Bus) withNode(typ reflect.Type, cb func(*node)) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}

	n, ok := b.nodes[typ]
	if !ok {
		n = &node{typ: typ}
		b.nodes[typ] = n
	}

	n.lk.Lock()
	b.mu.Unlock()

	cb(n)
	n.lk.Unlock()
	return nil
}

// removeSub 移除订阅
func (b *Bus) removeSub(sub *Subscription) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	n, ok := b.nodes[sub.typ]
	if !ok {
		b.mu.Unlock()
		return
	}

	n.lk.Lock()
	b.mu.Unlock()
	defer n.lk.Unlock()

	for i, s := range n.sinks {
		if s == sub {
			n.sinks = append(n.sinks[:i], n.sinks[i+1:]...)
			close(sub.out)
			return
		}
	}
}

// emit 发射事件到所有订阅者
//
// 非阻塞：订阅者缓冲区满时丢弃并计数。
func (n *node) emit(event interface{}) {
	n.lk.Lock()
	defer n.lk.Unlock()

	for _, sub := range n.sinks {
		select {
		case sub.out <- event:
		default:
			dropped := n.dropCount.Add(1)
			if dropped%64 == 1 {
				logger.Warn("slow event consumer, dropping events",
					"type", n.typ.String(), "dropped", dropped)
			}
		}
	}
}
