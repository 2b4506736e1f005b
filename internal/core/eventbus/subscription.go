package eventbus

import (
	"reflect"
	"sync"
	"sync/atomic"
)

// ============================================================================
//                              Subscription
// ============================================================================

// Subscription 事件订阅
type Subscription struct {
	bus       *Bus
	typ       reflect.Type
	out       chan interface{}
	closeOnce sync.Once
}

// Out 返回接收事件的通道
//
// 总线或订阅关闭后通道被关闭。
func (s *Subscription) Out() <-chan interface{} {
	return s.out
}

// Close 取消订阅
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		s.bus.removeSub(s)
	})
	return nil
}

// ============================================================================
//                              Emitter
// ============================================================================

// Emitter 事件发射器
type Emitter struct {
	bus    *Bus
	node   *node
	typ    reflect.Type
	closed atomic.Bool
}

// Emit 发射事件
//
// event 必须与创建发射器时的类型一致（传值，不传指针）。
func (e *Emitter) Emit(event interface{}) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if reflect.TypeOf(event) != e.typ {
		return ErrInvalidEventType
	}
	e.node.emit(event)
	return nil
}

// Close 关闭发射器
func (e *Emitter) Close() error {
	if e.closed.CompareAndSwap(false, true) {
		e.node.nEmitters.Add(-1)
	}
	return nil
}
