// Package dispatch 实现异步读取 reactor
//
// 每个已注册连接配一个读取泵 goroutine：按 FIFO 顺序取出
// AsyncRead 请求，用 io.ReadFull 读满请求的字节数后在泵
// goroutine 上执行回调。AsyncRead 对调用方永不阻塞。
//
// 执行模型（上层依赖此保证）：同一连接的回调串行执行，因此
// 单连接上块头与负载的严格交替天然成立；不同连接并发。
package dispatch

import (
	"io"
	"sync"

	pkgif "github.com/nejmd/thrill/pkg/interfaces"
	"github.com/nejmd/thrill/pkg/lib/log"
)

var logger = log.Logger("core/dispatch")

// 确保实现 Dispatcher 接口
var _ pkgif.Dispatcher = (*Dispatcher)(nil)

// Dispatcher 异步读取 reactor
type Dispatcher struct {
	mu     sync.Mutex
	closed bool
	pumps  map[pkgif.Connection]*pump
}

// NewDispatcher 创建 reactor
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		pumps: make(map[pkgif.Connection]*pump),
	}
}

// Register 注册连接，启动其读取泵
func (d *Dispatcher) Register(c pkgif.Connection) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if _, ok := d.pumps[c]; ok {
		return ErrAlreadyRegistered
	}

	p := newPump(c)
	d.pumps[c] = p
	go p.run()

	logger.Debug("connection registered", "remote", c.RemoteRank())
	return nil
}

// AsyncRead 调度一次恰好 n 字节的异步读取
func (d *Dispatcher) AsyncRead(c pkgif.Connection, n int, cb pkgif.AsyncReadCallback) error {
	d.mu.Lock()
	p, ok := d.pumps[c]
	d.mu.Unlock()

	if !ok {
		return ErrNotRegistered
	}
	return p.enqueue(readRequest{n: n, cb: cb})
}

// Deregister 注销连接并停止其读取泵
func (d *Dispatcher) Deregister(c pkgif.Connection) {
	d.mu.Lock()
	p, ok := d.pumps[c]
	if ok {
		delete(d.pumps, c)
	}
	d.mu.Unlock()

	if ok {
		p.stop()
	}
}

// Close 关闭 reactor，注销所有连接
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	pumps := d.pumps
	d.pumps = make(map[pkgif.Connection]*pump)
	d.mu.Unlock()

	for _, p := range pumps {
		p.stop()
	}
	return nil
}

// ============================================================================
//                              读取泵
// ============================================================================

// readRequest 单次异步读取请求
type readRequest struct {
	n  int
	cb pkgif.AsyncReadCallback
}

// pump 单连接读取泵
//
// 请求队列无界：AsyncRead 不得阻塞调用方，而协议本身保证
// 单连接上同一时刻至多一个未完成请求（块头或负载）。
type pump struct {
	conn pkgif.Connection

	mu      sync.Mutex
	queue   []readRequest
	stopped bool
	wake    chan struct{} // 容量 1，入队信号
	done    chan struct{}
}

func newPump(c pkgif.Connection) *pump {
	return &pump{
		conn: c,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// enqueue 入队一个请求，非阻塞
func (p *pump) enqueue(req readRequest) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrClosed
	}
	p.queue = append(p.queue, req)
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
	return nil
}

// stop 停止泵；尚未执行的请求以 ErrClosed 回调结束
//
// 泵可能正阻塞在读取中，停止时关闭连接以解除阻塞。
func (p *pump) stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.done)
	_ = p.conn.Close()
}

// isStopped 检查泵是否已停止
func (p *pump) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// run 泵主循环
func (p *pump) run() {
	for {
		req, ok := p.next()
		if !ok {
			p.drain()
			return
		}

		buf := make([]byte, req.n)
		_, err := io.ReadFull(p.conn, buf)
		if err != nil {
			// 主动停止导致的读取中断统一上报 ErrClosed
			if p.isStopped() {
				err = ErrClosed
			}
			req.cb(p.conn, nil, err)
			// 读取失败后连接不可再用，泵退出；后续请求全部报错
			p.stop()
			p.drain()
			return
		}
		req.cb(p.conn, buf, nil)
	}
}

// next 取出下一个请求；泵停止时返回 false
func (p *pump) next() (readRequest, bool) {
	for {
		p.mu.Lock()
		if p.stopped {
			p.mu.Unlock()
			return readRequest{}, false
		}
		if len(p.queue) > 0 {
			req := p.queue[0]
			p.queue = p.queue[1:]
			p.mu.Unlock()
			return req, true
		}
		p.mu.Unlock()

		select {
		case <-p.wake:
		case <-p.done:
			return readRequest{}, false
		}
	}
}

// drain 以 ErrClosed 结束所有遗留请求
func (p *pump) drain() {
	p.mu.Lock()
	leftover := p.queue
	p.queue = nil
	p.mu.Unlock()

	for _, req := range leftover {
		req.cb(p.conn, nil, ErrClosed)
	}
}
