// Package interfaces 定义 Thrill 公共接口
//
// 本文件定义 Dispatcher 接口，抽象异步读取 reactor。
package interfaces

// AsyncReadCallback 异步读取完成回调
//
// buf 恰好包含请求的字节数；若连接出错或中途关闭，err 非 nil，
// buf 为已读到的部分（可能为空）。
type AsyncReadCallback func(c Connection, buf []byte, err error)

// Dispatcher 定义异步读取 reactor 接口
//
// Dispatcher 为每个已注册的连接维护一个待处理读取请求队列。
// AsyncRead 从调用者的角度是非阻塞的：注册请求后立即返回，
// 等待字节到达的挂起发生在 reactor 内部。
//
// 执行模型：同一连接的所有回调在同一个 goroutine 上顺序执行，
// 因此单连接上"块头、负载、块头、……"的严格交替天然成立；
// 不同连接之间并发，不保证任何顺序。
type Dispatcher interface {
	// Register 注册连接，启动其读取泵
	Register(c Connection) error

	// AsyncRead 调度一次恰好 n 字节的异步读取
	//
	// 回调在该连接的读取泵 goroutine 上执行，严格按请求顺序。
	AsyncRead(c Connection, n int, cb AsyncReadCallback) error

	// Deregister 注销连接并停止其读取泵
	//
	// 已入队但尚未执行的读取请求以错误回调的形式结束。
	Deregister(c Connection)

	// Close 关闭 reactor，注销所有连接
	Close() error
}
