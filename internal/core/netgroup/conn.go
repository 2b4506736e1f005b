// Package netgroup 实现固定成员的对等组
//
// 组建立后成员不变：N 个 worker，序号 0..N-1，除自身外每个
// 对端一条持久 TCP 连接。序号高的一方拨号，低的一方接受；
// 握手帧携带魔数、协议版本、组会话 UUID 与发送方序号。
package netgroup

import (
	"net"
	"sync"

	pkgif "github.com/nejmd/thrill/pkg/interfaces"
	"github.com/nejmd/thrill/pkg/types"
)

// 确保实现 Connection 接口
var _ pkgif.Connection = (*Conn)(nil)

// Conn 对端连接
//
// Write 内部加锁：多个发射器并发写同一连接时，单次 Write
// 调用的字节不会与其他调用交错。调用方必须把块头与负载拼进
// 同一次 Write。Read 只应由 reactor 的读取泵串行调用。
type Conn struct {
	conn   net.Conn
	local  types.Rank
	remote types.Rank

	writeMu sync.Mutex
}

// newConn 包装已完成握手的底层连接
func newConn(c net.Conn, local, remote types.Rank) *Conn {
	return &Conn{conn: c, local: local, remote: remote}
}

// Read 从连接读取
func (c *Conn) Read(p []byte) (int, error) {
	return c.conn.Read(p)
}

// Write 向连接写入，单次调用原子
func (c *Conn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.Write(p)
}

// Close 关闭连接
func (c *Conn) Close() error {
	return c.conn.Close()
}

// LocalRank 返回本地 worker 序号
func (c *Conn) LocalRank() types.Rank {
	return c.local
}

// RemoteRank 返回对端 worker 序号
func (c *Conn) RemoteRank() types.Rank {
	return c.remote
}

// RemoteAddr 返回对端地址的字符串表示
func (c *Conn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}
