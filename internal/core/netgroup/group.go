package netgroup

import (
	"fmt"

	"go.uber.org/multierr"

	pkgif "github.com/nejmd/thrill/pkg/interfaces"
	"github.com/nejmd/thrill/pkg/lib/log"
	"github.com/nejmd/thrill/pkg/types"
)

var logger = log.Logger("core/netgroup")

// 确保实现 Group 接口
var _ pkgif.Group = (*Group)(nil)

// Group 固定成员的对等组
type Group struct {
	myRank types.Rank

	// conns 按序号索引的连接，自身位置为 nil
	conns []pkgif.Connection
}

// newGroup 由已完成握手的连接组装组
func newGroup(myRank types.Rank, conns []pkgif.Connection) *Group {
	return &Group{myRank: myRank, conns: conns}
}

// Size 返回组大小 N（包括自身）
func (g *Group) Size() int {
	return len(g.conns)
}

// MyRank 返回本地 worker 的序号
func (g *Group) MyRank() types.Rank {
	return g.myRank
}

// Connection 返回指定序号对端的连接
//
// 对自身序号调用会 panic：回环路径没有物理连接。
func (g *Group) Connection(r types.Rank) pkgif.Connection {
	if r == g.myRank {
		panic(fmt.Sprintf("netgroup: no connection to self (%v)", r))
	}
	if !r.Valid(len(g.conns)) {
		panic(fmt.Sprintf("netgroup: rank %v out of range [0, %d)", r, len(g.conns)))
	}
	return g.conns[r]
}

// Close 关闭组内所有连接，聚合错误
func (g *Group) Close() error {
	var err error
	for r, c := range g.conns {
		if c == nil {
			continue
		}
		if cerr := c.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("rank %d: %w", r, cerr))
		}
	}
	logger.Debug("group closed", "rank", g.myRank, "size", len(g.conns))
	return err
}
