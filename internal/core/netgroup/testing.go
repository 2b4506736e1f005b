package netgroup

import (
	"net"

	pkgif "github.com/nejmd/thrill/pkg/interfaces"
	"github.com/nejmd/thrill/pkg/types"
)

// NewLocalGroups 构建 n 个通过内存管道互连的组
//
// 供单元测试使用：不经过 TCP 与握手，每对 worker 之间一条
// net.Pipe。返回的切片按序号索引。
func NewLocalGroups(n int) []*Group {
	groups := make([]*Group, n)
	allConns := make([][]pkgif.Connection, n)
	for i := range allConns {
		allConns[i] = make([]pkgif.Connection, n)
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			a, b := net.Pipe()
			allConns[i][j] = newConn(a, types.Rank(i), types.Rank(j))
			allConns[j][i] = newConn(b, types.Rank(j), types.Rank(i))
		}
	}

	for i := 0; i < n; i++ {
		groups[i] = newGroup(types.Rank(i), allConns[i])
	}
	return groups
}
