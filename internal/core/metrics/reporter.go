package metrics

import "github.com/nejmd/thrill/pkg/types"

// Reporter 提供记录和检索流量指标的方法
type Reporter interface {
	// LogSentBlock 记录向指定对端发送的块
	LogSentBlock(types.Rank, int64)

	// LogRecvBlock 记录从指定对端接收的块
	LogRecvBlock(types.Rank, int64)

	// GetBandwidthForRank 获取指定对端的统计快照
	GetBandwidthForRank(types.Rank) types.BandwidthStat

	// GetBandwidthTotals 获取总统计
	GetBandwidthTotals() types.BandwidthStat

	// GetBandwidthByRank 获取所有对端的统计快照
	GetBandwidthByRank() map[types.Rank]types.BandwidthStat

	// Reset 重置所有统计
	Reset()
}
