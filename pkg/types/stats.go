package types

// ============================================================================
//                              BandwidthStat - 流量统计
// ============================================================================

// BandwidthStat 单个对端方向上的流量统计快照
type BandwidthStat struct {
	// BytesSent 发送字节数（含块头）
	BytesSent uint64

	// BytesRecv 接收字节数（含块头）
	BytesRecv uint64

	// BlocksSent 发送的块数（含结束哨兵）
	BlocksSent uint64

	// BlocksRecv 接收的块数（含结束哨兵）
	BlocksRecv uint64
}

// TotalBytes 返回总传输字节数
func (s BandwidthStat) TotalBytes() uint64 {
	return s.BytesSent + s.BytesRecv
}

// Add 返回两个快照的逐字段之和
func (s BandwidthStat) Add(o BandwidthStat) BandwidthStat {
	return BandwidthStat{
		BytesSent:  s.BytesSent + o.BytesSent,
		BytesRecv:  s.BytesRecv + o.BytesRecv,
		BlocksSent: s.BlocksSent + o.BlocksSent,
		BlocksRecv: s.BlocksRecv + o.BlocksRecv,
	}
}
