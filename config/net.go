package config

// 默认值
const (
	// DefaultMaxFrameSize 默认最大块长度（16 MiB）
	//
	// 块头声明的负载长度超过此值即视为畸形块头：单连接的帧流
	// 没有重新同步机制，必须立即判连接失效。
	DefaultMaxFrameSize = 16 << 20

	// DefaultDialTimeout 默认拨号超时
	DefaultDialTimeout = "30s"

	// DefaultHandshakeTimeout 默认握手超时
	DefaultHandshakeTimeout = "10s"
)

// NetConfig 对等组与多路复用配置
//
// 组成员是固定的：Peers 列出全部 N 个 worker 的监听地址，
// 按序号排列；MyRank 是本 worker 在其中的下标。所有 worker
// 必须使用逐项一致的 Peers 列表。
type NetConfig struct {
	// MyRank 本 worker 在组内的序号（Peers 的下标）
	MyRank int `json:"my_rank"`

	// Peers 组内全部 worker 的监听地址，按序号排列
	Peers []string `json:"peers"`

	// MaxFrameSize 单个块负载的最大字节数
	MaxFrameSize uint32 `json:"max_frame_size"`

	// DialTimeout 与单个对端建立连接的超时
	DialTimeout Duration `json:"dial_timeout"`

	// HandshakeTimeout 单次握手的超时
	HandshakeTimeout Duration `json:"handshake_timeout"`

	// SessionID 组会话标识（UUID 字符串）
	//
	// 为空时由 0 号 worker 的配置决定；所有 worker 配置相同的
	// SessionID 可以防止不同作业的 worker 互相串组。
	SessionID string `json:"session_id"`
}

// DefaultNetConfig 返回带默认值的 NetConfig
func DefaultNetConfig() NetConfig {
	dial, _ := parseDuration(DefaultDialTimeout)
	hs, _ := parseDuration(DefaultHandshakeTimeout)
	return NetConfig{
		MyRank:           0,
		MaxFrameSize:     DefaultMaxFrameSize,
		DialTimeout:      dial,
		HandshakeTimeout: hs,
	}
}

// ListenAddress 返回本 worker 的监听地址
func (c *NetConfig) ListenAddress() string {
	if c.MyRank < 0 || c.MyRank >= len(c.Peers) {
		return ""
	}
	return c.Peers[c.MyRank]
}
