package thrill

import (
	"errors"
	"time"

	"github.com/nejmd/thrill/config"
)

// Option 用户配置选项函数
//
// 选项按传入顺序应用在默认配置之上；最终配置由
// NewWithConfig 统一验证。
type Option func(*config.Config) error

// WithRank 设置本 worker 的组内序号
func WithRank(rank int) Option {
	return func(cfg *config.Config) error {
		cfg.Net.MyRank = rank
		return nil
	}
}

// WithPeers 设置组内全部 worker 的监听地址（按序号排列）
//
// 所有 worker 必须使用逐项一致的列表。
func WithPeers(addrs ...string) Option {
	return func(cfg *config.Config) error {
		if len(addrs) == 0 {
			return errors.New("peers list is empty")
		}
		cfg.Net.Peers = addrs
		return nil
	}
}

// WithMaxFrameSize 设置单个块负载的最大字节数
func WithMaxFrameSize(n uint32) Option {
	return func(cfg *config.Config) error {
		if n == 0 {
			return errors.New("max frame size must be positive")
		}
		cfg.Net.MaxFrameSize = n
		return nil
	}
}

// WithDialTimeout 设置与单个对端建立连接的超时
func WithDialTimeout(d time.Duration) Option {
	return func(cfg *config.Config) error {
		cfg.Net.DialTimeout = config.Duration(d)
		return nil
	}
}

// WithHandshakeTimeout 设置单次握手的超时
func WithHandshakeTimeout(d time.Duration) Option {
	return func(cfg *config.Config) error {
		cfg.Net.HandshakeTimeout = config.Duration(d)
		return nil
	}
}

// WithSessionID 设置组会话标识
//
// 所有 worker 配置相同的 UUID 可以防止不同作业的 worker
// 互相串组。
func WithSessionID(id string) Option {
	return func(cfg *config.Config) error {
		cfg.Net.SessionID = id
		return nil
	}
}

// WithLogLevel 设置日志级别（debug/info/warn/error）
func WithLogLevel(level string) Option {
	return func(cfg *config.Config) error {
		cfg.Log.Level = level
		return nil
	}
}

// WithLogFile 设置日志输出文件
func WithLogFile(path string) Option {
	return func(cfg *config.Config) error {
		cfg.Log.File = path
		return nil
	}
}
