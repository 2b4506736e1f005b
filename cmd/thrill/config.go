package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/nejmd/thrill/config"
)

// ============================================================================
//                              配置加载（CLI 专用）
// ============================================================================

// loadConfig 合并三层配置：文件 < 环境变量 < 命令行参数
func loadConfig() (*config.Config, error) {
	cfg := config.NewConfig()

	if *configFile != "" {
		data, err := os.ReadFile(*configFile)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if cfg, err = config.FromJSON(data); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	applyFlagOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides 应用环境变量覆盖
//
// 环境变量优先级高于配置文件，但低于命令行参数。
// 支持的环境变量（均使用 THRILL_ 前缀）：
//   - THRILL_RANK: 组内序号
//   - THRILL_PEERS: 组内监听地址（逗号分隔）
//   - THRILL_SESSION_ID: 组会话标识
//   - THRILL_LOG_LEVEL / THRILL_LOG_FORMAT: 日志配置
func applyEnvOverrides(cfg *config.Config) {
	if v := os.Getenv("THRILL_RANK"); v != "" {
		if r, err := strconv.Atoi(v); err == nil {
			cfg.Net.MyRank = r
		}
	}
	if v := os.Getenv("THRILL_PEERS"); v != "" {
		cfg.Net.Peers = splitPeers(v)
	}
	if v := os.Getenv("THRILL_SESSION_ID"); v != "" {
		cfg.Net.SessionID = v
	}
	if v := os.Getenv("THRILL_LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("THRILL_LOG_FORMAT"); v != "" {
		cfg.Log.Format = strings.ToLower(v)
	}
}

// applyFlagOverrides 应用命令行参数覆盖
func applyFlagOverrides(cfg *config.Config) {
	if *rank >= 0 {
		cfg.Net.MyRank = *rank
	}
	if *peers != "" {
		cfg.Net.Peers = splitPeers(*peers)
	}
	if *sessionID != "" {
		cfg.Net.SessionID = *sessionID
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFile != "" {
		cfg.Log.File = *logFile
	}
}

func splitPeers(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
