// Package config 提供统一的配置管理
//
// 本包采用混合配置模式：
//   - 主 Config 结构体嵌入所有子配置
//   - 每个子配置在独立文件中定义
//   - 支持从 JSON 加载和保存配置
//
// 使用示例：
//
//	cfg := config.NewConfig()
//	cfg.Net.MyRank = 0
//	cfg.Net.Peers = []string{"127.0.0.1:7001", "127.0.0.1:7002"}
//	if err := cfg.Validate(); err != nil { ... }
package config

import "encoding/json"

// Config 是网络层的完整配置结构
type Config struct {
	// Net 对等组与多路复用配置
	Net NetConfig `json:"net"`

	// Log 日志配置
	Log LogConfig `json:"log"`
}

// LogConfig 日志配置
type LogConfig struct {
	// Level 日志级别：debug/info/warn/error
	Level string `json:"level"`

	// Format 输出格式：text/json
	Format string `json:"format"`

	// File 日志文件路径，为空则输出到 stderr
	File string `json:"file"`
}

// NewConfig 创建带默认值的配置
func NewConfig() *Config {
	return &Config{
		Net: DefaultNetConfig(),
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// FromJSON 从 JSON 数据解析配置
//
// 未出现的字段保持默认值。
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ToJSON 将配置序列化为 JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}
