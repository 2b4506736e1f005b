package config

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Validate 验证整个配置的有效性
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if err := c.Net.Validate(); err != nil {
		return fmt.Errorf("net: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}

// Validate 验证对等组配置
func (c *NetConfig) Validate() error {
	if len(c.Peers) == 0 {
		return errors.New("peers list is empty")
	}
	if c.MyRank < 0 || c.MyRank >= len(c.Peers) {
		return fmt.Errorf("my_rank %d out of range [0, %d)", c.MyRank, len(c.Peers))
	}
	for i, addr := range c.Peers {
		if addr == "" {
			return fmt.Errorf("peers[%d] is empty", i)
		}
	}
	if c.MaxFrameSize == 0 {
		return errors.New("max_frame_size must be positive")
	}
	if c.SessionID != "" {
		if _, err := uuid.Parse(c.SessionID); err != nil {
			return fmt.Errorf("session_id is not a valid UUID: %w", err)
		}
	}
	return nil
}

// Validate 验证日志配置
func (c *LogConfig) Validate() error {
	switch c.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Level)
	}
	switch c.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Format)
	}
	return nil
}
