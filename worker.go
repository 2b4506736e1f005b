package thrill

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/multierr"

	"github.com/nejmd/thrill/config"
	"github.com/nejmd/thrill/internal/core/metrics"
	"github.com/nejmd/thrill/internal/core/netgroup"
	pkgif "github.com/nejmd/thrill/pkg/interfaces"
	"github.com/nejmd/thrill/pkg/lib/log"
	"github.com/nejmd/thrill/pkg/types"
)

var logger = log.Logger("thrill")

// ════════════════════════════════════════════════════════════════════════════
//                              Worker 状态
// ════════════════════════════════════════════════════════════════════════════

// WorkerState worker 状态
//
// 表示 worker 在生命周期中的当前阶段。
type WorkerState int

const (
	// StateIdle 空闲状态（已创建，未启动）
	StateIdle WorkerState = iota

	// StateStarting 启动中（建组与组件装配中）
	StateStarting

	// StateRunning 运行中（正常工作状态）
	StateRunning

	// StateStopping 停止中（正在关闭组件）
	StateStopping

	// StateStopped 已停止
	StateStopped
)

// String 返回状态的字符串表示
func (s WorkerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// 启动/停止超时配置
const (
	// initializeTimeout 组件装配超时（Fx App Start）
	initializeTimeout = 30 * time.Second

	// shutdownTimeout 停止超时（Fx App Stop）
	shutdownTimeout = 10 * time.Second
)

// ════════════════════════════════════════════════════════════════════════════
//                              Worker
// ════════════════════════════════════════════════════════════════════════════

// Worker 数据处理 worker
//
// Worker 是用户与对等组交互的主入口。它是一个门面（Facade），
// 聚合了所有内部组件：
//   - API Layer: Worker（本层）
//   - Multiplex Layer: 通道注册表、缓冲链存储、投递目标
//   - Dispatch Layer: 每连接读取泵
//   - Group Layer: 全连接对等组
//
// Start 建立对等组并开始接收；Close 关闭所有连接与组件。
// 通道注册表与缓冲链在 Close 之后仍可查询。
type Worker struct {
	mu     sync.Mutex
	state  WorkerState
	closed bool

	cfg   *config.Config
	app   *fx.App
	group *netgroup.Group

	// 由 Fx 注入
	mux        pkgif.Multiplexer
	bus        pkgif.EventBus
	dispatcher pkgif.Dispatcher
	reporter   metrics.Reporter
}

// New 创建 worker
func New(opts ...Option) (*Worker, error) {
	cfg := config.NewConfig()
	for _, o := range opts {
		if err := o(cfg); err != nil {
			return nil, err
		}
	}
	return NewWithConfig(cfg)
}

// NewWithConfig 从完整配置创建 worker
func NewWithConfig(cfg *config.Config) (*Worker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	applyLogConfig(cfg.Log)

	w := &Worker{
		cfg:   cfg,
		state: StateIdle,
	}

	app, err := buildFxApp(cfg, w)
	if err != nil {
		return nil, err
	}
	w.app = app
	return w, nil
}

// Start 启动 worker
//
// 分两步：先启动 Fx App 装配内部组件，再与组内全部对端建立
// 连接并绑定多路复用器。建组会阻塞到全组就绪或 ctx 取消。
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWorkerClosed
	}
	if w.state == StateRunning || w.state == StateStarting {
		return ErrAlreadyStarted
	}

	w.state = StateStarting
	logger.Info("starting worker", "rank", w.cfg.Net.MyRank, "peers", len(w.cfg.Net.Peers))

	initCtx, initCancel := context.WithTimeout(ctx, initializeTimeout)
	defer initCancel()
	if err := w.app.Start(initCtx); err != nil {
		w.state = StateIdle
		return fmt.Errorf("initialize failed: %w", err)
	}

	group, err := netgroup.Establish(ctx, &w.cfg.Net)
	if err != nil {
		w.stopApp()
		w.state = StateStopped
		return fmt.Errorf("establish group: %w", err)
	}

	if err := w.mux.Attach(group); err != nil {
		_ = group.Close()
		w.stopApp()
		w.state = StateStopped
		return fmt.Errorf("attach multiplexer: %w", err)
	}

	w.group = group
	w.state = StateRunning
	logger.Info("worker running", "rank", group.MyRank(), "size", group.Size())
	return nil
}

// Close 关闭 worker
//
// 关闭组内所有连接并停止内部组件。幂等；通道注册表与缓冲链
// 在关闭后仍可查询。
func (w *Worker) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.state = StateStopping

	var errs error
	if w.group != nil {
		// 多路复用器负责注销连接并关闭组
		errs = multierr.Append(errs, w.mux.Close())
		w.group = nil
	}
	errs = multierr.Append(errs, w.stopApp())

	w.state = StateStopped
	logger.Info("worker stopped", "rank", w.cfg.Net.MyRank)
	return errs
}

// stopApp 停止 Fx App；调用方持有 w.mu
func (w *Worker) stopApp() error {
	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return w.app.Stop(stopCtx)
}

// ════════════════════════════════════════════════════════════════════════════
//                              访问器
// ════════════════════════════════════════════════════════════════════════════

// State 返回当前状态
func (w *Worker) State() WorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Rank 返回本 worker 的组内序号
func (w *Worker) Rank() types.Rank {
	return types.Rank(w.cfg.Net.MyRank)
}

// GroupSize 返回组大小
func (w *Worker) GroupSize() int {
	return len(w.cfg.Net.Peers)
}

// Events 返回事件总线
//
// 通道完成、协议违规与对端断开以事件发布，订阅
// types.EvtChannelComplete 等类型即可接收。
func (w *Worker) Events() pkgif.EventBus {
	return w.bus
}

// running 检查 worker 是否处于运行状态
func (w *Worker) running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state == StateRunning
}

// AllocateNext 分配下一个通道 id 并预留其缓冲链
//
// id 在本 worker 内严格单调；组内所有 worker 必须以相同顺序
// 调用才能对 id 含义达成一致。
func (w *Worker) AllocateNext() types.ChannelID {
	return w.mux.AllocateNext()
}

// OpenChannel 打开通道用于写入
//
// 返回按序号索引的投递目标：自身序号是回环目标，其余写入
// 对端连接。每个目标用完必须 Close，通道才能在接收方完成。
func (w *Worker) OpenChannel(id types.ChannelID) ([]pkgif.BlockSink, error) {
	if !w.running() {
		return nil, ErrNotStarted
	}
	return w.mux.OpenChannel(id)
}

// HasChannel 判断指定 id 的通道是否已实例化
func (w *Worker) HasChannel(id types.ChannelID) bool {
	return w.mux.HasChannel(id)
}

// HasDataOn 判断指定 id 是否存在缓冲链
func (w *Worker) HasDataOn(id types.ChannelID) bool {
	return w.mux.HasDataOn(id)
}

// AccessData 返回指定 id 的缓冲链
func (w *Worker) AccessData(id types.ChannelID) (pkgif.BufferChain, error) {
	return w.mux.AccessData(id)
}

// CloseLoopbackStream 触发指定通道的本地完成转移
func (w *Worker) CloseLoopbackStream(id types.ChannelID) error {
	if !w.running() {
		return ErrNotStarted
	}
	return w.mux.CloseLoopbackStream(id)
}

// Bandwidth 返回全组流量统计
func (w *Worker) Bandwidth() types.BandwidthStat {
	return w.reporter.GetBandwidthTotals()
}

// BandwidthByRank 返回按对端分列的流量统计
func (w *Worker) BandwidthByRank() map[types.Rank]types.BandwidthStat {
	return w.reporter.GetBandwidthByRank()
}

// Config 返回 worker 配置
func (w *Worker) Config() *config.Config {
	return w.cfg
}

// applyLogConfig 按配置重建默认 logger
func applyLogConfig(cfg config.LogConfig) {
	level := log.LevelInfo
	switch cfg.Level {
	case "debug":
		level = log.LevelDebug
	case "warn":
		level = log.LevelWarn
	case "error":
		level = log.LevelError
	}

	out := os.Stderr
	if cfg.File != "" {
		if f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			out = f
		} else {
			logger.Warn("cannot open log file, falling back to stderr", "file", cfg.File, "err", err)
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		log.SetDefault(log.NewJSON(out, opts))
	} else {
		log.SetDefault(log.New(out, opts))
	}
}
