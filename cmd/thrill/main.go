// Package main 提供 thrill 命令行入口
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nejmd/thrill"
	"github.com/nejmd/thrill/pkg/lib/log"
	"github.com/nejmd/thrill/pkg/types"
)

var logger = log.Logger("thrill/cmd")

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
//
//	命令行参数：运行时覆盖 / 快速测试（「这次运行」想怎么跑）
//	JSON 配置文件：持久化配置 / 长期运行（「这个 worker」的固定配置）
var (
	// ─────────────────────────────────────────────────────────────────────
	// 运行时参数
	// ─────────────────────────────────────────────────────────────────────
	rank       = flag.Int("rank", -1, "本 worker 的组内序号（覆盖配置文件）")
	peers      = flag.String("peers", "", "组内全部监听地址，逗号分隔（覆盖配置文件）")
	configFile = flag.String("config", "", "配置文件路径")
	sessionID  = flag.String("session", "", "组会话标识 UUID（覆盖配置文件）")
	selfTest   = flag.Bool("selftest", false, "建组后做一轮全交换并退出")

	// ─────────────────────────────────────────────────────────────────────
	// 日志参数
	// ─────────────────────────────────────────────────────────────────────
	logLevel = flag.String("log-level", "", "日志级别 (debug/info/warn/error)")
	logFile  = flag.String("log", "", "日志文件路径")

	// ─────────────────────────────────────────────────────────────────────
	// 信息显示
	// ─────────────────────────────────────────────────────────────────────
	showVersion = flag.Bool("version", false, "显示版本信息")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if *showVersion {
		fmt.Println(thrill.VersionInfo())
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	w, err := thrill.NewWithConfig(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signalCh
		logger.Info("signal received, shutting down")
		cancel()
	}()

	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	logger.Info("worker ready", "rank", w.Rank(), "group", w.GroupSize())

	if *selfTest {
		return runSelfTest(ctx, w)
	}

	// 常驻运行：打印完成与违规事件直到被中断
	complete, err := w.Events().Subscribe(new(types.EvtChannelComplete))
	if err != nil {
		return err
	}
	defer complete.Close()
	violation, err := w.Events().Subscribe(new(types.EvtProtocolViolation))
	if err != nil {
		return err
	}
	defer violation.Close()

	for {
		select {
		case ev := <-complete.Out():
			e := ev.(types.EvtChannelComplete)
			logger.Info("channel complete", "channel", e.ID, "blocks", e.Blocks)
		case ev := <-violation.Out():
			e := ev.(types.EvtProtocolViolation)
			logger.Warn("protocol violation", "channel", e.ID, "peer", e.Rank, "reason", e.Reason)
		case <-ctx.Done():
			return nil
		}
	}
}

// runSelfTest 做一轮全交换：给组内每个 worker（含自己）发一个块
//
// 验证整条数据通路（建组、成帧、解复用、完成计数）后退出。
// 全组 worker 都要带 -selftest 运行，通道才能收齐完成信号。
func runSelfTest(ctx context.Context, w *thrill.Worker) error {
	sub, err := w.Events().Subscribe(new(types.EvtChannelComplete))
	if err != nil {
		return err
	}
	defer sub.Close()

	id := w.AllocateNext()
	sinks, err := w.OpenChannel(id)
	if err != nil {
		return err
	}
	for r, sink := range sinks {
		msg := fmt.Sprintf("selftest %v->%v", w.Rank(), r)
		if err := sink.Append([]byte(msg)); err != nil {
			return fmt.Errorf("append to rank %d: %w", r, err)
		}
		if err := sink.Close(); err != nil {
			return fmt.Errorf("close sink %d: %w", r, err)
		}
	}

	select {
	case ev := <-sub.Out():
		e := ev.(types.EvtChannelComplete)
		logger.Info("selftest passed", "channel", e.ID, "blocks", e.Blocks)
	case <-ctx.Done():
		return fmt.Errorf("selftest: %w", ctx.Err())
	}

	stat := w.Bandwidth()
	logger.Info("selftest bandwidth", "sent", stat.BytesSent, "recv", stat.BytesRecv)
	return nil
}
