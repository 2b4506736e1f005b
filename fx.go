package thrill

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/nejmd/thrill/config"
	"github.com/nejmd/thrill/internal/core/dispatch"
	"github.com/nejmd/thrill/internal/core/eventbus"
	"github.com/nejmd/thrill/internal/core/metrics"
	"github.com/nejmd/thrill/internal/core/multiplex"
)

// buildFxApp 构建 Fx 应用
//
// 组装全部内部模块。加载顺序（按依赖）：
//  1. EventBus: 事件发布基础设施
//  2. Dispatch: 每连接读取泵
//  3. Metrics: 流量统计
//  4. Multiplex: 通道多路复用器（依赖前三者）
//
// 组的建立不在 Fx 生命周期内：它是阻塞的网络操作，由
// Worker.Start 在 App 启动之后显式执行。
func buildFxApp(cfg *config.Config, w *Worker) (*fx.App, error) {
	app := fx.New(
		// 配置注入
		fx.Supply(cfg),

		// 基础组件
		eventbus.Module(),
		dispatch.Module(),
		metrics.Module(),

		// 多路复用器
		multiplex.Module(),

		// 门面字段回填
		fx.Populate(&w.bus, &w.dispatcher, &w.reporter, &w.mux),

		// Fx 自身的日志走 zap 的空 logger，不混入业务日志
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
	)
	if err := app.Err(); err != nil {
		return nil, err
	}
	return app, nil
}
