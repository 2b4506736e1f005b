package multiplex

import (
	"context"

	"github.com/nejmd/thrill/config"
	"github.com/nejmd/thrill/internal/core/metrics"
	pkgif "github.com/nejmd/thrill/pkg/interfaces"
	"go.uber.org/fx"
)

// ============================================================================
//                              Fx 模块
// ============================================================================

// Result Fx 模块输出结果
type Result struct {
	fx.Out

	Multiplexer pkgif.Multiplexer
}

// moduleInput 模块输入参数
type moduleInput struct {
	fx.In

	Dispatcher pkgif.Dispatcher
	Bus        pkgif.EventBus
	Reporter   metrics.Reporter
	Config     *config.Config
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("multiplex",
		fx.Provide(ProvideMultiplexer),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideMultiplexer 提供 Multiplexer 实例
func ProvideMultiplexer(input moduleInput) (Result, error) {
	m, err := NewMultiplexer(input.Dispatcher, input.Bus, input.Reporter, input.Config.Net.MaxFrameSize)
	if err != nil {
		return Result{}, err
	}
	return Result{Multiplexer: m}, nil
}

// lifecycleInput 生命周期输入参数
type lifecycleInput struct {
	fx.In
	LC          fx.Lifecycle
	Multiplexer pkgif.Multiplexer
}

// registerLifecycle 注册生命周期
func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return input.Multiplexer.Close()
		},
	})
}
