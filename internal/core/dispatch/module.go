// Package dispatch 实现异步读取 reactor
package dispatch

import (
	"context"

	pkgif "github.com/nejmd/thrill/pkg/interfaces"
	"go.uber.org/fx"
)

// ============================================================================
//                              Fx 模块
// ============================================================================

// Result Fx 模块输出结果
type Result struct {
	fx.Out

	Dispatcher pkgif.Dispatcher
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("dispatch",
		fx.Provide(ProvideDispatcher),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideDispatcher 提供 Dispatcher 实例
func ProvideDispatcher() Result {
	return Result{
		Dispatcher: NewDispatcher(),
	}
}

// lifecycleInput 生命周期输入参数
type lifecycleInput struct {
	fx.In
	LC         fx.Lifecycle
	Dispatcher pkgif.Dispatcher
}

// registerLifecycle 注册生命周期
func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return input.Dispatcher.Close()
		},
	})
}
