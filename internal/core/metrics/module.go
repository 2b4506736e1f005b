// Package metrics 实现网络层的流量统计
package metrics

import "go.uber.org/fx"

// ============================================================================
//                              Fx 模块
// ============================================================================

// Result Fx 模块输出结果
type Result struct {
	fx.Out

	Reporter Reporter
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("metrics",
		fx.Provide(ProvideReporter),
	)
}

// ProvideReporter 提供 Reporter 实例
func ProvideReporter() Result {
	return Result{
		Reporter: NewBandwidthCounter(),
	}
}
