// Package interfaces 定义 Thrill 网络层的公共接口
//
// 接口与实现分离：实现位于 internal/core 下的各个包中，
// 模块之间只通过本包的接口交互。
package interfaces
