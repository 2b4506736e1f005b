// Package thrill 提供分布式数据处理的通道多路复用层
//
// 固定大小的 worker 组内，每对 worker 之间维持一条持久连接，
// 多条逻辑数据流（通道）通过自描述块头在这条连接上多路复用。
// Worker 是用户的主入口：建组、打开通道写入、按通道读取缓冲链、
// 订阅完成与违规事件。
//
// # 快速开始
//
//	import "github.com/nejmd/thrill"
//
//	// 1. 创建并启动 worker
//	w, err := thrill.New(
//	    thrill.WithRank(0),
//	    thrill.WithPeers("10.0.0.1:6001", "10.0.0.2:6001"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Close()
//
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	// 2. 发送：打开通道得到按序号索引的投递目标
//	id := w.AllocateNext()
//	sinks, _ := w.OpenChannel(id)
//	sinks[1].Append([]byte("block for worker 1"))
//	for _, s := range sinks {
//	    s.Close()
//	}
//
//	// 3. 接收：订阅完成事件后读取缓冲链
//	sub, _ := w.Events().Subscribe(new(types.EvtChannelComplete))
//	ev := (<-sub.Out()).(types.EvtChannelComplete)
//	chain, _ := w.AccessData(ev.ID)
//	for _, block := range chain.Blocks() {
//	    process(block)
//	}
//
// # 架构层次
//
//   - API Layer: Worker（本层，用户直接交互）
//   - Multiplex Layer: 通道注册表、缓冲链存储、投递目标
//   - Dispatch Layer: 每连接读取泵（reactor）
//   - Group Layer: 全连接对等组的建立与握手
package thrill
