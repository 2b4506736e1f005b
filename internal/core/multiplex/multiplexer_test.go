package multiplex

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nejmd/thrill/internal/core/chains"
	"github.com/nejmd/thrill/internal/core/dispatch"
	"github.com/nejmd/thrill/internal/core/eventbus"
	"github.com/nejmd/thrill/internal/core/metrics"
	"github.com/nejmd/thrill/internal/core/netgroup"
	pkgif "github.com/nejmd/thrill/pkg/interfaces"
	"github.com/nejmd/thrill/pkg/types"
)

// muxEnv 单个 worker 的测试环境
type muxEnv struct {
	mux      *Multiplexer
	bus      pkgif.EventBus
	reporter metrics.Reporter
}

// attachMux 为一个组建立并绑定多路复用器
func attachMux(t *testing.T, g pkgif.Group) *muxEnv {
	t.Helper()
	return attachMuxFrame(t, g, 16<<20)
}

func attachMuxFrame(t *testing.T, g pkgif.Group, maxFrame uint32) *muxEnv {
	t.Helper()

	d := dispatch.NewDispatcher()
	bus := eventbus.NewBus()
	reporter := metrics.NewBandwidthCounter()

	m, err := NewMultiplexer(d, bus, reporter, maxFrame)
	require.NoError(t, err)
	require.NoError(t, m.Attach(g))

	t.Cleanup(func() {
		m.Close()
		d.Close()
		bus.Close()
	})
	return &muxEnv{mux: m, bus: bus, reporter: reporter}
}

// subscribeEvt 订阅一种事件类型
func subscribeEvt(t *testing.T, bus pkgif.EventBus, proto interface{}) pkgif.Subscription {
	t.Helper()
	sub, err := bus.Subscribe(proto, pkgif.BufSize(16))
	require.NoError(t, err)
	t.Cleanup(func() { sub.Close() })
	return sub
}

// waitEvt 等待下一个事件
func waitEvt(t *testing.T, sub pkgif.Subscription) interface{} {
	t.Helper()
	select {
	case ev := <-sub.Out():
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestUnreferencedChannelIsUnknown(t *testing.T) {
	groups := netgroup.NewLocalGroups(1)
	env := attachMux(t, groups[0])

	assert.False(t, env.mux.HasChannel(9))
	assert.False(t, env.mux.HasDataOn(9))

	_, err := env.mux.AccessData(9)
	assert.ErrorIs(t, err, chains.ErrNoSuchChain)
}

func TestAllocateNextCreatesChainOnly(t *testing.T) {
	groups := netgroup.NewLocalGroups(1)
	env := attachMux(t, groups[0])

	a := env.mux.AllocateNext()
	b := env.mux.AllocateNext()
	assert.Equal(t, a+1, b)

	// 预留创建缓冲链但不创建通道对象
	assert.True(t, env.mux.HasDataOn(a))
	assert.False(t, env.mux.HasChannel(a))

	chain, err := env.mux.AccessData(a)
	require.NoError(t, err)
	assert.Zero(t, chain.Len())
}

func TestOpenChannelTwiceFails(t *testing.T) {
	groups := netgroup.NewLocalGroups(1)
	env := attachMux(t, groups[0])

	_, err := env.mux.OpenChannel(3)
	require.NoError(t, err)

	_, err = env.mux.OpenChannel(3)
	assert.ErrorIs(t, err, ErrChannelOpen)
}

func TestOpenChannelBeforeAttach(t *testing.T) {
	d := dispatch.NewDispatcher()
	defer d.Close()
	bus := eventbus.NewBus()
	defer bus.Close()

	m, err := NewMultiplexer(d, bus, metrics.NewBandwidthCounter(), 16<<20)
	require.NoError(t, err)

	_, err = m.OpenChannel(0)
	assert.ErrorIs(t, err, ErrNotAttached)
	assert.ErrorIs(t, m.CloseLoopbackStream(0), ErrNotAttached)
}

func TestAttachTwiceFails(t *testing.T) {
	groups := netgroup.NewLocalGroups(1)
	env := attachMux(t, groups[0])

	assert.ErrorIs(t, env.mux.Attach(groups[0]), ErrAlreadyAttached)
}

// 单 worker 组：回环是唯一的投递路径
func TestLoopbackSingleWorker(t *testing.T) {
	groups := netgroup.NewLocalGroups(1)
	env := attachMux(t, groups[0])
	sub := subscribeEvt(t, env.bus, new(types.EvtChannelComplete))

	sinks, err := env.mux.OpenChannel(0)
	require.NoError(t, err)
	require.Len(t, sinks, 1)

	require.NoError(t, sinks[0].Append([]byte("alpha")))
	require.NoError(t, sinks[0].Append([]byte("beta")))
	require.NoError(t, sinks[0].Close())

	ev := waitEvt(t, sub).(types.EvtChannelComplete)
	assert.Equal(t, types.ChannelID(0), ev.ID)
	assert.Equal(t, 2, ev.Blocks)

	chain, err := env.mux.AccessData(0)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("alpha"), []byte("beta")}, chain.Blocks())

	require.True(t, env.mux.HasChannel(0))
	assert.True(t, env.mux.Channel(0).IsComplete())
}

func TestRoundTripTwoWorkers(t *testing.T) {
	groups := netgroup.NewLocalGroups(2)
	env0 := attachMux(t, groups[0])
	env1 := attachMux(t, groups[1])
	sub0 := subscribeEvt(t, env0.bus, new(types.EvtChannelComplete))

	const id = types.ChannelID(7)

	sinks1, err := env1.mux.OpenChannel(id)
	require.NoError(t, err)
	require.NoError(t, sinks1[0].Append([]byte("hello")))
	require.NoError(t, sinks1[0].Append([]byte("world")))
	require.NoError(t, sinks1[0].Close())
	require.NoError(t, sinks1[1].Close())

	// 0 号 worker 不发数据，但仍要关闭自己的流才能让通道完成
	sinks0, err := env0.mux.OpenChannel(id)
	require.NoError(t, err)
	require.NoError(t, sinks0[0].Close())
	require.NoError(t, sinks0[1].Close())

	ev := waitEvt(t, sub0).(types.EvtChannelComplete)
	assert.Equal(t, id, ev.ID)
	assert.Equal(t, 2, ev.Blocks)

	chain, err := env0.mux.AccessData(id)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("hello"), []byte("world")}, chain.Blocks())

	// 回程方向也完成：1 号收到 0 号的哨兵加自己的回环关闭
	require.Eventually(t, func() bool {
		ch := env1.mux.Channel(id)
		return ch != nil && ch.IsComplete()
	}, 3*time.Second, 10*time.Millisecond)

	// 统计包含块头字节
	recv := env0.reporter.GetBandwidthForRank(1)
	assert.Equal(t, uint64(3*HeaderSize+10), recv.BytesRecv)
	assert.Equal(t, uint64(3), recv.BlocksRecv)
}

// 组内每个 worker 都向 0 号 worker 发一个块
func TestGatherThreeWorkers(t *testing.T) {
	groups := netgroup.NewLocalGroups(3)
	envs := make([]*muxEnv, 3)
	for i := range groups {
		envs[i] = attachMux(t, groups[i])
	}
	sub0 := subscribeEvt(t, envs[0].bus, new(types.EvtChannelComplete))

	const id = types.ChannelID(7)
	payloads := [][]byte{[]byte("from-0"), []byte("from-1"), []byte("from-2")}

	for r, env := range envs {
		sinks, err := env.mux.OpenChannel(id)
		require.NoError(t, err)
		require.Len(t, sinks, 3)

		require.NoError(t, sinks[0].Append(payloads[r]))
		for _, s := range sinks {
			require.NoError(t, s.Close())
		}
	}

	ev := waitEvt(t, sub0).(types.EvtChannelComplete)
	assert.Equal(t, id, ev.ID)
	assert.Equal(t, 3, ev.Blocks)
	assert.Equal(t, 3, envs[0].mux.Channel(id).Completions())

	// 不同连接之间没有顺序约定
	chain, err := envs[0].mux.AccessData(id)
	require.NoError(t, err)
	assert.ElementsMatch(t, payloads, chain.Blocks())

	// 其余 worker 没收到数据但同样收齐了完成信号
	for _, env := range envs[1:] {
		require.Eventually(t, func() bool {
			ch := env.mux.Channel(id)
			return ch != nil && ch.IsComplete()
		}, 3*time.Second, 10*time.Millisecond)
		chain, err := env.mux.AccessData(id)
		require.NoError(t, err)
		assert.Zero(t, chain.Len())
	}
}

// 哨兵可以先于任何本地引用到达：通道被懒创建
func TestSentinelBeforeLocalReference(t *testing.T) {
	groups := netgroup.NewLocalGroups(2)
	env0 := attachMux(t, groups[0])

	const id = types.ChannelID(4)
	assert.False(t, env0.mux.HasChannel(id))

	_, err := groups[1].Connection(0).Write(sentinelHeader(id).MarshalBinary())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return env0.mux.HasChannel(id)
	}, 3*time.Second, 10*time.Millisecond)

	ch := env0.mux.Channel(id)
	assert.Equal(t, 1, ch.Completions())
	assert.False(t, ch.IsComplete())
	assert.True(t, env0.mux.HasDataOn(id))
}

func TestDuplicateSentinelReportsViolation(t *testing.T) {
	groups := netgroup.NewLocalGroups(2)
	env0 := attachMux(t, groups[0])
	complete := subscribeEvt(t, env0.bus, new(types.EvtChannelComplete))
	violation := subscribeEvt(t, env0.bus, new(types.EvtProtocolViolation))

	const id = types.ChannelID(5)
	raw := sentinelHeader(id).MarshalBinary()

	_, err := groups[1].Connection(0).Write(raw)
	require.NoError(t, err)
	require.NoError(t, env0.mux.CloseLoopbackStream(id))
	waitEvt(t, complete)

	// 完成之后再来一枚哨兵：上报违规而不是多计
	_, err = groups[1].Connection(0).Write(raw)
	require.NoError(t, err)

	ev := waitEvt(t, violation).(types.EvtProtocolViolation)
	assert.Equal(t, id, ev.ID)
	assert.Equal(t, types.Rank(1), ev.Rank)
	assert.Equal(t, 2, env0.mux.Channel(id).Completions())
}

// 超限的块头判连接失效：帧流错位后无法重新同步
func TestOversizedHeaderFailsConnection(t *testing.T) {
	groups := netgroup.NewLocalGroups(2)
	env0 := attachMuxFrame(t, groups[0], 1024)
	violation := subscribeEvt(t, env0.bus, new(types.EvtProtocolViolation))
	disconnect := subscribeEvt(t, env0.bus, new(types.EvtPeerDisconnected))

	h := BlockHeader{PayloadLength: 4096, Channel: 2}
	_, err := groups[1].Connection(0).Write(h.MarshalBinary())
	require.NoError(t, err)

	vev := waitEvt(t, violation).(types.EvtProtocolViolation)
	assert.Equal(t, types.ChannelID(2), vev.ID)
	assert.Equal(t, types.Rank(1), vev.Rank)

	dev := waitEvt(t, disconnect).(types.EvtPeerDisconnected)
	assert.Equal(t, types.Rank(1), dev.Rank)

	// 违规连接已关闭
	require.Eventually(t, func() bool {
		_, err := groups[1].Connection(0).Write([]byte{0})
		return err != nil
	}, 3*time.Second, 10*time.Millisecond)

	// 通道对象没有因畸形块头被创建
	assert.False(t, env0.mux.HasChannel(2))
}

// 连接在负载中途断开属于异常终止，不计为完成
func TestMidPayloadDisconnect(t *testing.T) {
	groups := netgroup.NewLocalGroups(2)
	env0 := attachMux(t, groups[0])
	disconnect := subscribeEvt(t, env0.bus, new(types.EvtPeerDisconnected))

	const id = types.ChannelID(6)
	h := BlockHeader{PayloadLength: 64, Channel: id}
	peer := groups[1].Connection(0)
	_, err := peer.Write(h.MarshalBinary())
	require.NoError(t, err)
	_, err = peer.Write(make([]byte, 16))
	require.NoError(t, err)
	require.NoError(t, peer.Close())

	dev := waitEvt(t, disconnect).(types.EvtPeerDisconnected)
	assert.Equal(t, types.Rank(1), dev.Rank)

	ch := env0.mux.Channel(id)
	require.NotNil(t, ch)
	assert.Zero(t, ch.Completions())

	// 不完整的负载没有进链
	chain, err := env0.mux.AccessData(id)
	require.NoError(t, err)
	assert.Zero(t, chain.Len())
}

func TestCloseKeepsRegistry(t *testing.T) {
	groups := netgroup.NewLocalGroups(1)
	env := attachMux(t, groups[0])
	sub := subscribeEvt(t, env.bus, new(types.EvtChannelComplete))

	sinks, err := env.mux.OpenChannel(1)
	require.NoError(t, err)
	require.NoError(t, sinks[0].Append([]byte("kept")))
	require.NoError(t, sinks[0].Close())
	waitEvt(t, sub)

	require.NoError(t, env.mux.Close())

	// 关闭后注册表与缓冲链仍可查询
	assert.True(t, env.mux.HasChannel(1))
	chain, err := env.mux.AccessData(1)
	require.NoError(t, err)
	assert.Equal(t, 1, chain.Len())

	// 再次关闭是空操作
	assert.NoError(t, env.mux.Close())
}

func TestSocketTargetRejectsAfterClose(t *testing.T) {
	groups := netgroup.NewLocalGroups(2)
	attachMux(t, groups[0])
	env1 := attachMux(t, groups[1])

	sinks, err := env1.mux.OpenChannel(8)
	require.NoError(t, err)

	target := sinks[0]
	require.NoError(t, target.Append([]byte("x")))
	require.NoError(t, target.Close())

	assert.ErrorIs(t, target.Append([]byte("y")), ErrSinkClosed)
	assert.ErrorIs(t, target.Close(), ErrSinkClosed)
}

func TestSocketTargetEmptyBlockIgnored(t *testing.T) {
	groups := netgroup.NewLocalGroups(2)
	env0 := attachMux(t, groups[0])
	sub0 := subscribeEvt(t, env0.bus, new(types.EvtChannelComplete))
	env1 := attachMux(t, groups[1])

	const id = types.ChannelID(9)
	sinks, err := env1.mux.OpenChannel(id)
	require.NoError(t, err)

	// 空块在线路上等同哨兵，Append 必须静默丢弃而不是发送
	require.NoError(t, sinks[0].Append(nil))
	require.NoError(t, sinks[0].Append([]byte{}))
	require.NoError(t, sinks[0].Append([]byte("real")))
	require.NoError(t, sinks[0].Close())
	require.NoError(t, sinks[1].Close())

	require.NoError(t, env0.mux.CloseLoopbackStream(id))

	ev := waitEvt(t, sub0).(types.EvtChannelComplete)
	assert.Equal(t, 1, ev.Blocks)
}

func TestSocketTargetOversizedBlock(t *testing.T) {
	groups := netgroup.NewLocalGroups(2)
	attachMux(t, groups[0])
	env1 := attachMuxFrame(t, groups[1], 8)

	sinks, err := env1.mux.OpenChannel(0)
	require.NoError(t, err)
	assert.ErrorIs(t, sinks[0].Append(make([]byte, 9)), ErrFrameTooLarge)
}

func TestTypedEmitters(t *testing.T) {
	groups := netgroup.NewLocalGroups(1)
	env := attachMux(t, groups[0])
	sub := subscribeEvt(t, env.bus, new(types.EvtChannelComplete))

	emitters, err := OpenChannelFor(env.mux, 0, func(s string) []byte {
		return []byte(s)
	})
	require.NoError(t, err)
	require.Len(t, emitters, 1)

	require.NoError(t, emitters[0].Emit("typed"))
	require.NoError(t, emitters[0].Close())
	waitEvt(t, sub)

	chain, err := env.mux.AccessData(0)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("typed")}, chain.Blocks())
}
