package netgroup

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nejmd/thrill/config"
	"github.com/nejmd/thrill/pkg/types"
)

// freeAddrs 预留 n 个本地监听地址
func freeAddrs(t *testing.T, n int) []string {
	t.Helper()
	addrs := make([]string, n)
	for i := range addrs {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addrs[i] = ln.Addr().String()
		ln.Close()
	}
	return addrs
}

// establishMesh 并发建立 n 个 worker 的完整网格
func establishMesh(t *testing.T, n int, session string) []*Group {
	t.Helper()
	addrs := freeAddrs(t, n)

	type result struct {
		rank  int
		group *Group
		err   error
	}
	results := make(chan result, n)

	for r := 0; r < n; r++ {
		go func(r int) {
			cfg := config.DefaultNetConfig()
			cfg.MyRank = r
			cfg.Peers = addrs
			cfg.SessionID = session

			g, err := Establish(context.Background(), &cfg)
			results <- result{rank: r, group: g, err: err}
		}(r)
	}

	groups := make([]*Group, n)
	for i := 0; i < n; i++ {
		res := <-results
		require.NoError(t, res.err, "rank %d", res.rank)
		groups[res.rank] = res.group
	}
	t.Cleanup(func() {
		for _, g := range groups {
			g.Close()
		}
	})
	return groups
}

func TestEstablishMesh(t *testing.T) {
	const n = 3
	groups := establishMesh(t, n, uuid.NewString())

	for r, g := range groups {
		assert.Equal(t, n, g.Size())
		assert.Equal(t, types.Rank(r), g.MyRank())
		for peer := 0; peer < n; peer++ {
			if peer == r {
				continue
			}
			c := g.Connection(types.Rank(peer))
			require.NotNil(t, c)
			assert.Equal(t, types.Rank(r), c.LocalRank())
			assert.Equal(t, types.Rank(peer), c.RemoteRank())
		}
	}
}

func TestMeshDataFlow(t *testing.T) {
	groups := establishMesh(t, 2, "")

	msg := []byte("hello rank 1")
	go func() {
		groups[0].Connection(1).Write(msg)
	}()

	buf := make([]byte, len(msg))
	c := groups[1].Connection(0)
	c.(*Conn).conn.SetReadDeadline(time.Now().Add(time.Second))
	_, err := c.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, msg, buf)
}

func TestConnectionToSelfPanics(t *testing.T) {
	groups := NewLocalGroups(2)
	assert.Panics(t, func() {
		groups[0].Connection(0)
	})
	assert.Panics(t, func() {
		groups[0].Connection(5)
	})
}

func TestSessionMismatch(t *testing.T) {
	addrs := freeAddrs(t, 2)

	errs := make(chan error, 2)
	for r := 0; r < 2; r++ {
		go func(r int) {
			cfg := config.DefaultNetConfig()
			cfg.MyRank = r
			cfg.Peers = addrs
			cfg.SessionID = uuid.NewString() // 双方各自不同
			cfg.DialTimeout = config.Duration(2 * time.Second)

			g, err := Establish(context.Background(), &cfg)
			if g != nil {
				g.Close()
			}
			errs <- err
		}(r)
	}

	sawMismatch := false
	for i := 0; i < 2; i++ {
		err := <-errs
		require.Error(t, err)
		if errors.Is(err, ErrSessionMismatch) {
			sawMismatch = true
		}
	}
	assert.True(t, sawMismatch, "at least one side must report session mismatch")
}

func TestWelcomeRoundTrip(t *testing.T) {
	w := welcome{Rank: 3, Session: uuid.New()}
	buf := w.marshal()
	require.Len(t, buf, welcomeSize)

	var back welcome
	require.NoError(t, back.unmarshal(buf))
	assert.Equal(t, w, back)
}

func TestWelcomeBadMagic(t *testing.T) {
	w := welcome{Rank: 0}
	buf := w.marshal()
	buf[0] ^= 0xff

	var back welcome
	assert.ErrorIs(t, back.unmarshal(buf), ErrBadMagic)
}

func TestWelcomeBadVersion(t *testing.T) {
	w := welcome{Rank: 0}
	buf := w.marshal()
	buf[4] = 0xff

	var back welcome
	assert.ErrorIs(t, back.unmarshal(buf), ErrVersionMismatch)
}

func TestLocalGroups(t *testing.T) {
	groups := NewLocalGroups(3)
	require.Len(t, groups, 3)

	// 对角线为空，其余互连
	done := make(chan struct{})
	go func() {
		groups[1].Connection(2).Write([]byte("x"))
		close(done)
	}()

	buf := make([]byte, 1)
	_, err := groups[2].Connection(1).Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "x", string(buf))
	<-done

	for _, g := range groups {
		assert.NoError(t, g.Close())
	}
}

func TestEstablishBadConfig(t *testing.T) {
	cfg := config.DefaultNetConfig()
	_, err := Establish(context.Background(), &cfg)
	assert.Error(t, err)
}

func TestMultiWriterNoInterleave(t *testing.T) {
	groups := NewLocalGroups(2)
	defer groups[0].Close()
	defer groups[1].Close()

	const writers = 4
	const msgs = 16
	const size = 32

	go func() {
		for w := 0; w < writers; w++ {
			go func(w int) {
				payload := make([]byte, size)
				for i := range payload {
					payload[i] = byte('a' + w)
				}
				for m := 0; m < msgs; m++ {
					groups[0].Connection(1).Write(payload)
				}
			}(w)
		}
	}()

	c := groups[1].Connection(0)
	for i := 0; i < writers*msgs; i++ {
		buf := make([]byte, size)
		n := 0
		for n < size {
			k, err := c.Read(buf[n:])
			require.NoError(t, err)
			n += k
		}
		// 单次 Write 的字节不会与其他写入者交错
		for _, b := range buf[1:] {
			require.Equal(t, buf[0], b, fmt.Sprintf("interleaved write in message %d", i))
		}
	}
}
